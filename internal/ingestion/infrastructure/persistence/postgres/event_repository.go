package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/originsignal/ingestion/internal/ingestion/domain"
)

type eventRow struct {
	ID             int64           `db:"id"`
	WebsiteID      int64           `db:"website_id"`
	SessionID      int64           `db:"session_id"`
	CustomerID     int64           `db:"customer_id"`
	Type           string          `db:"type"`
	Name           string          `db:"name"`
	OccurredAt     time.Time       `db:"occurred_at"`
	IdempotencyKey string          `db:"idempotency_key"`
	Props          json.RawMessage `db:"props"`
	RevenueMinor   sql.NullInt64   `db:"revenue_minor"`
	CurrencyCode   sql.NullString  `db:"currency_code"`
	OrderID        sql.NullString  `db:"order_id"`
	OrderNumber    sql.NullString  `db:"order_number"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r eventRow) toDomain() *domain.Event {
	e := &domain.Event{
		ID:             r.ID,
		WebsiteID:      r.WebsiteID,
		SessionID:      r.SessionID,
		CustomerID:     r.CustomerID,
		Type:           domain.EventType(r.Type),
		Name:           r.Name,
		OccurredAt:     r.OccurredAt,
		IdempotencyKey: r.IdempotencyKey,
		Props:          r.Props,
		Timestamps: domain.Timestamps{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
	}
	if r.RevenueMinor.Valid {
		e.RevenueMinor = &r.RevenueMinor.Int64
	}
	if r.CurrencyCode.Valid {
		e.CurrencyCode = &r.CurrencyCode.String
	}
	if r.OrderID.Valid {
		e.OrderID = &r.OrderID.String
	}
	if r.OrderNumber.Valid {
		e.OrderNumber = &r.OrderNumber.String
	}
	return e
}

// EventRepository implements domain.EventRepository for PostgreSQL.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, website_id, session_id, customer_id, type, name, occurred_at, idempotency_key, props, revenue_minor, currency_code, order_id, order_number, created_at, updated_at`

// ExistsByIdempotencyKey reports whether an event with this key is already
// committed. The pre-check and TOCTOU re-check use FindByIdempotencyKey.
func (r *EventRepository) ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error) {
	exec := getExecutor(ctx, r.db)

	query := `SELECT EXISTS(SELECT 1 FROM events WHERE idempotency_key = $1)`

	var exists bool
	if err := sqlx.GetContext(ctx, exec, &exists, query, key); err != nil {
		return false, fmt.Errorf("failed to check event idempotency key: %w", err)
	}
	return exists, nil
}

// FindByIdempotencyKey returns the event already committed for this key.
func (r *EventRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Event, error) {
	exec := getExecutor(ctx, r.db)

	query := `SELECT ` + eventColumns + ` FROM events WHERE idempotency_key = $1`

	var row eventRow
	if err := sqlx.GetContext(ctx, exec, &row, query, key); err != nil {
		if IsNotFoundError(err) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to find event by idempotency key: %w", err)
	}

	return row.toDomain(), nil
}

// Create inserts a new event. A unique-constraint violation on
// idempotency_key is translated to ErrDuplicateEvent so the caller never
// has to special-case a driver error type.
func (r *EventRepository) Create(ctx context.Context, event *domain.Event) error {
	exec := getExecutor(ctx, r.db)

	query := `
		INSERT INTO events (website_id, session_id, customer_id, type, name, occurred_at, idempotency_key, props, revenue_minor, currency_code, order_id, order_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	err := sqlx.GetContext(ctx, exec, &event.ID, query,
		event.WebsiteID, event.SessionID, event.CustomerID, string(event.Type), event.Name,
		event.OccurredAt, event.IdempotencyKey, event.Props,
		event.RevenueMinor, event.CurrencyCode, event.OrderID, event.OrderNumber,
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// UpdateCustomerID rebinds an event to a customer resolved after the row
// was tentatively created.
func (r *EventRepository) UpdateCustomerID(ctx context.Context, eventID, customerID int64) error {
	exec := getExecutor(ctx, r.db)

	query := `UPDATE events SET customer_id = $2 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, eventID, customerID); err != nil {
		return fmt.Errorf("failed to update event customer id: %w", err)
	}
	return nil
}
