package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/originsignal/ingestion/internal/ingestion/domain"
)

type touchRow struct {
	ID               int64         `db:"id"`
	WebsiteID        int64         `db:"website_id"`
	CustomerID       int64         `db:"customer_id"`
	SessionID        int64         `db:"session_id"`
	Type             string        `db:"type"`
	OccurredAt       time.Time     `db:"occurred_at"`
	ReferrerDomainID sql.NullInt64 `db:"referrer_domain_id"`
	LandingPageID    sql.NullInt64 `db:"landing_page_id"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

func (r touchRow) toDomain() *domain.Touch {
	t := &domain.Touch{
		ID:         r.ID,
		WebsiteID:  r.WebsiteID,
		CustomerID: r.CustomerID,
		SessionID:  r.SessionID,
		Type:       domain.TouchType(r.Type),
		OccurredAt: r.OccurredAt,
		Timestamps: domain.Timestamps{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
	}
	if r.ReferrerDomainID.Valid {
		t.ReferrerDomainID = &r.ReferrerDomainID.Int64
	}
	if r.LandingPageID.Valid {
		t.LandingPageID = &r.LandingPageID.Int64
	}
	return t
}

// TouchRepository implements domain.TouchRepository for PostgreSQL.
type TouchRepository struct {
	db *sqlx.DB
}

// NewTouchRepository creates a new TouchRepository.
func NewTouchRepository(db *sqlx.DB) *TouchRepository {
	return &TouchRepository{db: db}
}

const touchColumns = `id, website_id, customer_id, session_id, type, occurred_at, referrer_domain_id, landing_page_id, created_at, updated_at`

// Create inserts a new touch, assigning its ID.
func (r *TouchRepository) Create(ctx context.Context, touch *domain.Touch) error {
	exec := getExecutor(ctx, r.db)

	query := `
		INSERT INTO touches (website_id, customer_id, session_id, type, occurred_at, referrer_domain_id, landing_page_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	return sqlx.GetContext(ctx, exec, &touch.ID, query,
		touch.WebsiteID, touch.CustomerID, touch.SessionID, string(touch.Type), touch.OccurredAt,
		touch.ReferrerDomainID, touch.LandingPageID, touch.CreatedAt, touch.UpdatedAt,
	)
}

// FindByID loads a touch by id. Returns nil, nil when the id doesn't resolve.
func (r *TouchRepository) FindByID(ctx context.Context, id int64) (*domain.Touch, error) {
	exec := getExecutor(ctx, r.db)

	query := `SELECT ` + touchColumns + ` FROM touches WHERE id = $1`

	var row touchRow
	if err := sqlx.GetContext(ctx, exec, &row, query, id); err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find touch by id: %w", err)
	}

	return row.toDomain(), nil
}

// FindLandingBySession returns the session's landing touch, if one was
// already recorded.
func (r *TouchRepository) FindLandingBySession(ctx context.Context, sessionID int64) (*domain.Touch, error) {
	exec := getExecutor(ctx, r.db)

	query := `SELECT ` + touchColumns + ` FROM touches WHERE session_id = $1 AND type = $2 LIMIT 1`

	var row touchRow
	if err := sqlx.GetContext(ctx, exec, &row, query, sessionID, string(domain.TouchTypeLanding)); err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find landing touch by session: %w", err)
	}

	return row.toDomain(), nil
}

// FindFirstByCustomer returns the customer's first-ever touch.
func (r *TouchRepository) FindFirstByCustomer(ctx context.Context, customerID int64) (*domain.Touch, error) {
	exec := getExecutor(ctx, r.db)

	query := `SELECT ` + touchColumns + ` FROM touches WHERE customer_id = $1 ORDER BY occurred_at ASC LIMIT 1`

	var row touchRow
	if err := sqlx.GetContext(ctx, exec, &row, query, customerID); err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find first touch by customer: %w", err)
	}

	return row.toDomain(), nil
}

// FindLastNonDirectByCustomer returns the customer's most recent touch whose
// referrer domain is known, as of a point in time (§4.9).
func (r *TouchRepository) FindLastNonDirectByCustomer(ctx context.Context, customerID int64, before time.Time) (*domain.Touch, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		SELECT ` + touchColumns + `
		FROM touches
		WHERE customer_id = $1 AND referrer_domain_id IS NOT NULL AND occurred_at <= $2
		ORDER BY occurred_at DESC
		LIMIT 1`

	var row touchRow
	if err := sqlx.GetContext(ctx, exec, &row, query, customerID, before); err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find last non-direct touch by customer: %w", err)
	}

	return row.toDomain(), nil
}

// FindBySession returns the most recent touch recorded in a session.
func (r *TouchRepository) FindBySession(ctx context.Context, sessionID int64) (*domain.Touch, error) {
	exec := getExecutor(ctx, r.db)

	query := `SELECT ` + touchColumns + ` FROM touches WHERE session_id = $1 ORDER BY occurred_at DESC LIMIT 1`

	var row touchRow
	if err := sqlx.GetContext(ctx, exec, &row, query, sessionID); err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find touch by session: %w", err)
	}

	return row.toDomain(), nil
}
