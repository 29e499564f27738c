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

type conversionRow struct {
	ID                   int64          `db:"id"`
	WebsiteID            int64          `db:"website_id"`
	EventID              int64          `db:"event_id"`
	CustomerID           int64          `db:"customer_id"`
	OccurredAt           time.Time      `db:"occurred_at"`
	RevenueMinor         sql.NullInt64  `db:"revenue_minor"`
	CurrencyCode         sql.NullString `db:"currency_code"`
	OrderID              sql.NullString `db:"order_id"`
	OrderNumber          sql.NullString `db:"order_number"`
	FirstTouchID         sql.NullInt64  `db:"first_touch_id"`
	LastNonDirectTouchID sql.NullInt64  `db:"last_non_direct_touch_id"`
	AttributedTouchID    sql.NullInt64  `db:"attributed_touch_id"`
	AttributionModel     string         `db:"attribution_model"`
	UTMCurrent           []byte         `db:"utm_current"`
	UTMLast              []byte         `db:"utm_last"`
	UTMFirst             []byte         `db:"utm_first"`
	UTMAttribution       []byte         `db:"utm_attribution"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

// ConversionRepository implements domain.ConversionRepository for
// PostgreSQL.
type ConversionRepository struct {
	db *sqlx.DB
}

// NewConversionRepository creates a new ConversionRepository.
func NewConversionRepository(db *sqlx.DB) *ConversionRepository {
	return &ConversionRepository{db: db}
}

// Create inserts a new conversion record.
func (r *ConversionRepository) Create(ctx context.Context, conversion *domain.Conversion) error {
	exec := getExecutor(ctx, r.db)

	utmCurrent, err := marshalUTMSet(conversion.UTMCurrent)
	if err != nil {
		return fmt.Errorf("failed to marshal utm_current: %w", err)
	}
	utmLast, err := marshalUTMSet(conversion.UTMLast)
	if err != nil {
		return fmt.Errorf("failed to marshal utm_last: %w", err)
	}
	utmFirst, err := marshalUTMSet(conversion.UTMFirst)
	if err != nil {
		return fmt.Errorf("failed to marshal utm_first: %w", err)
	}
	utmAttribution, err := marshalUTMSet(conversion.UTMAttribution)
	if err != nil {
		return fmt.Errorf("failed to marshal utm_attribution: %w", err)
	}

	query := `
		INSERT INTO conversions (
			website_id, event_id, customer_id, occurred_at, revenue_minor, currency_code, order_id, order_number,
			first_touch_id, last_non_direct_touch_id, attributed_touch_id, attribution_model,
			utm_current, utm_last, utm_first, utm_attribution, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`

	err = sqlx.GetContext(ctx, exec, &conversion.ID, query,
		conversion.WebsiteID, conversion.EventID, conversion.CustomerID, conversion.OccurredAt,
		conversion.RevenueMinor, conversion.CurrencyCode, conversion.OrderID, conversion.OrderNumber,
		conversion.FirstTouchID, conversion.LastNonDirectTouchID, conversion.AttributedTouchID,
		string(conversion.AttributionModel),
		utmCurrent, utmLast, utmFirst, utmAttribution,
		conversion.CreatedAt, conversion.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversion: %w", err)
	}
	return nil
}

// marshalUTMSet marshals set to JSON, emitting null rather than {} when no
// UTM values were resolved (Testable Scenario 3).
func marshalUTMSet(set domain.UTMSet) ([]byte, error) {
	if set.IsEmpty() {
		return json.Marshal(nil)
	}
	return json.Marshal(set)
}
