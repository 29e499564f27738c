package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/originsignal/ingestion/internal/ingestion/domain"
)

type sessionRow struct {
	ID               int64         `db:"id"`
	WebsiteID        int64         `db:"website_id"`
	CustomerID       int64         `db:"customer_id"`
	StartedAt        time.Time     `db:"started_at"`
	EndedAt          sql.NullTime  `db:"ended_at"`
	LandingPageID    sql.NullInt64 `db:"landing_page_id"`
	ReferrerDomainID sql.NullInt64 `db:"referrer_domain_id"`
	LandingURL       string        `db:"landing_url"`
	ReferrerURL      string        `db:"referrer_url"`
	IP               string        `db:"ip"`
	UserAgent        string        `db:"user_agent"`
	IsBot            bool          `db:"is_bot"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

func (r sessionRow) toDomain() *domain.Session {
	s := &domain.Session{
		ID:          r.ID,
		WebsiteID:   r.WebsiteID,
		CustomerID:  r.CustomerID,
		StartedAt:   r.StartedAt,
		LandingURL:  r.LandingURL,
		ReferrerURL: r.ReferrerURL,
		IP:          r.IP,
		UserAgent:   r.UserAgent,
		IsBot:       r.IsBot,
		Timestamps: domain.Timestamps{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
	}
	if r.EndedAt.Valid {
		s.EndedAt = &r.EndedAt.Time
	}
	if r.LandingPageID.Valid {
		s.LandingPageID = &r.LandingPageID.Int64
	}
	if r.ReferrerDomainID.Valid {
		s.ReferrerDomainID = &r.ReferrerDomainID.Int64
	}
	return s
}

// SessionRepository implements domain.SessionRepository for PostgreSQL.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, website_id, customer_id, started_at, ended_at, landing_page_id, referrer_domain_id, landing_url, referrer_url, ip, user_agent, is_bot, created_at, updated_at`

// FindByID loads a session the request explicitly named by id, scoped to
// the website, locking the row against concurrent sessionizer runs the same
// way FindActiveByCustomer does (§5). Returns nil, nil when the id doesn't
// resolve.
func (r *SessionRepository) FindByID(ctx context.Context, websiteID domain.WebsiteID, id int64) (*domain.Session, error) {
	exec := getExecutor(ctx, r.db)

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE website_id = $1 AND id = $2 FOR UPDATE`

	var row sessionRow
	if err := sqlx.GetContext(ctx, exec, &row, query, websiteID, id); err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session by id: %w", err)
	}

	return row.toDomain(), nil
}

// FindActiveByCustomer loads the customer's most recent session for reuse
// evaluation, locking the row against concurrent sessionizer runs for the
// same customer within the worker transaction. Returns nil, nil when the
// customer has no session at all yet.
func (r *SessionRepository) FindActiveByCustomer(ctx context.Context, websiteID domain.WebsiteID, customerID int64) (*domain.Session, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE website_id = $1 AND customer_id = $2
		ORDER BY started_at DESC
		LIMIT 1
		FOR UPDATE`

	var row sessionRow
	if err := sqlx.GetContext(ctx, exec, &row, query, websiteID, customerID); err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active session by customer: %w", err)
	}

	return row.toDomain(), nil
}

// Create inserts a new session, assigning its ID.
func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	exec := getExecutor(ctx, r.db)

	query := `
		INSERT INTO sessions (website_id, customer_id, started_at, ended_at, landing_page_id, referrer_domain_id, landing_url, referrer_url, ip, user_agent, is_bot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	return sqlx.GetContext(ctx, exec, &session.ID, query,
		session.WebsiteID, session.CustomerID, session.StartedAt, session.EndedAt,
		session.LandingPageID, session.ReferrerDomainID, session.LandingURL, session.ReferrerURL,
		session.IP, session.UserAgent, session.IsBot,
		session.CreatedAt, session.UpdatedAt,
	)
}

// Close persists a session's ended_at.
func (r *SessionRepository) Close(ctx context.Context, session *domain.Session) error {
	exec := getExecutor(ctx, r.db)

	query := `UPDATE sessions SET ended_at = $2, updated_at = $3 WHERE id = $1`
	_, err := exec.ExecContext(ctx, query, session.ID, session.EndedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}
