package postgres

import (
	"database/sql"
	"fmt"

	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/originsignal/ingestion/internal/ingestion/domain"
)

// tokenRow mirrors ingestion_tokens. IPAllowlist is stored as a Postgres
// text[] and scanned through pq.StringArray.
type tokenRow struct {
	ID          int64          `db:"id"`
	WebsiteID   int64          `db:"website_id"`
	Prefix      string         `db:"prefix"`
	Hash        string         `db:"hash"`
	ExpiresAt   sql.NullTime   `db:"expires_at"`
	RevokedAt   sql.NullTime   `db:"revoked_at"`
	IPAllowlist pq.StringArray `db:"ip_allowlist"`
	LastUsedAt  sql.NullTime   `db:"last_used_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r tokenRow) toDomain() *domain.IngestionToken {
	t := &domain.IngestionToken{
		ID:          r.ID,
		WebsiteID:   r.WebsiteID,
		Prefix:      r.Prefix,
		Hash:        r.Hash,
		IPAllowlist: []string(r.IPAllowlist),
	}
	if r.ExpiresAt.Valid {
		t.ExpiresAt = &r.ExpiresAt.Time
	}
	if r.RevokedAt.Valid {
		t.RevokedAt = &r.RevokedAt.Time
	}
	if r.LastUsedAt.Valid {
		t.LastUsedAt = &r.LastUsedAt.Time
	}
	t.CreatedAt = r.CreatedAt
	t.UpdatedAt = r.UpdatedAt
	return t
}

// TokenRepository implements domain.TokenRepository for PostgreSQL.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// FindByPrefix looks up a token by its public prefix. Revoked and expired
// tokens are returned too — the caller (C1) needs to distinguish "not
// found" from "revoked" and "expired" to report the right error code.
func (r *TokenRepository) FindByPrefix(ctx context.Context, prefix string) (*domain.IngestionToken, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		SELECT id, website_id, prefix, hash, expires_at, revoked_at, ip_allowlist, last_used_at, created_at, updated_at
		FROM ingestion_tokens
		WHERE prefix = $1`

	var row tokenRow
	if err := sqlx.GetContext(ctx, exec, &row, query, prefix); err != nil {
		if IsNotFoundError(err) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to find token by prefix: %w", err)
	}

	return row.toDomain(), nil
}

// TouchLastUsed best-effort updates last_used_at.
func (r *TokenRepository) TouchLastUsed(ctx context.Context, tokenID int64, at time.Time) error {
	exec := getExecutor(ctx, r.db)

	query := `UPDATE ingestion_tokens SET last_used_at = $2 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, tokenID, at); err != nil {
		return fmt.Errorf("failed to touch token last_used_at: %w", err)
	}
	return nil
}
