package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/originsignal/ingestion/internal/ingestion/domain"
)

type identityRow struct {
	ID        int64     `db:"id"`
	WebsiteID int64     `db:"website_id"`
	Type      string    `db:"type"`
	ValueHash string    `db:"value_hash"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r identityRow) toDomain() *domain.Identity {
	return &domain.Identity{
		ID:        r.ID,
		WebsiteID: r.WebsiteID,
		Type:      domain.IdentityType(r.Type),
		ValueHash: r.ValueHash,
		Timestamps: domain.Timestamps{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
	}
}

// IdentityRepository implements domain.IdentityRepository for PostgreSQL.
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// FindByHash looks up an identity by its (website, type, value_hash) key.
func (r *IdentityRepository) FindByHash(ctx context.Context, websiteID domain.WebsiteID, identityType domain.IdentityType, valueHash string) (*domain.Identity, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		SELECT id, website_id, type, value_hash, created_at, updated_at
		FROM identities
		WHERE website_id = $1 AND type = $2 AND value_hash = $3`

	var row identityRow
	if err := sqlx.GetContext(ctx, exec, &row, query, websiteID, string(identityType), valueHash); err != nil {
		if IsNotFoundError(err) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to find identity by hash: %w", err)
	}

	return row.toDomain(), nil
}

// Create inserts a new identity, assigning its ID.
func (r *IdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	exec := getExecutor(ctx, r.db)

	query := `
		INSERT INTO identities (website_id, type, value_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return sqlx.GetContext(ctx, exec, &identity.ID, query,
		identity.WebsiteID, string(identity.Type), identity.ValueHash,
		identity.CreatedAt, identity.UpdatedAt,
	)
}
