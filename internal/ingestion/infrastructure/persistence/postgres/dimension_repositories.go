package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/originsignal/ingestion/internal/ingestion/domain"
)

// ============================================================================
// Referrer Domain Repository
// ============================================================================

// ReferrerDomainRepository implements domain.ReferrerDomainRepository for
// PostgreSQL.
type ReferrerDomainRepository struct {
	db *sqlx.DB
}

// NewReferrerDomainRepository creates a new ReferrerDomainRepository.
func NewReferrerDomainRepository(db *sqlx.DB) *ReferrerDomainRepository {
	return &ReferrerDomainRepository{db: db}
}

// FindOrCreate upserts on (website, domain) and returns the row's id.
func (r *ReferrerDomainRepository) FindOrCreate(ctx context.Context, domainRow *domain.ReferrerDomain) (int64, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		INSERT INTO referrer_domains (website_id, domain, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (website_id, domain) DO UPDATE SET domain = EXCLUDED.domain
		RETURNING id`

	var id int64
	err := sqlx.GetContext(ctx, exec, &id, query,
		domainRow.WebsiteID, domainRow.Domain, string(domainRow.Category),
		domainRow.CreatedAt, domainRow.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to find or create referrer domain: %w", err)
	}
	return id, nil
}

// ============================================================================
// Landing Page Repository
// ============================================================================

// LandingPageRepository implements domain.LandingPageRepository for
// PostgreSQL.
type LandingPageRepository struct {
	db *sqlx.DB
}

// NewLandingPageRepository creates a new LandingPageRepository.
func NewLandingPageRepository(db *sqlx.DB) *LandingPageRepository {
	return &LandingPageRepository{db: db}
}

// FindOrCreate upserts on (website, path). url_sample is only written when
// the row is newly created; on conflict the existing sample is kept.
func (r *LandingPageRepository) FindOrCreate(ctx context.Context, page *domain.LandingPage) (int64, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		INSERT INTO landing_pages (website_id, path, url_sample, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (website_id, path) DO UPDATE SET path = EXCLUDED.path
		RETURNING id`

	var id int64
	err := sqlx.GetContext(ctx, exec, &id, query,
		page.WebsiteID, page.Path, page.URLSample, page.CreatedAt, page.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to find or create landing page: %w", err)
	}
	return id, nil
}

// ============================================================================
// Custom UTM Parameter Repository
// ============================================================================

// CustomUtmParameterRepository implements domain.CustomUtmParameterRepository
// for PostgreSQL.
type CustomUtmParameterRepository struct {
	db *sqlx.DB
}

// NewCustomUtmParameterRepository creates a new CustomUtmParameterRepository.
func NewCustomUtmParameterRepository(db *sqlx.DB) *CustomUtmParameterRepository {
	return &CustomUtmParameterRepository{db: db}
}

// FindOrCreate upserts on (website, name).
func (r *CustomUtmParameterRepository) FindOrCreate(ctx context.Context, param *domain.CustomUtmParameter) (int64, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		INSERT INTO custom_utm_parameters (website_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (website_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`

	var id int64
	err := sqlx.GetContext(ctx, exec, &id, query,
		param.WebsiteID, param.Name, param.CreatedAt, param.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to find or create custom utm parameter: %w", err)
	}
	return id, nil
}

// ============================================================================
// Custom UTM Value Repository
// ============================================================================

// CustomUtmValueRepository implements domain.CustomUtmValueRepository for
// PostgreSQL.
type CustomUtmValueRepository struct {
	db *sqlx.DB
}

// NewCustomUtmValueRepository creates a new CustomUtmValueRepository.
func NewCustomUtmValueRepository(db *sqlx.DB) *CustomUtmValueRepository {
	return &CustomUtmValueRepository{db: db}
}

// FindOrCreate upserts on (parameter_id, value).
func (r *CustomUtmValueRepository) FindOrCreate(ctx context.Context, value *domain.CustomUtmValue) (int64, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		INSERT INTO custom_utm_values (parameter_id, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (parameter_id, value) DO UPDATE SET value = EXCLUDED.value
		RETURNING id`

	var id int64
	err := sqlx.GetContext(ctx, exec, &id, query,
		value.ParameterID, value.Value, value.CreatedAt, value.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to find or create custom utm value: %w", err)
	}
	return id, nil
}

// ============================================================================
// Trackable UTM Value Repository
// ============================================================================

// TrackableUtmValueRepository implements domain.TrackableUtmValueRepository
// for PostgreSQL.
type TrackableUtmValueRepository struct {
	db *sqlx.DB
}

// NewTrackableUtmValueRepository creates a new TrackableUtmValueRepository.
func NewTrackableUtmValueRepository(db *sqlx.DB) *TrackableUtmValueRepository {
	return &TrackableUtmValueRepository{db: db}
}

// Create inserts a binding row, ignoring conflicts on the unique key.
func (r *TrackableUtmValueRepository) Create(ctx context.Context, binding *domain.TrackableUtmValue) error {
	exec := getExecutor(ctx, r.db)

	query := `
		INSERT INTO trackable_utm_values (trackable_kind, trackable_id, utm_value_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (trackable_kind, trackable_id, utm_value_id) DO NOTHING`

	_, err := exec.ExecContext(ctx, query,
		string(binding.TrackableKind), binding.TrackableID, binding.UtmValueID,
		binding.CreatedAt, binding.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create trackable utm value binding: %w", err)
	}
	return nil
}

// FindByTrackable returns the UTM values bound to one trackable, joined
// through to parameter name and value, keyed by stripped parameter name.
func (r *TrackableUtmValueRepository) FindByTrackable(ctx context.Context, kind domain.TrackableKind, trackableID int64) (domain.UTMSet, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		SELECT p.name AS param_name, v.value AS param_value
		FROM trackable_utm_values t
		JOIN custom_utm_values v ON v.id = t.utm_value_id
		JOIN custom_utm_parameters p ON p.id = v.parameter_id
		WHERE t.trackable_kind = $1 AND t.trackable_id = $2`

	var rows []struct {
		ParamName  string `db:"param_name"`
		ParamValue string `db:"param_value"`
	}
	if err := sqlx.SelectContext(ctx, exec, &rows, query, string(kind), trackableID); err != nil {
		return nil, fmt.Errorf("failed to find utm values by trackable: %w", err)
	}

	set := make(domain.UTMSet, len(rows))
	for _, row := range rows {
		set[row.ParamName] = row.ParamValue
	}
	return set, nil
}
