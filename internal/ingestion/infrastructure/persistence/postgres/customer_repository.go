package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/originsignal/ingestion/internal/ingestion/domain"
)

type customerRow struct {
	ID           int64          `db:"id"`
	WebsiteID    int64          `db:"website_id"`
	Status       string         `db:"status"`
	EmailHash    sql.NullString `db:"email_hash"`
	FirstTouchID sql.NullInt64  `db:"first_touch_id"`
	LastTouchID  sql.NullInt64  `db:"last_touch_id"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r customerRow) toDomain() *domain.Customer {
	c := &domain.Customer{
		ID:        r.ID,
		WebsiteID: r.WebsiteID,
		Status:    domain.CustomerStatus(r.Status),
		Timestamps: domain.Timestamps{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
	}
	if r.EmailHash.Valid {
		c.EmailHash = &r.EmailHash.String
	}
	if r.FirstTouchID.Valid {
		c.FirstTouchID = &r.FirstTouchID.Int64
	}
	if r.LastTouchID.Valid {
		c.LastTouchID = &r.LastTouchID.Int64
	}
	return c
}

// CustomerRepository implements domain.CustomerRepository for PostgreSQL.
type CustomerRepository struct {
	db *sqlx.DB
}

// NewCustomerRepository creates a new CustomerRepository.
func NewCustomerRepository(db *sqlx.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// FindByID loads a customer by id.
func (r *CustomerRepository) FindByID(ctx context.Context, websiteID domain.WebsiteID, id int64) (*domain.Customer, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		SELECT id, website_id, status, email_hash, first_touch_id, last_touch_id, created_at, updated_at
		FROM customers
		WHERE website_id = $1 AND id = $2`

	var row customerRow
	if err := sqlx.GetContext(ctx, exec, &row, query, websiteID, id); err != nil {
		if IsNotFoundError(err) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to find customer by id: %w", err)
	}

	return row.toDomain(), nil
}

// FindByEmailHash implements the email cross-match lookup.
func (r *CustomerRepository) FindByEmailHash(ctx context.Context, websiteID domain.WebsiteID, emailHash string) (*domain.Customer, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		SELECT id, website_id, status, email_hash, first_touch_id, last_touch_id, created_at, updated_at
		FROM customers
		WHERE website_id = $1 AND email_hash = $2
		ORDER BY created_at ASC
		LIMIT 1`

	var row customerRow
	if err := sqlx.GetContext(ctx, exec, &row, query, websiteID, emailHash); err != nil {
		if IsNotFoundError(err) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to find customer by email hash: %w", err)
	}

	return row.toDomain(), nil
}

// Create inserts a new customer, assigning its ID.
func (r *CustomerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	exec := getExecutor(ctx, r.db)

	query := `
		INSERT INTO customers (website_id, status, email_hash, first_touch_id, last_touch_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return sqlx.GetContext(ctx, exec, &customer.ID, query,
		customer.WebsiteID, string(customer.Status), customer.EmailHash,
		customer.FirstTouchID, customer.LastTouchID,
		customer.CreatedAt, customer.UpdatedAt,
	)
}

// UpdateTouches persists the customer's first/last touch ids.
func (r *CustomerRepository) UpdateTouches(ctx context.Context, customer *domain.Customer) error {
	exec := getExecutor(ctx, r.db)

	query := `
		UPDATE customers
		SET first_touch_id = $2, last_touch_id = $3, updated_at = $4
		WHERE id = $1`

	_, err := exec.ExecContext(ctx, query, customer.ID, customer.FirstTouchID, customer.LastTouchID, customer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update customer touches: %w", err)
	}
	return nil
}

// customerIdentityLinkRow mirrors customer_identity_links.
type customerIdentityLinkRow struct {
	CustomerID int64     `db:"customer_id"`
	IdentityID int64     `db:"identity_id"`
	Confidence float64   `db:"confidence"`
	Source     string    `db:"source"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r customerIdentityLinkRow) toDomain() *domain.CustomerIdentityLink {
	return &domain.CustomerIdentityLink{
		CustomerID: r.CustomerID,
		IdentityID: r.IdentityID,
		Confidence: r.Confidence,
		Source:     domain.LinkSource(r.Source),
		Timestamps: domain.Timestamps{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
	}
}

// CustomerIdentityLinkRepository implements domain.CustomerIdentityLinkRepository
// for PostgreSQL.
type CustomerIdentityLinkRepository struct {
	db *sqlx.DB
}

// NewCustomerIdentityLinkRepository creates a new CustomerIdentityLinkRepository.
func NewCustomerIdentityLinkRepository(db *sqlx.DB) *CustomerIdentityLinkRepository {
	return &CustomerIdentityLinkRepository{db: db}
}

// FindByIdentityID returns the link owning an identity, if any.
func (r *CustomerIdentityLinkRepository) FindByIdentityID(ctx context.Context, identityID int64) (*domain.CustomerIdentityLink, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		SELECT customer_id, identity_id, confidence, source, created_at, updated_at
		FROM customer_identity_links
		WHERE identity_id = $1`

	var row customerIdentityLinkRow
	if err := sqlx.GetContext(ctx, exec, &row, query, identityID); err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find customer identity link: %w", err)
	}

	return row.toDomain(), nil
}

// Create inserts a new link row.
func (r *CustomerIdentityLinkRepository) Create(ctx context.Context, link *domain.CustomerIdentityLink) error {
	exec := getExecutor(ctx, r.db)

	query := `
		INSERT INTO customer_identity_links (customer_id, identity_id, confidence, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := exec.ExecContext(ctx, query,
		link.CustomerID, link.IdentityID, link.Confidence, string(link.Source),
		link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.ErrLinkAlreadyExists
		}
		return fmt.Errorf("failed to create customer identity link: %w", err)
	}
	return nil
}

// FindRecentByIP supports IP-based cookie stitching: the most recent
// identity link observed from this IP within the window, excluding the
// given identity itself.
func (r *CustomerIdentityLinkRepository) FindRecentByIP(ctx context.Context, websiteID domain.WebsiteID, ip string, excludeIdentityID int64, since time.Time) (*domain.CustomerIdentityLink, error) {
	exec := getExecutor(ctx, r.db)

	query := `
		SELECT l.customer_id, l.identity_id, l.confidence, l.source, l.created_at, l.updated_at
		FROM customer_identity_links l
		JOIN sessions s ON s.customer_id = l.customer_id
		WHERE s.website_id = $1
		  AND s.ip = $2
		  AND l.identity_id != $3
		  AND l.created_at >= $4
		ORDER BY l.created_at DESC
		LIMIT 1`

	var row customerIdentityLinkRow
	if err := sqlx.GetContext(ctx, exec, &row, query, websiteID, ip, excludeIdentityID, since); err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find recent customer identity link by ip: %w", err)
	}

	return row.toDomain(), nil
}
