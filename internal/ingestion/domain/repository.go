// Package domain contains the domain layer for the ingestion core.
package domain

import (
	"context"
	"time"
)

// ============================================================================
// Token Repository
// ============================================================================

// TokenRepository defines persistence operations for IngestionToken (C1).
type TokenRepository interface {
	// FindByPrefix looks up a token by its public prefix. Revoked and expired
	// tokens are returned too; the caller decides what to do with them.
	FindByPrefix(ctx context.Context, prefix string) (*IngestionToken, error)

	// TouchLastUsed best-effort updates last_used_at. Callers that have a
	// Redis write-behind layer in front of this may call it far less often
	// than once per request.
	TouchLastUsed(ctx context.Context, tokenID int64, at time.Time) error
}

// ============================================================================
// Identity Repository
// ============================================================================

// IdentityRepository defines persistence operations for Identity (C5).
type IdentityRepository interface {
	// FindByHash looks up an identity by its (website, type, value_hash) key.
	FindByHash(ctx context.Context, websiteID WebsiteID, identityType IdentityType, valueHash string) (*Identity, error)

	// Create inserts a new identity, assigning its ID.
	Create(ctx context.Context, identity *Identity) error
}

// ============================================================================
// Customer Repository
// ============================================================================

// CustomerRepository defines persistence operations for Customer (C5, C7).
type CustomerRepository interface {
	// FindByID loads a customer by id.
	FindByID(ctx context.Context, websiteID WebsiteID, id int64) (*Customer, error)

	// FindByEmailHash implements §4.5 step 3's email cross-match lookup.
	FindByEmailHash(ctx context.Context, websiteID WebsiteID, emailHash string) (*Customer, error)

	// Create inserts a new customer, assigning its ID.
	Create(ctx context.Context, customer *Customer) error

	// UpdateTouches persists the customer's first/last touch ids (§4.7).
	UpdateTouches(ctx context.Context, customer *Customer) error
}

// CustomerIdentityLinkRepository defines persistence operations for
// CustomerIdentityLink (C5).
type CustomerIdentityLinkRepository interface {
	// FindByIdentityID returns the link owning an identity, if any.
	FindByIdentityID(ctx context.Context, identityID int64) (*CustomerIdentityLink, error)

	// Create inserts a new link row.
	Create(ctx context.Context, link *CustomerIdentityLink) error

	// FindRecentByIP supports §4.5 step 4's IP-based cookie stitching: the
	// most recent identity link observed from this IP within the window,
	// excluding the given identity itself.
	FindRecentByIP(ctx context.Context, websiteID WebsiteID, ip string, excludeIdentityID int64, since time.Time) (*CustomerIdentityLink, error)
}

// ============================================================================
// Session Repository
// ============================================================================

// SessionRepository defines persistence operations for Session (C6).
type SessionRepository interface {
	// FindByID loads a session the request explicitly named by id, scoped
	// to the website (§4.6's "client-supplied session_id" path). Returns
	// nil, nil when the id doesn't resolve — a stale or forged session_id
	// is a cache miss, not a failure.
	FindByID(ctx context.Context, websiteID WebsiteID, id int64) (*Session, error)

	// FindActiveByCustomer loads the customer's most recent session for
	// reuse evaluation (§4.6), locking the row against concurrent
	// sessionizer runs for the same customer within the worker transaction.
	// Returns nil, nil when the customer has no session at all yet.
	FindActiveByCustomer(ctx context.Context, websiteID WebsiteID, customerID int64) (*Session, error)

	// Create inserts a new session, assigning its ID.
	Create(ctx context.Context, session *Session) error

	// Close persists a session's ended_at.
	Close(ctx context.Context, session *Session) error
}

// ============================================================================
// Dimension Repositories
// ============================================================================

// ReferrerDomainRepository interns ReferrerDomain rows (C4).
type ReferrerDomainRepository interface {
	// FindOrCreate upserts on (website, domain) and returns the row's id.
	FindOrCreate(ctx context.Context, domain *ReferrerDomain) (int64, error)
}

// LandingPageRepository interns LandingPage rows (C4).
type LandingPageRepository interface {
	// FindOrCreate upserts on (website, path). The url_sample on page is
	// only written when the row is newly created (§4.4).
	FindOrCreate(ctx context.Context, page *LandingPage) (int64, error)
}

// CustomUtmParameterRepository interns CustomUtmParameter rows (C4).
type CustomUtmParameterRepository interface {
	// FindOrCreate upserts on (website, name).
	FindOrCreate(ctx context.Context, param *CustomUtmParameter) (int64, error)
}

// CustomUtmValueRepository interns CustomUtmValue rows (C4).
type CustomUtmValueRepository interface {
	// FindOrCreate upserts on (parameter_id, value).
	FindOrCreate(ctx context.Context, value *CustomUtmValue) (int64, error)
}

// TrackableUtmValueRepository binds trackables to their resolved UTM values
// (C4).
type TrackableUtmValueRepository interface {
	// Create inserts a binding row, ignoring conflicts on the unique key.
	Create(ctx context.Context, binding *TrackableUtmValue) error

	// FindByTrackable returns the UTM values bound to one trackable, joined
	// through to parameter name and value, keyed by stripped parameter name.
	FindByTrackable(ctx context.Context, kind TrackableKind, trackableID int64) (UTMSet, error)
}

// ============================================================================
// Event Repository
// ============================================================================

// EventRepository defines persistence operations for Event (C3, C8).
type EventRepository interface {
	// ExistsByIdempotencyKey reports whether an event with this key is
	// already committed. (C3's pre-check and TOCTOU re-check go through
	// FindByIdempotencyKey instead, since they need the existing ids.)
	// idempotency_key carries a global uniqueness constraint (§4.3), not one
	// scoped per website.
	ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error)

	// FindByIdempotencyKey returns the event already committed for this key,
	// so a duplicate request can report its ids instead of reprocessing
	// (§4.3: "all others return the id of that row").
	FindByIdempotencyKey(ctx context.Context, key string) (*Event, error)

	// Create inserts a new event. Implementations translate the database's
	// unique-constraint violation on idempotency_key into ErrDuplicateEvent
	// so the caller never has to special-case a driver error type.
	Create(ctx context.Context, event *Event) error

	// UpdateCustomerID rebinds an event to a customer resolved after the
	// row was tentatively created (§4.8's permitted-but-unused path).
	UpdateCustomerID(ctx context.Context, eventID, customerID int64) error
}

// ============================================================================
// Touch Repository
// ============================================================================

// TouchRepository defines persistence operations for Touch (C7).
type TouchRepository interface {
	// Create inserts a new touch, assigning its ID.
	Create(ctx context.Context, touch *Touch) error

	// FindByID loads a touch by id, e.g. to resolve a customer's stored
	// first_touch_id back to its UTM snapshot for C9. Returns nil, nil
	// when the id doesn't resolve.
	FindByID(ctx context.Context, id int64) (*Touch, error)

	// FindLandingBySession returns the session's landing touch, if one was
	// already recorded, so C7 can decide whether to create one (§4.7:
	// "exactly one landing touch is created per session").
	FindLandingBySession(ctx context.Context, sessionID int64) (*Touch, error)

	// FindFirstByCustomer returns the customer's first-ever touch.
	FindFirstByCustomer(ctx context.Context, customerID int64) (*Touch, error)

	// FindLastNonDirectByCustomer returns the customer's most recent
	// non-direct touch as of a point in time, for §4.9's utm_last input.
	FindLastNonDirectByCustomer(ctx context.Context, customerID int64, before time.Time) (*Touch, error)

	// FindBySession returns the most recent touch recorded in a session, for
	// §4.9's utm_current input.
	FindBySession(ctx context.Context, sessionID int64) (*Touch, error)
}

// ============================================================================
// Conversion Repository
// ============================================================================

// ConversionRepository defines persistence operations for Conversion (C9).
type ConversionRepository interface {
	// Create inserts a new conversion record.
	Create(ctx context.Context, conversion *Conversion) error
}

// ============================================================================
// Unit of Work (for transaction management)
// ============================================================================

// UnitOfWork defines the interface for managing the single transaction the
// worker's C5→C4→C6→C8→C7→C9 pipeline runs inside (§5).
type UnitOfWork interface {
	// Begin starts a new transaction and returns a context carrying it.
	Begin(ctx context.Context) (context.Context, error)

	// Commit commits the current transaction.
	Commit(ctx context.Context) error

	// Rollback rolls back the current transaction.
	Rollback(ctx context.Context) error

	TokenRepository() TokenRepository
	IdentityRepository() IdentityRepository
	CustomerRepository() CustomerRepository
	CustomerIdentityLinkRepository() CustomerIdentityLinkRepository
	SessionRepository() SessionRepository
	ReferrerDomainRepository() ReferrerDomainRepository
	LandingPageRepository() LandingPageRepository
	CustomUtmParameterRepository() CustomUtmParameterRepository
	CustomUtmValueRepository() CustomUtmValueRepository
	TrackableUtmValueRepository() TrackableUtmValueRepository
	EventRepository() EventRepository
	TouchRepository() TouchRepository
	ConversionRepository() ConversionRepository
}
