package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/originsignal/ingestion/internal/ingestion/domain"
)

// UnitOfWork implements domain.UnitOfWork. Every repository it returns
// shares the same *sqlx.DB and reads the active transaction off the
// context via getExecutor, so a single Begin/Commit/Rollback cycle covers
// every repository call made with the context Begin returned (§5).
type UnitOfWork struct {
	db *sqlx.DB

	tokens       *TokenRepository
	identities   *IdentityRepository
	customers    *CustomerRepository
	links        *CustomerIdentityLinkRepository
	sessions     *SessionRepository
	referrers    *ReferrerDomainRepository
	landingPages *LandingPageRepository
	utmParams    *CustomUtmParameterRepository
	utmValues    *CustomUtmValueRepository
	trackableUtm *TrackableUtmValueRepository
	events       *EventRepository
	touches      *TouchRepository
	conversions  *ConversionRepository
}

// NewUnitOfWork constructs a UnitOfWork and every repository it fronts.
func NewUnitOfWork(db *sqlx.DB) *UnitOfWork {
	return &UnitOfWork{
		db:           db,
		tokens:       NewTokenRepository(db),
		identities:   NewIdentityRepository(db),
		customers:    NewCustomerRepository(db),
		links:        NewCustomerIdentityLinkRepository(db),
		sessions:     NewSessionRepository(db),
		referrers:    NewReferrerDomainRepository(db),
		landingPages: NewLandingPageRepository(db),
		utmParams:    NewCustomUtmParameterRepository(db),
		utmValues:    NewCustomUtmValueRepository(db),
		trackableUtm: NewTrackableUtmValueRepository(db),
		events:       NewEventRepository(db),
		touches:      NewTouchRepository(db),
		conversions:  NewConversionRepository(db),
	}
}

// Begin opens a read-committed transaction and returns a context carrying
// it. Every repository call made with the returned context runs inside
// this transaction until Commit or Rollback.
func (uow *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	tx, err := uow.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return setTxToContext(ctx, tx), nil
}

// Commit commits the transaction carried by ctx.
func (uow *UnitOfWork) Commit(ctx context.Context) error {
	tx := getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no active transaction in context")
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction carried by ctx.
func (uow *UnitOfWork) Rollback(ctx context.Context) error {
	tx := getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no active transaction in context")
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (uow *UnitOfWork) TokenRepository() domain.TokenRepository { return uow.tokens }
func (uow *UnitOfWork) IdentityRepository() domain.IdentityRepository { return uow.identities }
func (uow *UnitOfWork) CustomerRepository() domain.CustomerRepository { return uow.customers }
func (uow *UnitOfWork) CustomerIdentityLinkRepository() domain.CustomerIdentityLinkRepository {
	return uow.links
}
func (uow *UnitOfWork) SessionRepository() domain.SessionRepository { return uow.sessions }
func (uow *UnitOfWork) ReferrerDomainRepository() domain.ReferrerDomainRepository {
	return uow.referrers
}
func (uow *UnitOfWork) LandingPageRepository() domain.LandingPageRepository { return uow.landingPages }
func (uow *UnitOfWork) CustomUtmParameterRepository() domain.CustomUtmParameterRepository {
	return uow.utmParams
}
func (uow *UnitOfWork) CustomUtmValueRepository() domain.CustomUtmValueRepository { return uow.utmValues }
func (uow *UnitOfWork) TrackableUtmValueRepository() domain.TrackableUtmValueRepository {
	return uow.trackableUtm
}
func (uow *UnitOfWork) EventRepository() domain.EventRepository { return uow.events }
func (uow *UnitOfWork) TouchRepository() domain.TouchRepository { return uow.touches }
func (uow *UnitOfWork) ConversionRepository() domain.ConversionRepository { return uow.conversions }

// Ping checks that the pool can reach the database.
func (uow *UnitOfWork) Ping(ctx context.Context) error {
	return uow.db.PingContext(ctx)
}
