package postgres

import (
	"context"
	"flag"
	"os"
	"testing"
	"time"

	"github.com/originsignal/ingestion/internal/ingestion/domain"
	"github.com/originsignal/ingestion/pkg/testing/containers"
	"github.com/originsignal/ingestion/pkg/testing/helpers"
)

var (
	testDB  *containers.PostgresContainer
	testUOW *UnitOfWork
)

// TestMain spins up (or attaches to) a PostgreSQL instance and applies the
// ingestion schema once for the whole package's integration tests.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	testDB, err = containers.NewPostgresContainer(ctx, containers.DefaultPostgresConfig())
	if err != nil {
		panic("failed to connect to test PostgreSQL: " + err.Error())
	}

	if err := testDB.RunMigrations(ctx, "../../../../../migrations"); err != nil {
		panic("failed to run migrations: " + err.Error())
	}

	testUOW = NewUnitOfWork(testDB.DB)

	code := m.Run()

	if testDB != nil {
		testDB.Close()
	}
	os.Exit(code)
}

func setupTest(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	helpers.SkipIfShort(t)
	return helpers.DefaultTestContext()
}

func cleanupTest(t *testing.T) {
	t.Helper()
	_ = testDB.TruncateTables(context.Background(),
		"conversions", "touches", "events", "sessions", "trackable_utm_values",
		"custom_utm_values", "custom_utm_parameters", "landing_pages",
		"referrer_domains", "customer_identity_links", "customers", "identities",
		"ingestion_tokens")
}

func insertTestToken(t *testing.T, ctx context.Context, websiteID domain.WebsiteID, prefix, hash string) int64 {
	t.Helper()
	var id int64
	err := testDB.DB.GetContext(ctx, &id, `
		INSERT INTO ingestion_tokens (website_id, prefix, hash)
		VALUES ($1, $2, $3)
		RETURNING id`, websiteID, prefix, hash)
	helpers.RequireNoError(t, err, "failed to insert test token")
	return id
}

func TestTokenRepository_FindByPrefix(t *testing.T) {
	ctx, cancel := setupTest(t)
	defer cancel()
	defer cleanupTest(t)

	insertTestToken(t, ctx, 1, "tok_abc123", "hashed-secret")

	token, err := testUOW.TokenRepository().FindByPrefix(ctx, "tok_abc123")
	helpers.RequireNoError(t, err)
	helpers.AssertEqual(t, domain.WebsiteID(1), token.WebsiteID)
	helpers.AssertEqual(t, "hashed-secret", token.Hash)
}

func TestTokenRepository_FindByPrefix_NotFound(t *testing.T) {
	ctx, cancel := setupTest(t)
	defer cancel()
	defer cleanupTest(t)

	_, err := testUOW.TokenRepository().FindByPrefix(ctx, "tok_missing")
	helpers.AssertErrorContains(t, err, domain.ErrTokenNotFound.Error())
}

func TestTokenRepository_TouchLastUsed(t *testing.T) {
	ctx, cancel := setupTest(t)
	defer cancel()
	defer cleanupTest(t)

	insertTestToken(t, ctx, 1, "tok_touch", "hashed-secret")

	now := time.Now().UTC().Truncate(time.Second)
	token, err := testUOW.TokenRepository().FindByPrefix(ctx, "tok_touch")
	helpers.RequireNoError(t, err)

	err = testUOW.TokenRepository().TouchLastUsed(ctx, token.ID, now)
	helpers.RequireNoError(t, err)

	refreshed, err := testUOW.TokenRepository().FindByPrefix(ctx, "tok_touch")
	helpers.RequireNoError(t, err)
	helpers.RequireNotNil(t, refreshed.LastUsedAt)
	helpers.AssertTrue(t, refreshed.LastUsedAt.Equal(now))
}

// TestUnitOfWork_RollbackDiscardsWrites exercises the transaction boundary
// the worker pipeline relies on: a rollback after a write inside Begin/
// Rollback must leave no trace once the context is discarded.
func TestUnitOfWork_RollbackDiscardsWrites(t *testing.T) {
	ctx, cancel := setupTest(t)
	defer cancel()
	defer cleanupTest(t)

	txCtx, err := testUOW.Begin(ctx)
	helpers.RequireNoError(t, err)

	_, err = getExecutor(txCtx, testDB.DB).ExecContext(txCtx, `
		INSERT INTO ingestion_tokens (website_id, prefix, hash) VALUES ($1, $2, $3)`,
		1, "tok_rollback", "hashed-secret")
	helpers.RequireNoError(t, err)

	helpers.RequireNoError(t, testUOW.Rollback(txCtx))

	_, err = testUOW.TokenRepository().FindByPrefix(ctx, "tok_rollback")
	helpers.AssertErrorContains(t, err, domain.ErrTokenNotFound.Error())
}

// TestUnitOfWork_CommitPersistsWrites is the commit-path counterpart.
func TestUnitOfWork_CommitPersistsWrites(t *testing.T) {
	ctx, cancel := setupTest(t)
	defer cancel()
	defer cleanupTest(t)

	txCtx, err := testUOW.Begin(ctx)
	helpers.RequireNoError(t, err)

	_, err = getExecutor(txCtx, testDB.DB).ExecContext(txCtx, `
		INSERT INTO ingestion_tokens (website_id, prefix, hash) VALUES ($1, $2, $3)`,
		1, "tok_commit", "hashed-secret")
	helpers.RequireNoError(t, err)

	helpers.RequireNoError(t, testUOW.Commit(txCtx))

	token, err := testUOW.TokenRepository().FindByPrefix(ctx, "tok_commit")
	helpers.RequireNoError(t, err)
	helpers.AssertEqual(t, "tok_commit", token.Prefix)
}

func TestUnitOfWork_Ping(t *testing.T) {
	ctx, cancel := setupTest(t)
	defer cancel()
	helpers.RequireNoError(t, testUOW.Ping(ctx))
}

func insertTestCustomer(t *testing.T, ctx context.Context, websiteID domain.WebsiteID) int64 {
	t.Helper()
	var id int64
	err := testDB.DB.GetContext(ctx, &id, `
		INSERT INTO customers (website_id) VALUES ($1) RETURNING id`, websiteID)
	helpers.RequireNoError(t, err, "failed to insert test customer")
	return id
}

func insertTestSession(t *testing.T, ctx context.Context, websiteID domain.WebsiteID, customerID int64, startedAt time.Time) int64 {
	t.Helper()
	var id int64
	err := testDB.DB.GetContext(ctx, &id, `
		INSERT INTO sessions (website_id, customer_id, started_at) VALUES ($1, $2, $3) RETURNING id`,
		websiteID, customerID, startedAt)
	helpers.RequireNoError(t, err, "failed to insert test session")
	return id
}

func insertTestEvent(t *testing.T, ctx context.Context, websiteID domain.WebsiteID, sessionID, customerID int64, idempotencyKey string) int64 {
	t.Helper()
	var id int64
	err := testDB.DB.GetContext(ctx, &id, `
		INSERT INTO events (website_id, session_id, customer_id, type, name, occurred_at, idempotency_key)
		VALUES ($1, $2, $3, 'pageview', 'purchase', now(), $4)
		RETURNING id`, websiteID, sessionID, customerID, idempotencyKey)
	helpers.RequireNoError(t, err, "failed to insert test event")
	return id
}

// TestConversionRepository_Create_NullsEmptyUTMSets verifies utm_current and
// the other UTM snapshot columns are stored as JSON null, not {}, when no
// UTM values were resolved (Testable Scenario 3).
func TestConversionRepository_Create_NullsEmptyUTMSets(t *testing.T) {
	ctx, cancel := setupTest(t)
	defer cancel()
	defer cleanupTest(t)

	websiteID := domain.WebsiteID(1)
	customerID := insertTestCustomer(t, ctx, websiteID)
	sessionID := insertTestSession(t, ctx, websiteID, customerID, time.Now().UTC())
	eventID := insertTestEvent(t, ctx, websiteID, sessionID, customerID, "idem-null-utm")

	conversion := domain.NewConversion(websiteID, eventID, customerID, time.Now().UTC())
	conversion.ResolveAttribution(nil, nil, nil, nil, nil, nil)

	helpers.RequireNoError(t, testUOW.ConversionRepository().Create(ctx, conversion))

	var raw struct {
		UTMCurrent     []byte `db:"utm_current"`
		UTMAttribution []byte `db:"utm_attribution"`
	}
	err := testDB.DB.GetContext(ctx, &raw, `SELECT utm_current, utm_attribution FROM conversions WHERE id = $1`, conversion.ID)
	helpers.RequireNoError(t, err)
	helpers.AssertEqual(t, "null", string(raw.UTMCurrent))
	helpers.AssertEqual(t, "null", string(raw.UTMAttribution))
}
