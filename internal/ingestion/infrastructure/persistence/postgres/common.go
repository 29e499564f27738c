// Package postgres contains PostgreSQL repository implementations for the
// ingestion core.
package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// txKey is the context key a transaction is stashed under while the
// worker's C5-C9 pipeline runs (§5's single-transaction boundary).
type txKey struct{}

func getTxFromContext(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

func setTxToContext(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// getExecutor returns the transaction stashed on ctx, falling back to the
// pool itself outside a transaction (e.g. C1's token lookup and C3's
// idempotency pre-check, which run before the worker opens one).
func getExecutor(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx := getTxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}

// IsNotFoundError reports whether err is sql.ErrNoRows.
func IsNotFoundError(err error) bool {
	return err == sql.ErrNoRows
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (23505) — the signal C8/C4 use to detect a concurrent insert
// race rather than a genuine failure.
func IsUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// IsForeignKeyViolation reports whether err is a Postgres foreign-key
// violation (23503).
func IsForeignKeyViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23503"
	}
	return false
}

// IsCheckViolation reports whether err is a Postgres check-constraint
// violation (23514).
func IsCheckViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23514"
	}
	return false
}
