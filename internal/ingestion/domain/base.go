// Package domain contains the domain layer for the event ingestion and
// identity/attribution core. Unlike the IAM and Customer services, every
// entity here carries an opaque int64 identity assigned by the store (no
// client ever generates one), so there is no BaseAggregateRoot/domain-event
// machinery to reconstruct from persistence — entities are plain structs
// with a thin set of invariant-checking constructors.
package domain

import "time"

// WebsiteID identifies the tenant boundary every entity in this package is
// scoped to. Websites themselves are created and administered outside this
// core (see package-level doc); we only ever reference the id.
type WebsiteID = int64

// Timestamps holds the CreatedAt/UpdatedAt pair every row carries. Entities
// that are strictly insert-only (Event, Touch, Conversion) set both to the
// same construction time.
type Timestamps struct {
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func newTimestamps() Timestamps {
	now := time.Now().UTC()
	return Timestamps{CreatedAt: now, UpdatedAt: now}
}
