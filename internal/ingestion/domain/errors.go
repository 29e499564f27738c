package domain

import "errors"

// Sentinel errors returned by repositories and recognized with errors.Is by
// the application layer. These are deliberately package-local rather than
// pkg/errors.AppError values: repositories speak plain Go errors, and the
// usecase layer is the one place that translates them into the taxonomy
// pkg/errors exposes to the HTTP boundary.
var (
	ErrTokenNotFound     = errors.New("ingestion: token not found")
	ErrWebsiteNotFound   = errors.New("ingestion: website not found")
	ErrIdentityNotFound  = errors.New("ingestion: identity not found")
	ErrCustomerNotFound  = errors.New("ingestion: customer not found")
	ErrSessionNotFound   = errors.New("ingestion: session not found")
	ErrEventNotFound     = errors.New("ingestion: event not found")
	ErrDuplicateEvent    = errors.New("ingestion: idempotency key already processed")
	ErrNoCustomer        = errors.New("ingestion: no customer could be resolved for event")
	ErrLinkAlreadyExists = errors.New("ingestion: identity already linked to a different customer")
)
