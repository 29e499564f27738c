// Package dto holds the wire-level request/response shapes for the
// ingestion HTTP surface (§4.2, §6). These are deliberately separate from
// internal/ingestion/domain types: the domain speaks in resolved,
// already-normalized values (hashed identities, interned dimension ids),
// while the DTOs speak in whatever a tracking SDK actually sends.
package dto

import "encoding/json"

// TrackEventRequest is the body of POST /api/tracking/events, per §4.2.
// Field validation tags mirror the per-field rules verbatim; the handler
// runs this through pkg/validator before anything in the pipeline sees it.
type TrackEventRequest struct {
	Event          string                 `json:"event" validate:"required,max=255"`
	Properties     map[string]interface{} `json:"properties,omitempty"`
	CustomerID     string                 `json:"customer_id,omitempty" validate:"omitempty,max=255"`
	Identity       *IdentityDTO           `json:"identity,omitempty" validate:"omitempty,dive"`
	SessionID      string                 `json:"session_id,omitempty"`
	URL            string                 `json:"url,omitempty" validate:"omitempty,max=2048,url"`
	Referrer       string                 `json:"referrer,omitempty" validate:"omitempty,max=2048,url"`
	UTMSource      string                 `json:"utm_source,omitempty" validate:"omitempty,max=255"`
	UTMMedium      string                 `json:"utm_medium,omitempty" validate:"omitempty,max=255"`
	UTMCampaign    string                 `json:"utm_campaign,omitempty" validate:"omitempty,max=255"`
	UTMTerm        string                 `json:"utm_term,omitempty" validate:"omitempty,max=255"`
	UTMContent     string                 `json:"utm_content,omitempty" validate:"omitempty,max=255"`
	Revenue        *float64               `json:"revenue,omitempty" validate:"omitempty,revenue"`
	Currency       string                 `json:"currency,omitempty" validate:"omitempty,len=3,currencycode"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
	Timestamp      string                 `json:"timestamp,omitempty"`

	// RawExtra carries every top-level key not already named above —
	// principally the arbitrary utm_* custom keys §4.4 has to intern. The
	// HTTP handler populates this from the raw JSON body because a typed
	// struct can't otherwise capture an open-ended key set.
	RawExtra map[string]json.RawMessage `json:"-"`
}

// IdentityDTO is the `identity` sub-object, per §4.2.
type IdentityDTO struct {
	Type  string `json:"type" validate:"required,identitytype"`
	Value string `json:"value" validate:"required"`
}

// TrackEventResponse is the 201 body, per §6. Any of the three ids may be
// null when processing is deferred to the queue or when no customer/
// session/event could be resolved (NoCustomer path).
type TrackEventResponse struct {
	Success    bool   `json:"success"`
	EventID    *int64 `json:"event_id"`
	CustomerID *int64 `json:"customer_id"`
	SessionID  *int64 `json:"session_id"`
}

// ValidationErrorResponse is the 400 body, per §6:
// { "success": false, "errors": { field: [msg, ...] } }.
type ValidationErrorResponse struct {
	Success bool                `json:"success"`
	Errors  map[string][]string `json:"errors"`
}

// AuthErrorResponse is the 401/403 body, per §6: { "error", "message" }.
type AuthErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ProcessingErrorResponse is the 500 body, per §6.
type ProcessingErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// HealthResponse is the body of GET /api/tracking/health, per §6.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
