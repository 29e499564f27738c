package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/originsignal/ingestion/internal/ingestion/application/dto"
	"github.com/originsignal/ingestion/internal/ingestion/application/ports"
	"github.com/originsignal/ingestion/internal/ingestion/domain"
	apperrors "github.com/originsignal/ingestion/pkg/errors"
	"github.com/originsignal/ingestion/pkg/logger"
)

// EventPayload is the normalized, queue-ready shape of a tracking request:
// everything the worker's C5-C9 pipeline needs, with §4.2's defaulting
// already applied (idempotency key generated, timestamp resolved). This is
// what IngestEventUseCase marshals into ports.EventJob.Payload.
type EventPayload struct {
	WebsiteID      domain.WebsiteID       `json:"website_id"`
	TokenID        int64                  `json:"token_id"`
	EventName      string                 `json:"event"`
	Properties     map[string]interface{} `json:"properties,omitempty"`
	CustomerID     string                 `json:"customer_id,omitempty"`
	IdentityType   string                 `json:"identity_type,omitempty"`
	IdentityValue  string                 `json:"identity_value,omitempty"`
	SessionID      string                 `json:"session_id,omitempty"`
	URL            string                 `json:"url,omitempty"`
	Referrer       string                 `json:"referrer,omitempty"`
	UTMs           map[string]string      `json:"utms,omitempty"`
	Revenue        *float64               `json:"revenue,omitempty"`
	Currency       string                 `json:"currency,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key"`
	OccurredAt     time.Time              `json:"occurred_at"`
	ClientIP       string                 `json:"client_ip"`
	UserAgent      string                 `json:"user_agent"`
}

// IngestEventUseCase implements the synchronous half of the pipeline: the
// remainder of C2's validation that can't be expressed as struct tags, C3's
// idempotency pre-check, and handing the normalized payload to the queue
// (§2's flow: "C1 -> C2 -> C3 (duplicate => return prior event id) ->
// enqueue job").
type IngestEventUseCase struct {
	events ports.EventQueue
	eventRepo domain.EventRepository
	clock  ports.Clock
	maxPropertyBytes int
}

// NewIngestEventUseCase constructs the use case.
func NewIngestEventUseCase(events ports.EventQueue, eventRepo domain.EventRepository, clock ports.Clock, maxPropertyBytes int) *IngestEventUseCase {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &IngestEventUseCase{events: events, eventRepo: eventRepo, clock: clock, maxPropertyBytes: maxPropertyBytes}
}

// Execute validates the remaining §4.2 rules, short-circuits an already
// processed idempotency key, and otherwise enqueues the job for the worker.
func (uc *IngestEventUseCase) Execute(ctx context.Context, token *domain.IngestionToken, req dto.TrackEventRequest, clientIP, userAgent string) (*dto.TrackEventResponse, error) {
	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	occurredAt, err := resolveTimestamp(req.Timestamp, uc.clock.Now())
	if err != nil {
		return nil, apperrors.ErrValidation("timestamp must be a parseable ISO-8601 value").WithField("timestamp", err.Error())
	}

	if uc.maxPropertyBytes > 0 && len(req.Properties) > 0 {
		raw, err := json.Marshal(req.Properties)
		if err == nil && len(raw) > uc.maxPropertyBytes {
			return nil, apperrors.ErrValidation("properties payload too large").
				WithField("properties", fmt.Sprintf("exceeds %d byte limit", uc.maxPropertyBytes))
		}
	}

	// C3 pre-check: a prior request with the same key already produced an
	// Event row. Return its ids without touching the queue (§4.3).
	existing, err := uc.eventRepo.FindByIdempotencyKey(ctx, idempotencyKey)
	if err != nil && !errors.Is(err, domain.ErrEventNotFound) {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to check idempotency key")
	}
	if existing != nil {
		logger.FromContext(ctx).Info().
			Int64("website_id", token.WebsiteID).
			Str("idempotency_key", idempotencyKey).
			Str("step", "C3").
			Msg("duplicate idempotency key, returning prior event")
		return duplicateResponse(existing), nil
	}

	payload := buildPayload(token, req, idempotencyKey, occurredAt, clientIP, userAgent)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to encode event payload")
	}

	job := ports.EventJob{
		WebsiteID:      token.WebsiteID,
		IdempotencyKey: idempotencyKey,
		Payload:        body,
		EnqueuedAt:     uc.clock.Now(),
		Attempt:        0,
	}

	if err := uc.events.Enqueue(ctx, job); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeQueuePublish, "failed to enqueue event for processing")
	}

	// The synchronous path returns after enqueue (§2, §5); ids are resolved
	// asynchronously by the worker.
	return &dto.TrackEventResponse{Success: true}, nil
}

func duplicateResponse(event *domain.Event) *dto.TrackEventResponse {
	eventID := event.ID
	resp := &dto.TrackEventResponse{Success: true, EventID: &eventID}
	if event.SessionID != 0 {
		sessionID := event.SessionID
		resp.SessionID = &sessionID
	}
	if event.CustomerID != 0 {
		customerID := event.CustomerID
		resp.CustomerID = &customerID
	}
	return resp
}

func buildPayload(token *domain.IngestionToken, req dto.TrackEventRequest, idempotencyKey string, occurredAt time.Time, clientIP, userAgent string) EventPayload {
	payload := EventPayload{
		WebsiteID:      token.WebsiteID,
		TokenID:        token.ID,
		EventName:      req.Event,
		Properties:     req.Properties,
		CustomerID:     req.CustomerID,
		SessionID:      req.SessionID,
		URL:            req.URL,
		Referrer:       req.Referrer,
		Revenue:        req.Revenue,
		Currency:       req.Currency,
		IdempotencyKey: idempotencyKey,
		OccurredAt:     occurredAt,
		ClientIP:       clientIP,
		UserAgent:      userAgent,
	}

	if req.Identity != nil {
		payload.IdentityType = req.Identity.Type
		payload.IdentityValue = req.Identity.Value
	}

	payload.UTMs = collectUTMs(req)

	return payload
}

// collectUTMs gathers the five standard UTM fields plus any top-level
// utm_* custom keys carried in RawExtra, per §4.4: "for every top-level key
// starting with utm_ whose value is a non-empty string, strip the utm_
// prefix". Standard keys are already split out onto the DTO by name; custom
// keys only exist in RawExtra since the DTO has no field for them.
func collectUTMs(req dto.TrackEventRequest) map[string]string {
	utms := make(map[string]string)
	standard := map[string]string{
		"source":   req.UTMSource,
		"medium":   req.UTMMedium,
		"campaign": req.UTMCampaign,
		"term":     req.UTMTerm,
		"content":  req.UTMContent,
	}
	for name, value := range standard {
		if value != "" {
			utms[name] = value
		}
	}

	for key, raw := range req.RawExtra {
		name, ok := stripUTMPrefix(key)
		if !ok {
			continue
		}
		if _, known := standard[name]; known {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil || value == "" {
			continue
		}
		utms[name] = value
	}

	if len(utms) == 0 {
		return nil
	}
	return utms
}

func stripUTMPrefix(key string) (string, bool) {
	const prefix = "utm_"
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", false
	}
	return key[len(prefix):], true
}

// resolveTimestamp parses an ISO-8601 client timestamp, defaulting to now
// when absent, per §4.2.
func resolveTimestamp(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now.UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", raw)
}
