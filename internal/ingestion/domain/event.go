package domain

import (
	"encoding/json"
	"math"
	"time"
)

// EventType names the kind of tracked behavior (§3, §4.2). The list is
// open-ended at the transport layer (validator only rejects empty string);
// these constants cover the ones the rest of the pipeline reasons about
// (touch creation, conversion detection).
type EventType string

const (
	EventTypePageview   EventType = "pageview"
	EventTypeClick      EventType = "click"
	EventTypeFormSubmit EventType = "form_submit"
	EventTypeConversion EventType = "conversion"
	EventTypeCustom     EventType = "custom"
)

// RevenueToMinorUnits converts a decimal revenue amount to integer minor
// units (cents), rounding half away from zero per §4.9's "revenue_minor =
// round(revenue*100), half-up, not banker's rounding".
func RevenueToMinorUnits(revenue float64) int64 {
	scaled := revenue * 100
	if scaled >= 0 {
		return int64(math.Floor(scaled + 0.5))
	}
	return -int64(math.Floor(-scaled + 0.5))
}

// Event is a single tracked occurrence, the unit C8 persists (§3, §4.8).
// Props carries the caller-supplied event properties verbatim as JSON;
// RevenueMinor/CurrencyCode are set whenever the request carries revenue,
// whatever the event type. OrderID/OrderNumber are set only through
// SetOrder, which the worker pipeline does not call; the order identifiers
// are stored on the Conversion instead.
type Event struct {
	ID              int64
	WebsiteID       WebsiteID
	SessionID       int64
	CustomerID      int64
	Type            EventType
	Name            string
	OccurredAt      time.Time
	IdempotencyKey  string
	Props           json.RawMessage
	RevenueMinor    *int64
	CurrencyCode    *string
	OrderID         *string
	OrderNumber     *string
	Timestamps
}

// NewEvent constructs an Event ready for persistence. occurredAt must
// already be resolved per §4.2 step 4 (the client timestamp when one is
// supplied, else the server's current time).
func NewEvent(websiteID WebsiteID, sessionID, customerID int64, eventType EventType, name string, occurredAt time.Time, idempotencyKey string, props json.RawMessage) *Event {
	return &Event{
		WebsiteID:      websiteID,
		SessionID:      sessionID,
		CustomerID:     customerID,
		Type:           eventType,
		Name:           name,
		OccurredAt:     occurredAt,
		IdempotencyKey: idempotencyKey,
		Props:          props,
		Timestamps:     newTimestamps(),
	}
}

// SetRevenue attaches conversion-revenue fields to the event, per §4.9.
func (e *Event) SetRevenue(revenue float64, currencyCode string) {
	minor := RevenueToMinorUnits(revenue)
	e.RevenueMinor = &minor
	e.CurrencyCode = &currencyCode
}

// SetOrder attaches the order identifiers a conversion event carries, when
// present in props (§4.9).
func (e *Event) SetOrder(orderID, orderNumber string) {
	if orderID != "" {
		e.OrderID = &orderID
	}
	if orderNumber != "" {
		e.OrderNumber = &orderNumber
	}
}

// IsConversion reports whether this event should drive C9's attribution
// logic, per §4.9's trigger condition.
func (e *Event) IsConversion() bool {
	return e.Type == EventTypeConversion
}
