package domain

import "time"

// TouchType classifies why a Touch was recorded (§3, §4.7). Only "landing"
// is ever inserted by C7 — a session gets at most one landing touch, reused
// for the rest of the session's life; the other enum members name touch
// kinds the data model allows for but this pipeline does not itself create.
type TouchType string

const (
	TouchTypeLanding   TouchType = "landing"
	TouchTypeAdClick   TouchType = "ad_click"
	TouchTypeEmailOpen TouchType = "email_open"
	TouchTypeReferral  TouchType = "referral"
	TouchTypeOrganic   TouchType = "organic"
	TouchTypeDirect    TouchType = "direct"
)

// Touch is a marketing-attribution checkpoint: a point at which a customer
// arrived carrying campaign context (§3, GLOSSARY). Exactly one landing
// touch is created per session; later events in the same session reuse it
// rather than appending a new row (§4.7).
type Touch struct {
	ID               int64
	WebsiteID        WebsiteID
	CustomerID       int64
	SessionID        int64
	Type             TouchType
	OccurredAt       time.Time
	ReferrerDomainID *int64
	LandingPageID    *int64
	Timestamps
}

// NewTouch constructs a Touch.
func NewTouch(websiteID WebsiteID, customerID, sessionID int64, touchType TouchType, occurredAt time.Time) *Touch {
	return &Touch{
		WebsiteID:  websiteID,
		CustomerID: customerID,
		SessionID:  sessionID,
		Type:       touchType,
		OccurredAt: occurredAt,
		Timestamps: newTimestamps(),
	}
}

// WithDimensions attaches the interned referrer-domain and landing-page ids
// resolved by C4, when applicable to this touch's type.
func (t *Touch) WithDimensions(referrerDomainID, landingPageID *int64) *Touch {
	t.ReferrerDomainID = referrerDomainID
	t.LandingPageID = landingPageID
	return t
}
