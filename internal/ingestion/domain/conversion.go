package domain

import "time"

// AttributionModel names the attribution rule applied to a Conversion.
// "last_non_direct" is the only model this revision implements (§4.9,
// Non-goals: "no first-click, linear, or time-decay attribution models").
type AttributionModel string

const AttributionModelLastNonDirect AttributionModel = "last_non_direct"

// Conversion is the attributed record produced when a conversion-shaped
// event is processed (§3, §4.9). UTMCurrent/UTMLast/UTMFirst snapshot the
// resolved UTM sets at the three points in the customer's journey the
// priority rule considers; UTMAttribution is whichever of the three the
// rule selected.
type Conversion struct {
	ID                  int64
	WebsiteID           WebsiteID
	EventID             int64
	CustomerID          int64
	OccurredAt          time.Time
	RevenueMinor        *int64
	CurrencyCode        *string
	OrderID             *string
	OrderNumber         *string
	FirstTouchID        *int64
	LastNonDirectTouchID *int64
	AttributedTouchID   *int64
	AttributionModel    AttributionModel
	UTMCurrent          UTMSet
	UTMLast             UTMSet
	UTMFirst            UTMSet
	UTMAttribution      UTMSet
	Timestamps
}

// NewConversion constructs a Conversion record. The UTM and touch-id fields
// are populated by the attributor (C9) after applying the priority rule.
func NewConversion(websiteID WebsiteID, eventID, customerID int64, occurredAt time.Time) *Conversion {
	return &Conversion{
		WebsiteID:        websiteID,
		EventID:          eventID,
		CustomerID:       customerID,
		OccurredAt:       occurredAt,
		AttributionModel: AttributionModelLastNonDirect,
		Timestamps:       newTimestamps(),
	}
}

// ResolveAttribution applies §4.9's priority rule — "utm_current if
// present, else utm_last, else utm_first" — and records which of the three
// was selected as utm_attribution along with the touch id it came from.
func (c *Conversion) ResolveAttribution(current, last, first UTMSet, currentTouchID, lastNonDirectTouchID, firstTouchID *int64) {
	c.UTMCurrent = current
	c.UTMLast = last
	c.UTMFirst = first
	c.FirstTouchID = firstTouchID
	c.LastNonDirectTouchID = lastNonDirectTouchID

	switch {
	case !current.IsEmpty():
		c.UTMAttribution = current
		c.AttributedTouchID = currentTouchID
	case !last.IsEmpty():
		c.UTMAttribution = last
		c.AttributedTouchID = lastNonDirectTouchID
	default:
		c.UTMAttribution = first
		c.AttributedTouchID = firstTouchID
	}
}

// SetRevenue attaches the revenue fields carried over from the triggering
// event, per §4.9.
func (c *Conversion) SetRevenue(revenueMinor int64, currencyCode string) {
	c.RevenueMinor = &revenueMinor
	c.CurrencyCode = &currencyCode
}

// SetOrder attaches order identifiers, when present on the triggering event.
func (c *Conversion) SetOrder(orderID, orderNumber *string) {
	c.OrderID = orderID
	c.OrderNumber = orderNumber
}
