package domain

// CustomerStatus is the lifecycle state of a Customer (§3).
type CustomerStatus string

const (
	CustomerStatusActive    CustomerStatus = "active"
	CustomerStatusSuspended CustomerStatus = "suspended"
)

// Customer is the logical entity behind one or more identities, scoped to a
// website (§3, GLOSSARY). FirstTouchID/LastTouchID are maintained by the
// Touch Manager (C7); EmailHash is copied onto the customer only when it is
// known at creation or cross-match time, to support §4.5 step 3's
// email-column lookup without a join.
type Customer struct {
	ID           int64
	WebsiteID    WebsiteID
	Status       CustomerStatus
	EmailHash    *string
	FirstTouchID *int64
	LastTouchID  *int64
	Timestamps
}

// NewCustomer creates a new active Customer, per §4.5 step 5.
func NewCustomer(websiteID WebsiteID, emailHash *string) *Customer {
	return &Customer{
		WebsiteID:  websiteID,
		Status:     CustomerStatusActive,
		EmailHash:  emailHash,
		Timestamps: newTimestamps(),
	}
}

// SetFirstTouch sets the customer's first touch id iff it is not already
// set, per §4.7: "set first_touch_id if null".
func (c *Customer) SetFirstTouch(touchID int64) {
	if c.FirstTouchID == nil {
		c.FirstTouchID = &touchID
	}
}

// SetLastTouch always overwrites the customer's last touch id, per §4.7:
// "always overwrite last_touch_id".
func (c *Customer) SetLastTouch(touchID int64) {
	c.LastTouchID = &touchID
}

// LinkSource identifies how a CustomerIdentityLink was established (§3).
type LinkSource string

const (
	LinkSourceLogin     LinkSource = "login"
	LinkSourceSDK       LinkSource = "sdk"
	LinkSourceHeuristic LinkSource = "heuristic"
)

// Confidence constants for the priority ladder in §4.5 step 5 and the
// heuristic stitching steps (3, 4).
const (
	ConfidenceUserID            = 1.0
	ConfidenceCookie            = 1.0
	ConfidenceEmailHash         = 0.95
	ConfidenceOther             = 0.9
	ConfidenceEmailCrossMatch   = 0.95
	ConfidenceIPStitchHeuristic = 0.7
)

// DefaultConfidenceAndSource returns the link confidence and source for a
// freshly created customer per §4.5 step 5: "user_id=1.0, cookie=1.0,
// email_hash=0.95, else 0.9. Source: login for user_id/email_hash, else
// sdk."
func DefaultConfidenceAndSource(identityType IdentityType) (float64, LinkSource) {
	switch identityType {
	case IdentityTypeUserID:
		return ConfidenceUserID, LinkSourceLogin
	case IdentityTypeEmailHash:
		return ConfidenceEmailHash, LinkSourceLogin
	case IdentityTypeCookie:
		return ConfidenceCookie, LinkSourceSDK
	default:
		return ConfidenceOther, LinkSourceSDK
	}
}

// CustomerIdentityLink joins an Identity to the Customer that owns it, with
// the confidence and provenance of that link (§3). An identity belongs to
// at most one customer at a time.
type CustomerIdentityLink struct {
	CustomerID int64
	IdentityID int64
	Confidence float64
	Source     LinkSource
	Timestamps
}

// NewCustomerIdentityLink constructs a link row.
func NewCustomerIdentityLink(customerID, identityID int64, confidence float64, source LinkSource) *CustomerIdentityLink {
	return &CustomerIdentityLink{
		CustomerID: customerID,
		IdentityID: identityID,
		Confidence: confidence,
		Source:     source,
		Timestamps: newTimestamps(),
	}
}
