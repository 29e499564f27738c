package domain

import (
	"regexp"
	"time"
)

// botUserAgentPattern matches the substrings §4.6 specifies for bot
// classification: "bot|crawler|spider|scraper|googlebot|bingbot",
// case-insensitive.
var botUserAgentPattern = regexp.MustCompile(`(?i)(bot|crawler|spider|scraper|googlebot|bingbot)`)

// IsBotUserAgent classifies a user-agent string deterministically, per §4.6
// and the testable property in §8 ("bot classification is deterministic
// for a fixed user-agent string").
func IsBotUserAgent(userAgent string) bool {
	return botUserAgentPattern.MatchString(userAgent)
}

// Session is a time-bounded sequence of events from one customer (§3,
// GLOSSARY). A session always belongs to a customer; there is no
// anonymous-session shape in this revision (§7's NoCustomer path never
// reaches the sessionizer).
type Session struct {
	ID               int64
	WebsiteID        WebsiteID
	CustomerID       int64
	StartedAt        time.Time
	EndedAt          *time.Time
	LandingPageID    *int64
	ReferrerDomainID *int64
	LandingURL       string
	ReferrerURL      string
	IP               string
	UserAgent        string
	IsBot            bool
	Timestamps
}

// NewSession creates a new Session at the request timestamp, per §4.6:
// "create a new Session with started_at = request_timestamp, capturing
// landing_url, referrer_url, ip, user_agent, is_bot".
func NewSession(websiteID WebsiteID, customerID int64, startedAt time.Time, landingURL, referrerURL, ip, userAgent string) *Session {
	return &Session{
		WebsiteID:   websiteID,
		CustomerID:  customerID,
		StartedAt:   startedAt,
		LandingURL:  landingURL,
		ReferrerURL: referrerURL,
		IP:          ip,
		UserAgent:   userAgent,
		IsBot:       IsBotUserAgent(userAgent),
		Timestamps:  newTimestamps(),
	}
}

// IsActive reports whether the session is still open (no explicit closure)
// and within the sliding timeout window as of now, per §4.6's reuse rule:
// "ended_at IS NULL AND started_at > now - sessionTimeout".
func (s *Session) IsActive(now time.Time, sessionTimeout time.Duration) bool {
	if s.EndedAt != nil {
		return false
	}
	return s.StartedAt.After(now.Add(-sessionTimeout))
}

// Close sets the session's end time, per the "explicit closure" break
// condition in §4.6.
func (s *Session) Close(endedAt time.Time) {
	s.EndedAt = &endedAt
}
