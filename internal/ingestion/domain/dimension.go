package domain

import (
	"net/url"
	"strings"
)

// ReferrerCategory classifies a referrer domain (§3, §4.4).
type ReferrerCategory string

const (
	ReferrerCategorySearch ReferrerCategory = "search"
	ReferrerCategorySocial ReferrerCategory = "social"
	ReferrerCategoryEmail  ReferrerCategory = "email"
	ReferrerCategoryOther  ReferrerCategory = "other"
)

var searchDomains = []string{"google.com", "bing.com", "yahoo.com", "duckduckgo.com"}
var socialDomains = []string{"facebook.com", "twitter.com", "instagram.com", "linkedin.com", "pinterest.com", "tiktok.com"}

// ClassifyReferrerDomain applies the substring table from §4.4: search
// (the four named engines or containing "search"), social (the six named
// networks or containing "social"), email (containing "mail" or "email"),
// else other.
func ClassifyReferrerDomain(domain string) ReferrerCategory {
	d := strings.ToLower(domain)

	for _, known := range searchDomains {
		if strings.Contains(d, known) {
			return ReferrerCategorySearch
		}
	}
	if strings.Contains(d, "search") {
		return ReferrerCategorySearch
	}

	for _, known := range socialDomains {
		if strings.Contains(d, known) {
			return ReferrerCategorySocial
		}
	}
	if strings.Contains(d, "social") {
		return ReferrerCategorySocial
	}

	if strings.Contains(d, "mail") || strings.Contains(d, "email") {
		return ReferrerCategoryEmail
	}

	return ReferrerCategoryOther
}

// ExtractReferrerDomain extracts and case-normalizes the host from a
// referrer URL, per §4.4. Returns "", false if referrerURL is empty or
// unparseable.
func ExtractReferrerDomain(referrerURL string) (string, bool) {
	if referrerURL == "" {
		return "", false
	}
	u, err := url.Parse(referrerURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}

// ExtractLandingPath extracts the path from a landing URL, defaulting to
// "/" per §4.4. An unparseable url also yields "/" — landing-page
// normalization never blocks ingestion.
func ExtractLandingPath(landingURL string) string {
	if landingURL == "" {
		return "/"
	}
	u, err := url.Parse(landingURL)
	if err != nil {
		return "/"
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

const landingURLSampleMaxLen = 500

// TruncateURLSample truncates a URL sample to the 500-char cap §4.4
// specifies for a LandingPage's url_sample column, stored "only on
// creation".
func TruncateURLSample(rawURL string) string {
	if len(rawURL) <= landingURLSampleMaxLen {
		return rawURL
	}
	return rawURL[:landingURLSampleMaxLen]
}

// ReferrerDomain is an interned (website, domain) dimension (§3).
type ReferrerDomain struct {
	ID        int64
	WebsiteID WebsiteID
	Domain    string
	Category  ReferrerCategory
	Timestamps
}

// NewReferrerDomain interns a referrer domain, classifying it per §4.4.
func NewReferrerDomain(websiteID WebsiteID, domain string) *ReferrerDomain {
	return &ReferrerDomain{
		WebsiteID:  websiteID,
		Domain:     domain,
		Category:   ClassifyReferrerDomain(domain),
		Timestamps: newTimestamps(),
	}
}

// LandingPage is an interned (website, path) dimension (§3).
type LandingPage struct {
	ID        int64
	WebsiteID WebsiteID
	Path      string
	URLSample string
	Timestamps
}

// NewLandingPage interns a landing page. urlSample is only ever set on the
// row that creation produces — subsequent sightings of the same path reuse
// the existing sample per §4.4 ("only on creation").
func NewLandingPage(websiteID WebsiteID, path, urlSample string) *LandingPage {
	return &LandingPage{
		WebsiteID:  websiteID,
		Path:       path,
		URLSample:  TruncateURLSample(urlSample),
		Timestamps: newTimestamps(),
	}
}

// CustomUtmParameter is an interned UTM parameter name, with the "utm_"
// prefix already stripped (§3, §4.4).
type CustomUtmParameter struct {
	ID        int64
	WebsiteID WebsiteID
	Name      string
	Timestamps
}

// NewCustomUtmParameter interns a UTM parameter name.
func NewCustomUtmParameter(websiteID WebsiteID, name string) *CustomUtmParameter {
	return &CustomUtmParameter{
		WebsiteID:  websiteID,
		Name:       name,
		Timestamps: newTimestamps(),
	}
}

// CustomUtmValue is an interned (parameter, value) pair (§3).
type CustomUtmValue struct {
	ID          int64
	ParameterID int64
	Value       string
	Timestamps
}

// NewCustomUtmValue interns a UTM value under a parameter.
func NewCustomUtmValue(parameterID int64, value string) *CustomUtmValue {
	return &CustomUtmValue{
		ParameterID: parameterID,
		Value:       value,
		Timestamps:  newTimestamps(),
	}
}

// TrackableKind enumerates the three entity kinds a UTM value can be bound
// to through the polymorphic join (§3, §9's "arena+index" design note).
type TrackableKind string

const (
	TrackableKindSession TrackableKind = "session"
	TrackableKindEvent   TrackableKind = "event"
	TrackableKindTouch   TrackableKind = "touch"
)

// TrackableUtmValue binds a trackable (session, event, or touch) to one of
// its UTM values (§3). Unique per (kind, trackable_id, utm_value_id).
type TrackableUtmValue struct {
	TrackableKind TrackableKind
	TrackableID   int64
	UtmValueID    int64
	Timestamps
}

// NewTrackableUtmValue constructs a binding row.
func NewTrackableUtmValue(kind TrackableKind, trackableID, utmValueID int64) *TrackableUtmValue {
	return &TrackableUtmValue{
		TrackableKind: kind,
		TrackableID:   trackableID,
		UtmValueID:    utmValueID,
		Timestamps:    newTimestamps(),
	}
}

// UTMSet is a name→value map of UTM parameters resolved for a single
// request or read back for a trackable, e.g. {"source": "google", "medium":
// "cpc"}. Standard UTM keys use the short name (source, medium, campaign,
// term, content); custom utm_* keys use their stripped name verbatim.
type UTMSet map[string]string

// IsEmpty reports whether the set carries no UTM parameters, used by C9 to
// decide whether utm_current is "present" per §4.9.
func (u UTMSet) IsEmpty() bool {
	return len(u) == 0
}

// StandardUTMParams are the five well-known UTM parameters named in the
// GLOSSARY, in their stripped (post utm_) form.
var StandardUTMParams = []string{"source", "medium", "campaign", "term", "content"}
