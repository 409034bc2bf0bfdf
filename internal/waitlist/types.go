package waitlist

import "time"

// SignupStatus is the persisted disposition of a submission.
type SignupStatus string

const (
	StatusAccepted SignupStatus = "accepted"
	StatusBlocked  SignupStatus = "blocked"
)

// BlockReasonRateLimit is the only block reason currently recorded.
const BlockReasonRateLimit = "rate_limit"

// Attribution holds marketing-source metadata captured at signup time.
// All fields are optional; nil means the value was never supplied.
type Attribution struct {
	Referrer    *string
	LandingPath *string
	UTMSource   *string
	UTMMedium   *string
	UTMCampaign *string
	UTMContent  *string
	UTMTerm     *string
}

// HasUTM reports whether any UTM field carries a value.
func (a *Attribution) HasUTM() bool {
	if a == nil {
		return false
	}
	return a.UTMSource != nil || a.UTMMedium != nil || a.UTMCampaign != nil ||
		a.UTMContent != nil || a.UTMTerm != nil
}

// Geolocation holds edge-runtime-provided location hints. Fields are never
// independently geocoded; absent headers stay nil.
type Geolocation struct {
	Country    *string  `json:"country,omitempty"`
	Region     *string  `json:"region,omitempty"`
	City       *string  `json:"city,omitempty"`
	PostalCode *string  `json:"postal_code,omitempty"`
	Timezone   *string  `json:"timezone,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Continent  *string  `json:"continent,omitempty"`
}

// ClientContext holds browser-supplied context persisted for audit.
type ClientContext struct {
	UserAgent      *string `json:"user_agent,omitempty"`
	AcceptLanguage *string `json:"accept_language,omitempty"`
	Locale         *string `json:"locale,omitempty"`
	ClientTime     *string `json:"client_time,omitempty"`
	CookiesEnabled *bool   `json:"cookies_enabled,omitempty"`
}

// SignupRecord is one row in the signup table. Rows are insert-only: never
// updated in place and never deleted by this service.
type SignupRecord struct {
	ID              int64
	Email           string
	EmailNormalized string // canonical dedup key, unique across all rows
	CreatedAt       time.Time
	CookieID        *string
	IPHash          *string // salted SHA-256; the raw IP is never persisted
	Status          SignupStatus
	BlockReason     *string
	Attribution     Attribution
	Geo             Geolocation
	Client          ClientContext
	LocationJSON    []byte // raw snapshot of Geo for forward-compatible audit
	ClientJSON      []byte // raw snapshot of Client
}

// DayCount is one bucket of the per-day signup histogram.
type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// RecentSignup is one row of the recent-signups listing.
type RecentSignup struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats is the aggregate payload served by the statistics endpoint.
type Stats struct {
	Total  int64          `json:"total"`
	ByDay  []DayCount     `json:"by_day"`
	Recent []RecentSignup `json:"recent"`
}
