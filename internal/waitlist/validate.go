package waitlist

import (
	"encoding/json"
	"io"
	"regexp"
	"strings"
)

// Field length caps. Oversized optional fields are truncated, not rejected.
const (
	maxEmailLen  = 320
	maxTokenLen  = 2048
	maxURLLen    = 2048
	maxUTMLen    = 256
	maxUTMLong   = 512
	maxLocaleLen = 64
	maxCookieLen = 128
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// utmPayload is the nested UTM object of the richest client payload variant.
type utmPayload struct {
	Source   string `json:"source"`
	Medium   string `json:"medium"`
	Campaign string `json:"campaign"`
	Content  string `json:"content"`
	Term     string `json:"term"`
}

// signupPayload is the raw, untrusted request body. It accepts both the flat
// utm_* fields and the nested utm object.
type signupPayload struct {
	Email          string      `json:"email"`
	TurnstileToken string      `json:"turnstileToken"`
	CookieID       string      `json:"cookie_id"`
	PageURL        string      `json:"page_url"`
	Referrer       string      `json:"referrer"`
	LandingPath    string      `json:"landing_path"`
	UTMSource      string      `json:"utm_source"`
	UTMMedium      string      `json:"utm_medium"`
	UTMCampaign    string      `json:"utm_campaign"`
	UTMContent     string      `json:"utm_content"`
	UTMTerm        string      `json:"utm_term"`
	UTM            *utmPayload `json:"utm"`
	Locale         string      `json:"locale"`
	Timezone       string      `json:"timezone"`
	ClientTime     string      `json:"client_time"`
	CookiesEnabled *bool       `json:"cookies_enabled"`
}

// SignupCommand is a validated, bounded signup submission ready for the
// pipeline. Optional fields are nil when absent from the payload.
type SignupCommand struct {
	Email           string
	EmailNormalized string
	TurnstileToken  string
	CookieID        *string
	PageURL         *string
	Referrer        *string
	LandingPath     *string
	ExplicitUTM     *Attribution // nested utm object, nil unless it carried a value
	FlatUTM         Attribution  // flat utm_* fields
	Locale          *string
	Timezone        *string
	ClientTime      *string
	CookiesEnabled  *bool
}

// cleanString trims a value and truncates it to maxLen. Returns nil for
// non-values so optional columns persist as NULL rather than "".
func cleanString(value string, maxLen int) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) > maxLen {
		trimmed = trimmed[:maxLen]
	}
	return &trimmed
}

// NormalizeEmail lower-cases and trims an address. The result is the
// canonical dedup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether the normalized address matches the accepted
// pattern: one @, no whitespace, and a dotted domain.
func ValidEmail(email string) bool {
	return email != "" && len(email) <= maxEmailLen && emailRegex.MatchString(email)
}

// ParseSignup decodes and validates a signup request body. It fails fast
// before any network or store access: malformed JSON, a missing or invalid
// email, and a missing verification token are all rejected here. Oversized
// optional fields are truncated per policy.
func ParseSignup(body io.Reader) (*SignupCommand, error) {
	var p signupPayload
	if err := json.NewDecoder(body).Decode(&p); err != nil {
		return nil, ErrInvalidJSON
	}

	email := strings.TrimSpace(p.Email)
	if len(email) > maxEmailLen {
		email = email[:maxEmailLen]
	}
	normalized := NormalizeEmail(email)
	if !ValidEmail(normalized) {
		return nil, ErrEmailRequired
	}

	token := cleanString(p.TurnstileToken, maxTokenLen)
	if token == nil {
		return nil, ErrTokenRequired
	}

	cmd := &SignupCommand{
		Email:           email,
		EmailNormalized: normalized,
		TurnstileToken:  *token,
		CookieID:        cleanString(p.CookieID, maxCookieLen),
		PageURL:         cleanString(p.PageURL, maxURLLen),
		Referrer:        cleanString(p.Referrer, maxURLLen),
		LandingPath:     cleanString(p.LandingPath, maxURLLen),
		FlatUTM: Attribution{
			UTMSource:   cleanString(p.UTMSource, maxUTMLen),
			UTMMedium:   cleanString(p.UTMMedium, maxUTMLen),
			UTMCampaign: cleanString(p.UTMCampaign, maxUTMLen),
			UTMContent:  cleanString(p.UTMContent, maxUTMLong),
			UTMTerm:     cleanString(p.UTMTerm, maxUTMLong),
		},
		Locale:         cleanString(p.Locale, maxLocaleLen),
		Timezone:       cleanString(p.Timezone, maxLocaleLen),
		ClientTime:     cleanString(p.ClientTime, maxLocaleLen),
		CookiesEnabled: p.CookiesEnabled,
	}

	if p.UTM != nil {
		explicit := Attribution{
			UTMSource:   cleanString(p.UTM.Source, maxUTMLen),
			UTMMedium:   cleanString(p.UTM.Medium, maxUTMLen),
			UTMCampaign: cleanString(p.UTM.Campaign, maxUTMLen),
			UTMContent:  cleanString(p.UTM.Content, maxUTMLong),
			UTMTerm:     cleanString(p.UTM.Term, maxUTMLong),
		}
		if explicit.HasUTM() {
			cmd.ExplicitUTM = &explicit
		}
	}

	return cmd, nil
}
