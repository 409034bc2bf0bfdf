package waitlist

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// VisitorCookieName is the opaque identity cookie set on first contact.
const VisitorCookieName = "vf_visitor_id"

const visitorCookieMaxAge = 365 * 24 * 60 * 60 // one year

// ResolveVisitorID returns the visitor's opaque identity and whether it was
// newly minted. Precedence: identity cookie, then the payload's cookie_id
// (first-party cookie echoed through the body), then a fresh UUID.
func ResolveVisitorID(r *http.Request, payloadCookieID *string) (string, bool) {
	if c, err := r.Cookie(VisitorCookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), false
	}
	if payloadCookieID != nil {
		return *payloadCookieID, false
	}
	return uuid.New().String(), true
}

// SetVisitorCookie instructs the client to persist a newly minted identity.
// Secure is set when the request arrived over TLS, directly or via a
// forwarding proxy.
func SetVisitorCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   visitorCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https"),
	})
}

// ResolveAttribution applies the attribution precedence: an explicit UTM
// object with any non-empty field wins verbatim; otherwise UTM parameters are
// parsed from the page URL's query string; if neither yields a value the UTM
// fields stay nil. Referrer and landing path ride along from the flat fields,
// with the landing path falling back to the page URL's path.
func ResolveAttribution(cmd *SignupCommand) Attribution {
	attr := Attribution{
		Referrer:    cmd.Referrer,
		LandingPath: cmd.LandingPath,
	}

	switch {
	case cmd.ExplicitUTM != nil:
		attr.UTMSource = cmd.ExplicitUTM.UTMSource
		attr.UTMMedium = cmd.ExplicitUTM.UTMMedium
		attr.UTMCampaign = cmd.ExplicitUTM.UTMCampaign
		attr.UTMContent = cmd.ExplicitUTM.UTMContent
		attr.UTMTerm = cmd.ExplicitUTM.UTMTerm
	case cmd.FlatUTM.HasUTM():
		attr.UTMSource = cmd.FlatUTM.UTMSource
		attr.UTMMedium = cmd.FlatUTM.UTMMedium
		attr.UTMCampaign = cmd.FlatUTM.UTMCampaign
		attr.UTMContent = cmd.FlatUTM.UTMContent
		attr.UTMTerm = cmd.FlatUTM.UTMTerm
	case cmd.PageURL != nil:
		if u, err := url.Parse(*cmd.PageURL); err == nil {
			q := u.Query()
			attr.UTMSource = cleanString(q.Get("utm_source"), maxUTMLen)
			attr.UTMMedium = cleanString(q.Get("utm_medium"), maxUTMLen)
			attr.UTMCampaign = cleanString(q.Get("utm_campaign"), maxUTMLen)
			attr.UTMContent = cleanString(q.Get("utm_content"), maxUTMLong)
			attr.UTMTerm = cleanString(q.Get("utm_term"), maxUTMLong)
		}
	}

	if attr.LandingPath == nil && cmd.PageURL != nil {
		if u, err := url.Parse(*cmd.PageURL); err == nil && u.Path != "" {
			attr.LandingPath = cleanString(u.Path, maxURLLen)
		}
	}

	return attr
}

// GeoFromHeaders reads edge-provided geolocation headers (Cloudflare managed
// transforms). Absent headers stay nil; values are never geocoded here.
func GeoFromHeaders(h http.Header) Geolocation {
	geo := Geolocation{
		Country:    cleanString(h.Get("CF-IPCountry"), 8),
		Region:     cleanString(h.Get("CF-Region"), maxUTMLen),
		City:       cleanString(h.Get("CF-IPCity"), maxUTMLen),
		PostalCode: cleanString(h.Get("CF-Postal-Code"), 32),
		Timezone:   cleanString(h.Get("CF-Timezone"), maxLocaleLen),
		Continent:  cleanString(h.Get("CF-IPContinent"), 8),
	}
	if lat := h.Get("CF-IPLatitude"); lat != "" {
		if v, err := strconv.ParseFloat(lat, 64); err == nil {
			geo.Latitude = &v
		}
	}
	if lon := h.Get("CF-IPLongitude"); lon != "" {
		if v, err := strconv.ParseFloat(lon, 64); err == nil {
			geo.Longitude = &v
		}
	}
	return geo
}

// ClientIP extracts the source address: the edge's CF-Connecting-IP header
// when present, else the request's remote address (already rewritten from
// X-Forwarded-For by the RealIP middleware). Empty when nothing is known.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// HashIP returns the hex SHA-256 of the address salted with the server-held
// secret. One-way: the raw IP is never persisted or logged.
func HashIP(ip, salt string) string {
	sum := sha256.Sum256([]byte(ip + salt))
	return hex.EncodeToString(sum[:])
}
