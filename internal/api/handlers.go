package api

import (
	"net/http"
	"strings"

	"github.com/velocityfunds/waitlist-service/internal/config"
	"github.com/velocityfunds/waitlist-service/internal/pkg/httputil"
	"github.com/velocityfunds/waitlist-service/internal/pkg/logger"
	"github.com/velocityfunds/waitlist-service/internal/waitlist"
)

// User-facing response copy. Matches the public site verbatim.
const (
	msgJoined    = "You're on the Velocity Funds waitlist."
	msgDuplicate = "You're already on the Velocity Funds waitlist."
	msgRateLimit = "Too many attempts. Please try again later."
	msgStoreFail = "Unable to save your email right now."
)

// Handlers holds HTTP handlers for the waitlist endpoints.
type Handlers struct {
	cfg *config.Config
	svc *waitlist.Service
}

// NewHandlers creates the handler set.
func NewHandlers(cfg *config.Config, svc *waitlist.Service) *Handlers {
	return &Handlers{cfg: cfg, svc: svc}
}

// HealthCheck responds to liveness probes.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// GetWaitlist serves the public Turnstile site key so the page can render
// the widget. Non-cacheable: key rotation must take effect immediately.
func (h *Handlers) GetWaitlist(w http.ResponseWriter, r *http.Request) {
	siteKey := strings.TrimSpace(h.cfg.Turnstile.SiteKey)
	if siteKey == "" {
		httputil.Error(w, http.StatusInternalServerError, "TURNSTILE_SITE_KEY is not configured.")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	httputil.OK(w, map[string]string{"turnstileSiteKey": siteKey})
}

type signupResponse struct {
	OK          bool   `json:"ok"`
	Message     string `json:"message"`
	EmailStatus string `json:"email_status,omitempty"`
}

// PostWaitlist ingests one signup: validation, bot verification, dedup,
// rate limiting, persistence, best-effort confirmation email.
func (h *Handlers) PostWaitlist(w http.ResponseWriter, r *http.Request) {
	cmd, err := waitlist.ParseSignup(r.Body)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	// Validation precedes configuration checks so a misconfigured server
	// still rejects garbage input with a 400.
	if strings.TrimSpace(h.cfg.Turnstile.Secret) == "" {
		httputil.Error(w, http.StatusInternalServerError, "TURNSTILE_SECRET is not configured.")
		return
	}
	if strings.TrimSpace(h.cfg.Waitlist.IPSalt) == "" {
		httputil.Error(w, http.StatusInternalServerError, "IP_SALT is not configured.")
		return
	}

	cookieID, minted := waitlist.ResolveVisitorID(r, cmd.CookieID)
	if minted {
		waitlist.SetVisitorCookie(w, r, cookieID)
	}

	sub := waitlist.Submission{
		Cmd:            cmd,
		CookieID:       cookieID,
		RemoteIP:       waitlist.ClientIP(r),
		Geo:            waitlist.GeoFromHeaders(r.Header),
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	}

	result, err := h.svc.Submit(r.Context(), sub)
	if err != nil {
		if err == waitlist.ErrVerificationFailed {
			httputil.Forbidden(w, err.Error())
			return
		}
		logger.Error("signup store failure", "error", err.Error())
		httputil.Error(w, http.StatusInternalServerError, msgStoreFail)
		return
	}

	switch result.Outcome {
	case waitlist.OutcomeDuplicate:
		httputil.JSON(w, http.StatusConflict, signupResponse{OK: false, Message: msgDuplicate})
	case waitlist.OutcomeBlocked:
		httputil.Error(w, http.StatusTooManyRequests, msgRateLimit)
	default:
		httputil.OK(w, signupResponse{OK: true, Message: msgJoined, EmailStatus: string(result.EmailStatus)})
	}
}

// GetWaitlistStats serves the token-gated aggregate view. An unconfigured
// server token is an operator problem (403 with an explicit message),
// distinct from a caller presenting a bad token (401).
func (h *Handlers) GetWaitlistStats(w http.ResponseWriter, r *http.Request) {
	expected := strings.TrimSpace(h.cfg.Waitlist.StatsToken)
	if expected == "" {
		httputil.Forbidden(w, "WAITLIST_STATS_TOKEN is not configured.")
		return
	}

	provided := statsToken(r)
	if provided == "" || provided != expected {
		httputil.Unauthorized(w, "Unauthorized.")
		return
	}

	stats, err := h.svc.GetStats(r.Context())
	if err != nil {
		logger.Error("stats aggregation failure", "error", err.Error())
		httputil.Error(w, http.StatusInternalServerError, "Unable to load stats right now.")
		return
	}

	httputil.OK(w, stats)
}

// statsToken extracts the caller's token: Bearer header, then the admin
// header, then the query parameter.
func statsToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if admin := r.Header.Get("X-Admin-Token"); admin != "" {
		return strings.TrimSpace(admin)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
