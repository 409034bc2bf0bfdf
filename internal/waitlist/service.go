package waitlist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/velocityfunds/waitlist-service/internal/pkg/logger"
)

// Verifier checks that a submission came from a human. Implementations fail
// closed: any ambiguous or erroring result is false.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) bool
}

// NotifyStatus is the best-effort outcome of the confirmation email.
type NotifyStatus string

const (
	NotifySent    NotifyStatus = "sent"
	NotifySkipped NotifyStatus = "skipped"
	NotifyFailed  NotifyStatus = "failed"
)

// Notifier dispatches the confirmation email after a successful insert.
// Its outcome is reported, never awaited for correctness: a failure must
// not block or roll back persistence.
type Notifier interface {
	Notify(ctx context.Context, email string) NotifyStatus
}

// Submission carries one validated signup through the pipeline, together
// with the request context the collector derived.
type Submission struct {
	Cmd            *SignupCommand
	CookieID       string
	RemoteIP       string
	Geo            Geolocation
	UserAgent      string
	AcceptLanguage string
}

// Outcome is the terminal disposition of a submission that reached the
// store without a hard failure.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeBlocked
)

// SubmitResult reports the outcome plus the notifier's status for accepted
// submissions.
type SubmitResult struct {
	Outcome     Outcome
	EmailStatus NotifyStatus
}

// Service coordinates the signup pipeline. Stateless per request; safe for
// any number of concurrent invocations against the shared store.
type Service struct {
	store    *Store
	limiter  RateLimiter
	verifier Verifier
	notifier Notifier
	ipSalt   string
}

// NewService wires the pipeline. All collaborators are injected at
// construction; nothing reads ambient state.
func NewService(store *Store, limiter RateLimiter, verifier Verifier, notifier Notifier, ipSalt string) *Service {
	return &Service{
		store:    store,
		limiter:  limiter,
		verifier: verifier,
		notifier: notifier,
		ipSalt:   ipSalt,
	}
}

// Submit runs one validated submission through verification, schema
// provisioning, dedup, rate limiting, persistence, and notification.
// Returns ErrVerificationFailed for a failed bot check; any other error is
// a store failure. The pipeline never revisits a state.
func (s *Service) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	cmd := sub.Cmd

	if !s.verifier.Verify(ctx, cmd.TurnstileToken, sub.RemoteIP) {
		return nil, ErrVerificationFailed
	}

	if err := s.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	exists, err := s.store.FindByEmail(ctx, cmd.EmailNormalized)
	if err != nil {
		return nil, err
	}
	if exists {
		return &SubmitResult{Outcome: OutcomeDuplicate}, nil
	}

	var ipHash string
	if sub.RemoteIP != "" {
		ipHash = HashIP(sub.RemoteIP, s.ipSalt)
	}

	allowed, err := s.limiter.Allow(ctx, ipHash)
	if err != nil {
		return nil, err
	}

	rec := s.buildRecord(sub, ipHash, allowed)

	result, err := s.store.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}
	if result == Conflict {
		// A concurrent writer won the race between the pre-check and the
		// insert. Same answer as the pre-check hit.
		return &SubmitResult{Outcome: OutcomeDuplicate}, nil
	}

	if rec.Status == StatusBlocked {
		logger.Warn("signup rate limited", "email", cmd.EmailNormalized, "ip_hash", ipHash)
		return &SubmitResult{Outcome: OutcomeBlocked}, nil
	}

	emailStatus := s.notifier.Notify(ctx, cmd.Email)
	logger.Info("signup accepted", "email", cmd.EmailNormalized, "email_status", string(emailStatus))

	return &SubmitResult{Outcome: OutcomeAccepted, EmailStatus: emailStatus}, nil
}

func (s *Service) buildRecord(sub Submission, ipHash string, allowed bool) *SignupRecord {
	cmd := sub.Cmd

	rec := &SignupRecord{
		Email:           cmd.Email,
		EmailNormalized: cmd.EmailNormalized,
		Status:          StatusAccepted,
		Attribution:     ResolveAttribution(cmd),
		Geo:             sub.Geo,
		Client: ClientContext{
			UserAgent:      cleanString(sub.UserAgent, maxURLLen),
			AcceptLanguage: cleanString(sub.AcceptLanguage, maxUTMLen),
			Locale:         cmd.Locale,
			ClientTime:     cmd.ClientTime,
			CookiesEnabled: cmd.CookiesEnabled,
		},
	}
	if sub.CookieID != "" {
		rec.CookieID = &sub.CookieID
	}
	if ipHash != "" {
		rec.IPHash = &ipHash
	}
	if cmd.Timezone != nil && rec.Geo.Timezone == nil {
		rec.Geo.Timezone = cmd.Timezone
	}
	if !allowed {
		reason := BlockReasonRateLimit
		rec.Status = StatusBlocked
		rec.BlockReason = &reason
	}

	// Raw snapshots for forward-compatible audit.
	if b, err := json.Marshal(rec.Geo); err == nil && string(b) != "{}" {
		rec.LocationJSON = b
	}
	if b, err := json.Marshal(rec.Client); err == nil && string(b) != "{}" {
		rec.ClientJSON = b
	}

	return rec
}

// GetStats provisions the schema if needed and aggregates the table.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	if err := s.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregating stats: %w", err)
	}
	return stats, nil
}
