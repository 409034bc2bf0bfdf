// Package waitlist implements the signup ingestion pipeline: request
// validation, visitor identity and attribution capture, abuse rate limiting,
// and race-safe deduplicated persistence, plus the aggregate statistics read
// path.
//
// The pipeline is strictly linear with early exit on each rejection:
// validate → verify → ensure schema → dedup pre-check → rate limit →
// insert → notify. The service layer depends on small interfaces for the
// bot verifier and notifier and should never import from api/.
package waitlist
