package waitlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

// DefaultTable is used when the configured table name fails validation.
const DefaultTable = "waitlist_signups"

var tableNameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// SafeTableName validates a configured table name against a strict
// identifier pattern before it is ever interpolated into a statement.
// Invalid names silently fall back to the default rather than failing
// the request.
func SafeTableName(name string) string {
	name = strings.TrimSpace(name)
	if name != "" && len(name) <= 128 && tableNameRegex.MatchString(name) {
		return name
	}
	return DefaultTable
}

// InsertResult discriminates the outcome of an insert attempt. A uniqueness
// violation is a normal outcome (a concurrent writer won the race), not an
// error.
type InsertResult int

const (
	InsertFailed InsertResult = iota
	Inserted
	Conflict
)

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

// Store provides database operations for signup records. Safe for
// concurrent use; all state beyond the pool is the one-time schema guard.
type Store struct {
	db    *sql.DB
	table string

	mu      sync.Mutex
	ensured bool
}

// NewStore creates a signup store over the given pool. The table name is
// validated here so no caller can reach the SQL layer with a raw identifier.
func NewStore(db *sql.DB, table string) *Store {
	return &Store{db: db, table: SafeTableName(table)}
}

// Table returns the validated table name in use.
func (s *Store) Table() string {
	return s.table
}

// EnsureSchema creates the signup table and its indexes if they do not
// exist. Idempotent and safe to call concurrently and on every request;
// after the first success it is a no-op for the process. A failure is not
// cached, so a recovered database gets retried.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL,
			email_normalized TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			cookie_id TEXT,
			ip_hash TEXT,
			status TEXT NOT NULL,
			block_reason TEXT,
			referrer TEXT,
			landing_path TEXT,
			utm_source TEXT,
			utm_medium TEXT,
			utm_campaign TEXT,
			utm_content TEXT,
			utm_term TEXT,
			country TEXT,
			region TEXT,
			city TEXT,
			postal_code TEXT,
			timezone TEXT,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			continent TEXT,
			user_agent TEXT,
			accept_language TEXT,
			locale TEXT,
			client_time TEXT,
			cookies_enabled BOOLEAN,
			location_json JSONB,
			client_json JSONB
		)`, s.table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_email_normalized_key ON %s (email_normalized)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_created_at_idx ON %s (created_at)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_country_idx ON %s (country)`, s.table, s.table),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema for %s: %w", s.table, err)
		}
	}

	s.ensured = true
	return nil
}

// FindByEmail reports whether a row already holds the dedup key.
func (s *Store) FindByEmail(ctx context.Context, emailNormalized string) (bool, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE email_normalized = $1 LIMIT 1`, s.table)

	var id int64
	err := s.db.QueryRowContext(ctx, query, emailNormalized).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return true, nil
}

// CountRecentByIP counts submissions sharing an ip_hash since the window
// start. Blocked rows count too: they were persisted for audit and consume
// window budget.
func (s *Store) CountRecentByIP(ctx context.Context, ipHash string, since time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE ip_hash = $1 AND created_at >= $2`, s.table)

	var count int
	if err := s.db.QueryRowContext(ctx, query, ipHash, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("rate limit count: %w", err)
	}
	return count, nil
}

// Insert persists a record, assigning created_at server-side. A uniqueness
// violation on the dedup key returns Conflict with a nil error: two
// simultaneous submissions of the same email must yield exactly one accepted
// row and the rest reported as duplicates, never a hard failure and never
// two rows. Any other failure is a store error.
func (s *Store) Insert(ctx context.Context, rec *SignupRecord) (InsertResult, error) {
	rec.CreatedAt = time.Now().UTC()

	query := fmt.Sprintf(`INSERT INTO %s
		(email, email_normalized, created_at, cookie_id, ip_hash, status, block_reason,
		 referrer, landing_path, utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		 country, region, city, postal_code, timezone, latitude, longitude, continent,
		 user_agent, accept_language, locale, client_time, cookies_enabled,
		 location_json, client_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		 $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
		RETURNING id`, s.table)

	err := s.db.QueryRowContext(ctx, query,
		rec.Email, rec.EmailNormalized, rec.CreatedAt, rec.CookieID, rec.IPHash,
		string(rec.Status), rec.BlockReason,
		rec.Attribution.Referrer, rec.Attribution.LandingPath,
		rec.Attribution.UTMSource, rec.Attribution.UTMMedium, rec.Attribution.UTMCampaign,
		rec.Attribution.UTMContent, rec.Attribution.UTMTerm,
		rec.Geo.Country, rec.Geo.Region, rec.Geo.City, rec.Geo.PostalCode, rec.Geo.Timezone,
		rec.Geo.Latitude, rec.Geo.Longitude, rec.Geo.Continent,
		rec.Client.UserAgent, rec.Client.AcceptLanguage, rec.Client.Locale,
		rec.Client.ClientTime, rec.Client.CookiesEnabled,
		nullableJSON(rec.LocationJSON), nullableJSON(rec.ClientJSON),
	).Scan(&rec.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return Conflict, nil
		}
		return InsertFailed, fmt.Errorf("inserting signup: %w", err)
	}

	return Inserted, nil
}

// nullableJSON maps an empty snapshot to NULL instead of invalid JSONB.
func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// Stats aggregates the table for the statistics endpoint: total rows, the
// last 30 days of per-day counts (descending), and the 200 most recent rows.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByDay:  []DayCount{},
		Recent: []RecentSignup{},
	}

	totalQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)
	if err := s.db.QueryRowContext(ctx, totalQuery).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("stats total: %w", err)
	}

	byDayQuery := fmt.Sprintf(`SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM %s GROUP BY day ORDER BY day DESC LIMIT 30`, s.table)
	rows, err := s.db.QueryContext(ctx, byDayQuery)
	if err != nil {
		return nil, fmt.Errorf("stats by day: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		stats.ByDay = append(stats.ByDay, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recentQuery := fmt.Sprintf(`SELECT email, created_at FROM %s ORDER BY created_at DESC LIMIT 200`, s.table)
	recentRows, err := s.db.QueryContext(ctx, recentQuery)
	if err != nil {
		return nil, fmt.Errorf("stats recent: %w", err)
	}
	defer recentRows.Close()
	for recentRows.Next() {
		var r RecentSignup
		if err := recentRows.Scan(&r.Email, &r.CreatedAt); err != nil {
			return nil, err
		}
		stats.Recent = append(stats.Recent, r)
	}
	if err := recentRows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
