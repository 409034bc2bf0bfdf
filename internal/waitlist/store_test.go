package waitlist

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func setupTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return NewStore(db, ""), mock, func() { db.Close() }
}

func TestSafeTableName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid name", "waitlist_signups_v2", "waitlist_signups_v2"},
		{"empty falls back", "", DefaultTable},
		{"whitespace falls back", "   ", DefaultTable},
		{"injection falls back", "signups; DROP TABLE users--", DefaultTable},
		{"quotes fall back", `signups"`, DefaultTable},
		{"hyphen falls back", "waitlist-signups", DefaultTable},
		{"digits ok", "signups2026", "signups2026"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTableName(tt.input); got != tt.want {
				t.Errorf("SafeTableName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func expectSchemaDDL(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS waitlist_signups`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS waitlist_signups_email_normalized_key`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS waitlist_signups_created_at_idx`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS waitlist_signups_country_idx`).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	expectSchemaDDL(mock)

	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("first EnsureSchema: %v", err)
	}
	// Second call must be a no-op: no further expectations registered.
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEnsureSchemaRetriesAfterFailure(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS waitlist_signups`).
		WillReturnError(errors.New("connection refused"))

	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err == nil {
		t.Fatal("expected error from failed DDL")
	}

	// A recovered database gets the full DDL again.
	expectSchemaDDL(mock)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema after recovery: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFindByEmail(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	query := regexp.QuoteMeta(`SELECT id FROM waitlist_signups WHERE email_normalized = $1 LIMIT 1`)

	mock.ExpectQuery(query).WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	exists, err := store.FindByEmail(ctx, "a@example.com")
	if err != nil || !exists {
		t.Errorf("FindByEmail hit = (%v, %v), want (true, nil)", exists, err)
	}

	mock.ExpectQuery(query).WithArgs("b@example.com").
		WillReturnError(sql.ErrNoRows)
	exists, err = store.FindByEmail(ctx, "b@example.com")
	if err != nil || exists {
		t.Errorf("FindByEmail miss = (%v, %v), want (false, nil)", exists, err)
	}
}

func acceptedRecord(email string) *SignupRecord {
	return &SignupRecord{
		Email:           email,
		EmailNormalized: NormalizeEmail(email),
		Status:          StatusAccepted,
	}
}

func TestInsertAccepted(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO waitlist_signups`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	rec := acceptedRecord("a@example.com")
	result, err := store.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if result != Inserted {
		t.Errorf("result = %v, want Inserted", result)
	}
	if rec.ID != 42 {
		t.Errorf("ID = %d, want 42", rec.ID)
	}
	if rec.CreatedAt.IsZero() || rec.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt must be server-assigned UTC, got %v", rec.CreatedAt)
	}
}

func TestInsertUniqueViolationIsConflict(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO waitlist_signups`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "waitlist_signups_email_normalized_key"})

	result, err := store.Insert(context.Background(), acceptedRecord("a@example.com"))
	if err != nil {
		t.Fatalf("a unique violation is a normal outcome, got error: %v", err)
	}
	if result != Conflict {
		t.Errorf("result = %v, want Conflict", result)
	}
}

func TestInsertOtherErrorIsFatal(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO waitlist_signups`).
		WillReturnError(&pq.Error{Code: "42703", Message: "column does not exist"})

	result, err := store.Insert(context.Background(), acceptedRecord("a@example.com"))
	if err == nil {
		t.Fatal("schema mismatch must surface as a store error")
	}
	if result != InsertFailed {
		t.Errorf("result = %v, want InsertFailed", result)
	}
}

func TestCountRecentByIP(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM waitlist_signups WHERE ip_hash = $1 AND created_at >= $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := store.CountRecentByIP(context.Background(), "hash", time.Now().Add(-RateLimitWindow))
	if err != nil {
		t.Fatalf("CountRecentByIP: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestStats(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM waitlist_signups`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))
	mock.ExpectQuery(`GROUP BY day ORDER BY day DESC LIMIT 30`).
		WillReturnRows(sqlmock.NewRows([]string{"day", "count"}).
			AddRow("2026-08-29", int64(7)).
			AddRow("2026-08-28", int64(5)))
	mock.ExpectQuery(`ORDER BY created_at DESC LIMIT 200`).
		WillReturnRows(sqlmock.NewRows([]string{"email", "created_at"}).
			AddRow("b@example.com", time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)).
			AddRow("a@example.com", time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)))

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 12 {
		t.Errorf("Total = %d, want 12", stats.Total)
	}
	if len(stats.ByDay) != 2 || stats.ByDay[0].Day != "2026-08-29" || stats.ByDay[0].Count != 7 {
		t.Errorf("ByDay = %+v", stats.ByDay)
	}
	if len(stats.Recent) != 2 || stats.Recent[0].Email != "b@example.com" {
		t.Errorf("Recent = %+v", stats.Recent)
	}
}
