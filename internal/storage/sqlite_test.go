package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "upkeep/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "upkeep.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestUpsertRateReplaces(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	first := Rate{Base: "USD", Target: "EUR", Rate: 0.91, FetchedAt: time.Now().Add(-time.Hour)}
	if err := st.UpsertRate(ctx, first); err != nil {
		t.Fatalf("UpsertRate error: %v", err)
	}
	second := Rate{Base: "USD", Target: "EUR", Rate: 0.93, FetchedAt: time.Now()}
	if err := st.UpsertRate(ctx, second); err != nil {
		t.Fatalf("UpsertRate (update) error: %v", err)
	}

	got, ok, err := st.GetRate(ctx, "USD", "EUR")
	if err != nil {
		t.Fatalf("GetRate error: %v", err)
	}
	if !ok {
		t.Fatal("rate not found after upsert")
	}
	if got.Rate != 0.93 {
		t.Fatalf("rate = %v, want 0.93", got.Rate)
	}
	if !got.FetchedAt.After(first.FetchedAt) {
		t.Fatalf("fetched_at not updated: %v", got.FetchedAt)
	}

	if _, ok, err := st.GetRate(ctx, "USD", "JPY"); err != nil || ok {
		t.Fatalf("GetRate(missing) = ok=%v err=%v, want miss", ok, err)
	}
}

func TestDeleteExpiredSessionsBoundary(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	insert := func(sid string, expires time.Time) {
		t.Helper()
		_, err := st.db.ExecContext(ctx,
			`INSERT INTO sessions(sid, data, expires_at) VALUES(?,?,?)`,
			sid, "{}", expires.UnixMilli())
		if err != nil {
			t.Fatalf("insert %s: %v", sid, err)
		}
	}
	insert("past", now.Add(-time.Second))
	insert("exact", now)
	insert("future", now.Add(time.Second))

	n, err := st.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions error: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1 (strictly-before semantics)", n)
	}

	var left int
	if err := st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&left); err != nil {
		t.Fatalf("count: %v", err)
	}
	if left != 2 {
		t.Fatalf("remaining sessions = %d, want 2", left)
	}

	// Second pass deletes nothing.
	n, err = st.DeleteExpiredSessions(ctx, now)
	if err != nil || n != 0 {
		t.Fatalf("second pass = (%d, %v), want (0, nil)", n, err)
	}
}

func TestPruneCacheBoundaryAndMissingTable(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.PruneCache(ctx, "vehicle_lookup_cache", time.Now()); !IsMissingTable(err) {
		t.Fatalf("expected missing-table error, got %v", err)
	}

	_, err := st.db.ExecContext(ctx, `CREATE TABLE vehicle_lookup_cache (
		key TEXT PRIMARY KEY, value TEXT, last_accessed INTEGER NOT NULL)`)
	if err != nil {
		t.Fatalf("create cache table: %v", err)
	}

	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	insert := func(key string, at time.Time) {
		t.Helper()
		_, err := st.db.ExecContext(ctx,
			`INSERT INTO vehicle_lookup_cache(key, value, last_accessed) VALUES(?,?,?)`,
			key, "{}", at.UnixMilli())
		if err != nil {
			t.Fatalf("insert %s: %v", key, err)
		}
	}
	insert("stale", cutoff.Add(-time.Minute))
	insert("exact", cutoff)
	insert("fresh", cutoff.Add(time.Minute))

	n, err := st.PruneCache(ctx, "vehicle_lookup_cache", cutoff)
	if err != nil {
		t.Fatalf("PruneCache error: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}
}

func TestPruneCacheRejectsBadIdentifier(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	for _, name := range []string{"", "bad-name", "x; DROP TABLE sessions", "1starts_with_digit"} {
		if _, err := st.PruneCache(context.Background(), name, time.Now()); err == nil {
			t.Fatalf("PruneCache(%q): expected error", name)
		}
	}
}

func TestResetDailyUsage(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	insert := func(user, day string) {
		t.Helper()
		_, err := st.db.ExecContext(ctx,
			`INSERT INTO daily_usage(user_id, day, lookups) VALUES(?,?,3)`, user, day)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	insert("u1", "2026-08-28")
	insert("u1", "2026-08-29")
	insert("u2", "2026-08-29")

	n, err := st.ResetDailyUsage(ctx, "2026-08-29")
	if err != nil {
		t.Fatalf("ResetDailyUsage error: %v", err)
	}
	if n != 1 {
		t.Fatalf("reset = %d, want 1", n)
	}

	var today int
	err = st.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM daily_usage WHERE day = '2026-08-29'`).Scan(&today)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if today != 2 {
		t.Fatalf("rows for current day = %d, want 2", today)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}
