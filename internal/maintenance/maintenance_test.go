package maintenance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"upkeep/internal/eventbus"
	"upkeep/internal/storage"
	logx "upkeep/pkg/logx"
)

type fakeStore struct {
	rates       []storage.Rate
	upsertErr   map[string]error
	sessionsErr error
	sessionsN   int64
	sessionsAt  time.Time
	pruneErr    map[string]error
	pruned      []string
	pruneCutoff time.Time
	usageErr    error
	usageN      int64
	usageDay    string
	pingErr     error
}

func (f *fakeStore) UpsertRate(ctx context.Context, r storage.Rate) error {
	if err := f.upsertErr[r.Target]; err != nil {
		return err
	}
	f.rates = append(f.rates, r)
	return nil
}

func (f *fakeStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	f.sessionsAt = now
	return f.sessionsN, f.sessionsErr
}

func (f *fakeStore) PruneCache(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	f.pruneCutoff = cutoff
	if err := f.pruneErr[table]; err != nil {
		return 0, err
	}
	f.pruned = append(f.pruned, table)
	return 1, nil
}

func (f *fakeStore) ResetDailyUsage(ctx context.Context, today string) (int64, error) {
	f.usageDay = today
	return f.usageN, f.usageErr
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

type fakeProvider struct {
	rates map[string]float64
	errs  map[string]error
}

func (p *fakeProvider) Rate(ctx context.Context, base, target string) (float64, error) {
	if err := p.errs[target]; err != nil {
		return 0, err
	}
	return p.rates[target], nil
}

func TestRatesRefresherIsolatesFailures(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	pr := &fakeProvider{
		rates: map[string]float64{"EUR": 0.91, "JPY": 147.2},
		errs:  map[string]error{"GBP": errors.New("upstream timeout")},
	}
	job := NewRatesRefresher(st, pr, "usd", []string{"EUR", "gbp", "JPY", "", "USD"}, logx.Nop())

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected summary error when one currency fails")
	}
	if !strings.Contains(err.Error(), "1/3") {
		t.Fatalf("summary = %v, want 1/3 failed", err)
	}

	// EUR and JPY were stored despite GBP failing; base and empty skipped.
	if len(st.rates) != 2 {
		t.Fatalf("stored rates = %d, want 2", len(st.rates))
	}
	for _, r := range st.rates {
		if r.Base != "USD" {
			t.Fatalf("base = %q, want USD", r.Base)
		}
	}
}

func TestRatesRefresherCountsUpsertFailures(t *testing.T) {
	t.Parallel()
	st := &fakeStore{upsertErr: map[string]error{"EUR": errors.New("db locked")}}
	pr := &fakeProvider{rates: map[string]float64{"EUR": 0.91, "JPY": 147.2}}
	job := NewRatesRefresher(st, pr, "USD", []string{"EUR", "JPY"}, logx.Nop())

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected summary error for upsert failure")
	}
	if len(st.rates) != 1 || st.rates[0].Target != "JPY" {
		t.Fatalf("stored rates = %+v, want only JPY", st.rates)
	}
}

func TestRatesRefresherAllOK(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	pr := &fakeProvider{rates: map[string]float64{"EUR": 0.91}}
	job := NewRatesRefresher(st, pr, "USD", []string{"EUR"}, logx.Nop())
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
}

func TestCachePrunerSkipsMissingTables(t *testing.T) {
	t.Parallel()
	st := &fakeStore{pruneErr: map[string]error{
		"compliance_cache": errors.New("SQL logic error: no such table: compliance_cache"),
	}}
	job := NewCachePruner(st, []string{"vehicle_lookup_cache", "compliance_cache"}, 0, logx.Nop())

	// A missing table is a skip, not a failure.
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(st.pruned) != 1 || st.pruned[0] != "vehicle_lookup_cache" {
		t.Fatalf("pruned = %v, want [vehicle_lookup_cache]", st.pruned)
	}
}

func TestCachePrunerCountsRealFailures(t *testing.T) {
	t.Parallel()
	st := &fakeStore{pruneErr: map[string]error{
		"vehicle_lookup_cache": errors.New("disk I/O error"),
	}}
	job := NewCachePruner(st, []string{"vehicle_lookup_cache", "compliance_cache"}, 0, logx.Nop())

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected summary error")
	}
	if !strings.Contains(err.Error(), "1/2") {
		t.Fatalf("summary = %v, want 1/2 failed", err)
	}
	if len(st.pruned) != 1 {
		t.Fatalf("pruned = %v, want the remaining table", st.pruned)
	}
}

func TestCachePrunerDefaultRetention(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	job := NewCachePruner(st, []string{"vehicle_lookup_cache"}, 0, logx.Nop())
	fixed := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := fixed.Add(-DefaultCacheRetention)
	if !st.pruneCutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", st.pruneCutoff, want)
	}
}

func TestSessionCleanerPassesNow(t *testing.T) {
	t.Parallel()
	st := &fakeStore{sessionsN: 4}
	job := NewSessionCleaner(st, logx.Nop())
	fixed := time.Date(2026, time.August, 30, 3, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !st.sessionsAt.Equal(fixed) {
		t.Fatalf("now = %v, want %v", st.sessionsAt, fixed)
	}

	st.sessionsErr = errors.New("db closed")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestUsageResetterUsesUTCDay(t *testing.T) {
	t.Parallel()
	st := &fakeStore{usageN: 2}
	job := NewUsageResetter(st, logx.Nop())
	// 01:30 on the 30th in UTC+3 is still 22:30 on the 29th in UTC; the UTC
	// day string decides the boundary.
	job.now = func() time.Time {
		return time.Date(2026, time.August, 30, 1, 30, 0, 0, time.FixedZone("UTC+3", 3*3600))
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if st.usageDay != "2026-08-29" {
		t.Fatalf("day = %q, want 2026-08-29", st.usageDay)
	}
}

func TestHealthCheckerPublishesDegraded(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	st := &fakeStore{pingErr: errors.New("database is locked")}
	job := NewHealthChecker(st, bus, logx.Nop())

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected ping failure")
	}
	select {
	case ev := <-ch:
		if ev.Type != "health.degraded" {
			t.Fatalf("event type = %q, want health.degraded", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no health.degraded event published")
	}

	st.pingErr = nil
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error after recovery: %v", err)
	}
}
