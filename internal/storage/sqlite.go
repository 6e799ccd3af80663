package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "upkeep/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// identRe validates SQL identifiers for the one place a table name is
// interpolated (cache pruning over config-listed tables).
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is the persistence API used by the maintenance jobs.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &Store{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// UpsertRate inserts or replaces the rate for the (base, target) pair.
func (s *Store) UpsertRate(ctx context.Context, r Rate) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if r.FetchedAt.IsZero() {
		r.FetchedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchange_rates(base, target, rate, fetched_at) VALUES(?,?,?,?)
		 ON CONFLICT(base, target) DO UPDATE SET rate=excluded.rate, fetched_at=excluded.fetched_at`,
		r.Base, r.Target, r.Rate, r.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetRate returns the stored rate for the pair, if any.
func (s *Store) GetRate(ctx context.Context, base, target string) (Rate, bool, error) {
	if s == nil || s.db == nil {
		return Rate{}, false, ErrClosed
	}
	var (
		r  Rate
		at string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT base, target, rate, fetched_at FROM exchange_rates WHERE base = ? AND target = ?`,
		base, target,
	).Scan(&r.Base, &r.Target, &r.Rate, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Rate{}, false, nil
	}
	if err != nil {
		return Rate{}, false, err
	}
	if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
		r.FetchedAt = t
	}
	return r, true, nil
}

// DeleteExpiredSessions removes sessions whose expiry is strictly before now.
// Idempotent: deleting an already-deleted row is a no-op.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneCache removes rows from the named cache table whose last access is
// strictly before cutoff. The table may be absent (web layer schema);
// callers distinguish that case with IsMissingTable.
func (s *Store) PruneCache(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	if !identRe.MatchString(table) {
		return 0, fmt.Errorf("invalid cache table name %q", table)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE last_accessed < ?`, table), cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResetDailyUsage clears usage counters for days before today (UTC day in
// "2006-01-02" form). Rows for the current day are left untouched.
func (s *Store) ResetDailyUsage(ctx context.Context, today string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM daily_usage WHERE day < ?`, today)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
