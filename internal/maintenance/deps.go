package maintenance

import (
	"context"
	"time"

	"upkeep/internal/storage"
)

// Store is the slice of the persistence API the maintenance jobs consume.
// *storage.Store satisfies it; tests substitute fakes.
type Store interface {
	UpsertRate(ctx context.Context, r storage.Rate) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	PruneCache(ctx context.Context, table string, cutoff time.Time) (int64, error)
	ResetDailyUsage(ctx context.Context, today string) (int64, error)
	Ping(ctx context.Context) error
}
