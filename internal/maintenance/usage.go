package maintenance

import (
	"context"
	"time"

	logx "upkeep/pkg/logx"
)

// UsageResetter clears per-user daily lookup counters for days before the
// current UTC day. Scheduled at UTC midnight; rows for the new day are
// untouched, so a late or repeated run is harmless.
type UsageResetter struct {
	store Store
	log   logx.Logger
	now   func() time.Time
}

func NewUsageResetter(store Store, log logx.Logger) *UsageResetter {
	return &UsageResetter{
		store: store,
		log:   log.With(logx.String("job", "usage:reset")),
		now:   time.Now,
	}
}

func (u *UsageResetter) Run(ctx context.Context) error {
	today := u.now().UTC().Format("2006-01-02")
	n, err := u.store.ResetDailyUsage(ctx, today)
	if err != nil {
		return err
	}
	u.log.Info("daily usage counters reset", logx.String("day", today), logx.Int64("rows", n))
	return nil
}
