package maintenance

import (
	"context"
	"time"

	logx "upkeep/pkg/logx"
)

// SessionCleaner deletes session rows whose expiry is strictly before now.
// Pure and idempotent, so it is safe under self-overlap.
type SessionCleaner struct {
	store Store
	log   logx.Logger
	now   func() time.Time
}

func NewSessionCleaner(store Store, log logx.Logger) *SessionCleaner {
	return &SessionCleaner{
		store: store,
		log:   log.With(logx.String("job", "sessions:cleanup")),
		now:   time.Now,
	}
}

func (c *SessionCleaner) Run(ctx context.Context) error {
	n, err := c.store.DeleteExpiredSessions(ctx, c.now())
	if err != nil {
		return err
	}
	if n > 0 {
		c.log.Info("expired sessions removed", logx.Int64("rows", n))
	} else {
		c.log.Debug("no expired sessions")
	}
	return nil
}
