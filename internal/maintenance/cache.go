package maintenance

import (
	"context"
	"fmt"
	"time"

	"upkeep/internal/storage"
	logx "upkeep/pkg/logx"
)

// DefaultCacheRetention is how long cache rows are kept after their last
// access.
const DefaultCacheRetention = 7 * 24 * time.Hour

// CachePruner deletes cache rows whose last access is strictly older than
// the retention window. The cache tables belong to the web layer's schema;
// a missing table is logged as a skip, not treated as a failure.
type CachePruner struct {
	store     Store
	tables    []string
	retention time.Duration
	log       logx.Logger
	now       func() time.Time
}

func NewCachePruner(store Store, tables []string, retention time.Duration, log logx.Logger) *CachePruner {
	if retention <= 0 {
		retention = DefaultCacheRetention
	}
	return &CachePruner{
		store:     store,
		tables:    tables,
		retention: retention,
		log:       log.With(logx.String("job", "cache:prune")),
		now:       time.Now,
	}
}

func (p *CachePruner) Run(ctx context.Context) error {
	cutoff := p.now().Add(-p.retention)
	var failed int
	for _, table := range p.tables {
		n, err := p.store.PruneCache(ctx, table, cutoff)
		if err != nil {
			if storage.IsMissingTable(err) {
				// Schema not provisioned in this environment; nothing to prune.
				p.log.Info("cache table missing; skipping", logx.String("table", table))
				continue
			}
			failed++
			p.log.Warn("cache prune failed", logx.String("table", table), logx.Err(err))
			continue
		}
		if n > 0 {
			p.log.Info("stale cache rows removed", logx.String("table", table), logx.Int64("rows", n))
		} else {
			p.log.Debug("cache table clean", logx.String("table", table))
		}
	}

	if failed > 0 {
		return fmt.Errorf("prune caches: %d/%d tables failed", failed, len(p.tables))
	}
	return nil
}
