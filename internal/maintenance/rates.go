package maintenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"upkeep/internal/rates"
	"upkeep/internal/storage"
	logx "upkeep/pkg/logx"
)

// RatesRefresher fetches the conversion rate for every supported currency
// and upserts it. A failure for one currency is logged and the loop
// continues; the run reports an error only as a summary so the remaining
// currencies are never aborted.
type RatesRefresher struct {
	store    Store
	provider rates.Provider
	base     string
	targets  []string
	log      logx.Logger
	now      func() time.Time
}

func NewRatesRefresher(store Store, provider rates.Provider, base string, targets []string, log logx.Logger) *RatesRefresher {
	return &RatesRefresher{
		store:    store,
		provider: provider,
		base:     strings.ToUpper(strings.TrimSpace(base)),
		targets:  targets,
		log:      log.With(logx.String("job", "rates:refresh")),
		now:      time.Now,
	}
}

func (r *RatesRefresher) Run(ctx context.Context) error {
	var failed int
	total := 0
	for _, raw := range r.targets {
		target := strings.ToUpper(strings.TrimSpace(raw))
		if target == "" || target == r.base {
			continue
		}
		total++

		v, err := r.provider.Rate(ctx, r.base, target)
		if err != nil {
			failed++
			r.log.Warn("rate fetch failed", logx.String("pair", r.base+"->"+target), logx.Err(err))
			continue
		}
		rec := storage.Rate{Base: r.base, Target: target, Rate: v, FetchedAt: r.now()}
		if err := r.store.UpsertRate(ctx, rec); err != nil {
			failed++
			r.log.Warn("rate upsert failed", logx.String("pair", r.base+"->"+target), logx.Err(err))
			continue
		}
		r.log.Debug("rate updated", logx.String("pair", r.base+"->"+target), logx.Float64("rate", v))
	}

	if failed > 0 {
		return fmt.Errorf("refresh rates: %d/%d currencies failed", failed, total)
	}
	return nil
}
