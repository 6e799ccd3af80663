package maintenance

import (
	"context"
	"time"

	"upkeep/internal/eventbus"
	logx "upkeep/pkg/logx"
)

// HealthChecker pings the store on a fixed cadence. A failed ping is a
// failed run (so it shows up in scheduler stats and the failure monitor)
// and is additionally published as health.degraded for any subscriber.
type HealthChecker struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger
}

func NewHealthChecker(store Store, bus eventbus.Bus, log logx.Logger) *HealthChecker {
	return &HealthChecker{
		store: store,
		bus:   bus,
		log:   log.With(logx.String("job", "health:check")),
	}
}

func (h *HealthChecker) Run(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.store.Ping(pctx); err != nil {
		h.log.Warn("store ping failed", logx.Err(err))
		if h.bus != nil {
			h.bus.Publish(eventbus.Event{Type: "health.degraded", Data: map[string]string{"component": "storage", "error": err.Error()}})
		}
		return err
	}
	h.log.Debug("health check passed")
	return nil
}
