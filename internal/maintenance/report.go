package maintenance

import (
	"context"
	"sync"

	"upkeep/internal/scheduler"
	logx "upkeep/pkg/logx"
)

// Snapshotter is the scheduler introspection surface the reporter reads.
type Snapshotter interface {
	Snapshot() scheduler.Snapshot
}

// Reporter writes one summary line per UTC day: runs, failures, skips, and
// the success rate since the previous report. Counters in the scheduler are
// lifetime totals, so the reporter keeps the previous totals and logs the
// delta.
type Reporter struct {
	sched Snapshotter
	log   logx.Logger

	mu   sync.Mutex
	prev map[string]scheduler.JobStats
}

func NewReporter(sched Snapshotter, log logx.Logger) *Reporter {
	return &Reporter{
		sched: sched,
		log:   log.With(logx.String("job", "report:daily")),
		prev:  map[string]scheduler.JobStats{},
	}
}

func (r *Reporter) Run(ctx context.Context) error {
	snap := r.sched.Snapshot()

	var runs, ok, failed, skipped uint64

	r.mu.Lock()
	for _, j := range snap.Jobs {
		p := r.prev[j.Name]
		runs += j.Stats.Runs - p.Runs
		ok += j.Stats.OK - p.OK
		failed += j.Stats.Failed - p.Failed
		skipped += j.Stats.Skipped - p.Skipped
		r.prev[j.Name] = j.Stats
	}
	r.mu.Unlock()

	rate := 100.0
	if runs > 0 {
		rate = float64(ok) / float64(runs) * 100
	}
	r.log.Info("daily maintenance report",
		logx.Uint64("runs", runs),
		logx.Uint64("ok", ok),
		logx.Uint64("failed", failed),
		logx.Uint64("skipped", skipped),
		logx.Float64("success_pct", rate),
		logx.Uint64("dropped_total", snap.Dropped),
	)
	return nil
}
