// Package app wires the daemon together: config, logging, storage, the
// rates provider, the event bus, the failure monitor, and the scheduler
// with its registered maintenance jobs. The scheduler is an explicit
// instance owned here; nothing in the repo reaches for process-wide state.
package app

import (
	"context"
	"fmt"
	"sync"

	"upkeep/internal/config"
	"upkeep/internal/eventbus"
	"upkeep/internal/maintenance"
	"upkeep/internal/monitor"
	"upkeep/internal/rates"
	"upkeep/internal/scheduler"
	"upkeep/internal/storage"
	logx "upkeep/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store *storage.Store
	bus   eventbus.Bus
	mon   *monitor.Service
	sched *scheduler.Service

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
	cfgCh       chan *config.Config
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console == nil || *cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("component", "config")))
	mgr.SetValidator(validateSchedules)

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: config.Duration(cfg.Storage.BusyTimeout, 0),
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()
	mon := monitor.New(monitor.Config{
		MaxConsecutiveFailures: cfg.Monitoring.MaxConsecutiveFailures,
	}, log.With(logx.String("component", "monitor")), bus)

	sched := scheduler.New(scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		QueueSize:      cfg.Scheduler.QueueSize,
		DefaultTimeout: config.Duration(cfg.Scheduler.DefaultTimeout, 0),
		HistorySize:    cfg.Scheduler.HistorySize,
	}, log.With(logx.String("component", "scheduler")), bus)

	a := &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		store:  store,
		bus:    bus,
		mon:    mon,
		sched:  sched,
	}

	if err := a.registerJobs(cfg); err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

// registerJobs builds the maintenance jobs from config and registers the
// enabled ones.
func (a *App) registerJobs(cfg *config.Config) error {
	add := func(name string, jc config.JobConfig, run func(ctx context.Context) error, opt scheduler.Options) error {
		if !jc.IsEnabled() {
			a.log.Info("job disabled by config", logx.String("job", name))
			return nil
		}
		sched, err := scheduler.ParseSchedule(jc.Schedule)
		if err != nil {
			return fmt.Errorf("job %q: %w", name, err)
		}
		return a.sched.Register(scheduler.Job{
			Name:     name,
			Schedule: sched,
			Timeout:  config.Duration(jc.Timeout, 0),
			Opt:      opt,
			Run:      run,
		})
	}

	if cfg.Jobs.RefreshRates.IsEnabled() {
		provider, err := rates.NewHTTP(rates.Config{
			Endpoint:       cfg.Rates.Endpoint,
			RequestTimeout: config.Duration(cfg.Rates.RequestTimeout, 0),
			RatePerSec:     cfg.Rates.RatePerSec,
		})
		if err != nil {
			return err
		}
		refresher := maintenance.NewRatesRefresher(a.store, provider, cfg.Rates.Base, cfg.Rates.Currencies, a.log)
		if err := add("rates:refresh", cfg.Jobs.RefreshRates, refresher.Run, scheduler.Options{}); err != nil {
			return err
		}
	} else {
		a.log.Info("job disabled by config", logx.String("job", "rates:refresh"))
	}

	// Session deletes are idempotent, so overlapping runs are harmless.
	cleaner := maintenance.NewSessionCleaner(a.store, a.log)
	if err := add("sessions:cleanup", cfg.Jobs.CleanupSessions, cleaner.Run, scheduler.Options{Overlap: scheduler.OverlapAllow}); err != nil {
		return err
	}

	pruner := maintenance.NewCachePruner(a.store, cfg.Jobs.PruneCache.Tables,
		config.Duration(cfg.Jobs.PruneCache.Retention, maintenance.DefaultCacheRetention), a.log)
	if err := add("cache:prune", cfg.Jobs.PruneCache.JobConfig, pruner.Run, scheduler.Options{}); err != nil {
		return err
	}

	resetter := maintenance.NewUsageResetter(a.store, a.log)
	if err := add("usage:reset", cfg.Jobs.ResetUsage, resetter.Run, scheduler.Options{}); err != nil {
		return err
	}

	health := maintenance.NewHealthChecker(a.store, a.bus, a.log)
	if err := add("health:check", cfg.Jobs.HealthCheck, health.Run, scheduler.Options{}); err != nil {
		return err
	}

	reporter := maintenance.NewReporter(a.sched, a.log)
	if err := add("report:daily", cfg.Jobs.DailyReport, reporter.Run, scheduler.Options{}); err != nil {
		return err
	}
	return nil
}

// Start brings up the monitor, runs every job once, begins periodic
// scheduling, and starts watching the config file for hot reloads.
func (a *App) Start(ctx context.Context) error {
	a.mon.Start(ctx)
	a.sched.Start(ctx)

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ch := a.cfgMgr.Subscribe(4)

	a.mu.Lock()
	a.watchCancel = cancel
	a.watchDone = done
	a.cfgCh = ch
	a.mu.Unlock()

	go func() {
		_ = a.cfgMgr.Watch(watchCtx)
	}()
	go func() {
		defer close(done)
		for {
			select {
			case <-watchCtx.Done():
				return
			case cfg, ok := <-ch:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	}()
	return nil
}

// applyConfig handles a hot-reloaded config. Log level/sinks and monitor
// thresholds apply live; job schedules take effect on restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console == nil || *cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.mon.Apply(monitor.Config{MaxConsecutiveFailures: cfg.Monitoring.MaxConsecutiveFailures})
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.watchCancel
	done := a.watchDone
	ch := a.cfgCh
	a.watchCancel = nil
	a.watchDone = nil
	a.cfgCh = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if ch != nil {
		a.cfgMgr.Unsubscribe(ch)
	}

	a.sched.Stop(ctx)
	a.mon.Stop()

	err := a.store.Close()
	_ = a.logSvc.Close()
	return err
}

// RunJob triggers one job by name, synchronously, outside its schedule.
func (a *App) RunJob(ctx context.Context, name string) error {
	return a.sched.RunNow(ctx, name)
}

// Jobs lists the registered job names.
func (a *App) Jobs() []string { return a.sched.Jobs() }

// validateSchedules rejects hot-reloaded configs whose schedules would not
// parse, before they are committed.
func validateSchedules(_ context.Context, cfg *config.Config) error {
	jobs := map[string]string{
		"jobs.refresh_rates":    cfg.Jobs.RefreshRates.Schedule,
		"jobs.cleanup_sessions": cfg.Jobs.CleanupSessions.Schedule,
		"jobs.prune_cache":      cfg.Jobs.PruneCache.Schedule,
		"jobs.reset_usage":      cfg.Jobs.ResetUsage.Schedule,
		"jobs.health_check":     cfg.Jobs.HealthCheck.Schedule,
		"jobs.daily_report":     cfg.Jobs.DailyReport.Schedule,
	}
	for path, raw := range jobs {
		if _, err := scheduler.ParseSchedule(raw); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}
