package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"upkeep/internal/eventbus"
	logx "upkeep/pkg/logx"
)

// Service runs registered jobs on their schedules using per-job timer loops
// and a shared worker pool.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus
	cfg Config

	entries []*entry
	byName  map[string]*entry

	queue    chan runRequest
	stopCh   chan struct{}
	stopDone chan struct{}
	runCtx   context.Context
	loopWG   sync.WaitGroup
	workerWG sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem

	dropped atomic.Uint64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		byName: map[string]*entry{},
	}
}

// Register adds a job to the registry. It must be called before Start.
// Job names are unique; registering a duplicate is an error.
func (s *Service) Register(job Job) error {
	job.Name = strings.TrimSpace(job.Name)
	if job.Name == "" {
		return errors.New("job name required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q: run function required", job.Name)
	}
	if job.Schedule == nil {
		return fmt.Errorf("job %q: schedule required", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return fmt.Errorf("job %q: scheduler already started", job.Name)
	}
	if _, dup := s.byName[job.Name]; dup {
		return fmt.Errorf("job %q: already registered", job.Name)
	}
	e := &entry{job: job, state: &RunState{}}
	s.entries = append(s.entries, e)
	s.byName[job.Name] = e
	s.log.Debug("job registered",
		logx.String("job", job.Name),
		logx.String("schedule", job.Schedule.String()),
		logx.Duration("timeout", s.resolveTimeoutLocked(job.Timeout)),
	)
	return nil
}

// Start runs every registered job once, synchronously, then begins periodic
// scheduling. It returns once all timer loops and workers are up; it does
// not block waiting for subsequent job completions. Calling Start on a
// running scheduler is a no-op.
func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete (prevents double
	// worker pools after a rapid stop/start toggle).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
			// loop and try again
		case <-ctx.Done():
			return
		}
	}

	s.stopCh = make(chan struct{})
	// Runs started before Stop() finish even after Stop(): shutdown cancels
	// pending future firings, never in-flight work. The per-job timeout still
	// bounds each run.
	s.runCtx = context.WithoutCancel(ctx)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	qs := s.cfg.QueueSize
	if qs <= 0 {
		qs = 64
	}
	// Fresh queue per run to avoid executing stale items after a stop/start toggle.
	s.queue = make(chan runRequest, qs)

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue
	entries := s.entries
	s.mu.Unlock()

	s.log.Info("scheduler started", logx.Int("workers", workers), logx.Int("jobs", len(entries)))

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			s.log.Debug("worker started", logx.Int("worker", idx))
			s.worker(runCtx, stopCh, queue)
			s.log.Debug("worker stopped", logx.Int("worker", idx))
		}()
	}

	// Eager first run: cold start populates state instead of waiting a full
	// interval. Failures are isolated exactly like scheduled runs.
	for _, e := range entries {
		if e.state.tryAcquire() {
			s.execOne(runCtx, runRequest{e: e, track: true})
		}
	}

	s.loopWG.Add(len(entries))
	for _, e := range entries {
		go func(e *entry) {
			defer s.loopWG.Done()
			s.jobLoop(stopCh, queue, e)
		}(e)
	}
}

// Stop cancels every pending timer, stops the workers, and waits for
// in-flight runs to finish (it does not cancel them). Idempotent: calling
// Stop when already stopped is a no-op.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		// A stop is already in progress; just wait (best-effort).
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)

	// Finalize cleanup in background so Stop() can return on ctx timeout.
	go func() {
		s.loopWG.Wait()
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.queue = nil
		s.runCtx = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// RunNow executes one job by name, synchronously, outside its schedule.
// Used by the manual trigger; respects the job's timeout and overlap guard.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e := s.byName[strings.TrimSpace(name)]
	s.mu.Unlock()
	if e == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	if !e.state.tryAcquire() {
		return fmt.Errorf("job %q already running", name)
	}
	s.execOne(ctx, runRequest{e: e, track: true})

	e.mu.Lock()
	lastErr := e.stats.LastErr
	e.mu.Unlock()
	if lastErr != "" {
		return errors.New(lastErr)
	}
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Service) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.job.Name)
	}
	return names
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.stopCh != nil
	workers := s.cfg.Workers
	ql, qc := 0, 0
	if s.queue != nil {
		ql = len(s.queue)
		qc = cap(s.queue)
	}
	entries := make([]*entry, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	if workers <= 0 {
		workers = 2
	}

	jobs := make([]JobInfo, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		jobs = append(jobs, JobInfo{
			Name:     e.job.Name,
			Schedule: e.job.Schedule.String(),
			Timeout:  e.job.Timeout,
			Next:     e.next,
			Prev:     e.prev,
			Stats:    e.stats,
		})
		e.mu.Unlock()
	}

	s.hmu.Lock()
	hist := make([]HistoryItem, len(s.history))
	copy(hist, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Running:  running,
		Workers:  workers,
		QueueLen: ql,
		QueueCap: qc,
		Dropped:  s.dropped.Load(),
		Jobs:     jobs,
		History:  hist,
	}
}

func (s *Service) resolveTimeoutLocked(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return s.cfg.DefaultTimeout
}
