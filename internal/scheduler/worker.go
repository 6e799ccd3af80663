package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"upkeep/internal/eventbus"
	logx "upkeep/pkg/logx"
)

// jobLoop owns the single timer for one job. Each activation recomputes the
// next fire time from the schedule, so a daily job re-anchors to the next
// UTC midnight instead of drifting or double-firing.
func (s *Service) jobLoop(stopCh <-chan struct{}, queue chan<- runRequest, e *entry) {
	next := e.job.Schedule.Next(time.Now())
	e.setNext(next)
	tmr := time.NewTimer(time.Until(next))
	defer tmr.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-tmr.C:
			s.dispatch(queue, e)
			next = e.job.Schedule.Next(time.Now())
			e.setNext(next)
			tmr.Reset(time.Until(next))
		}
	}
}

// dispatch applies the overlap policy and hands the job to the worker pool.
func (s *Service) dispatch(queue chan<- runRequest, e *entry) {
	track := false
	if e.job.Opt.Overlap == OverlapSkipIfRunning {
		if !e.state.tryAcquire() {
			e.markSkipped()
			s.log.Debug("job skipped (previous run still running)", logx.String("job", e.job.Name))
			if s.bus != nil {
				now := time.Now()
				s.bus.Publish(eventbus.Event{Type: "job.skipped", Time: now, Data: JobEvent{Name: e.job.Name, Started: now, Error: "overlap_skip"}})
			}
			return
		}
		track = true
	}

	req := runRequest{e: e, track: track}
	select {
	case queue <- req:
	default:
		if track {
			e.state.release()
		}
		s.dropped.Add(1)
		s.log.Warn("scheduler queue full; dropping run",
			logx.String("job", e.job.Name),
			logx.Int("queue_len", len(queue)),
			logx.Int("queue_cap", cap(queue)),
		)
		if s.bus != nil {
			now := time.Now()
			s.bus.Publish(eventbus.Event{Type: "job.dropped", Time: now, Data: JobEvent{Name: e.job.Name, Started: now, Error: "queue_full"}})
		}
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan runRequest) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-stopCh:
			return
		default:
		}

		select {
		case <-stopCh:
			return
		case req := <-queue:
			s.execOne(ctx, req)
		}
	}
}

// execOne runs a job once with full failure isolation: errors and panics are
// recovered, logged, counted, and published; they never propagate.
func (s *Service) execOne(ctx context.Context, req runRequest) {
	e := req.e
	start := time.Now()
	e.markStarted(start)
	if req.track {
		defer e.state.release()
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "job.started", Time: start, Data: JobEvent{Name: e.job.Name, Started: start}})
	}

	// Copy config for race-free timeout resolution and history trimming.
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	timeout := e.job.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	runCtx := ctx
	var cancel func()
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	err := s.runRecovered(runCtx, e)
	if cancel != nil {
		cancel()
	}
	e.markResult(err)

	dur := time.Since(start)
	item := HistoryItem{Name: e.job.Name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("job failed", logx.String("job", e.job.Name), logx.Err(err), logx.Duration("dur", dur))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "job.failed", Time: time.Now(), Data: JobEvent{Name: e.job.Name, Started: start, Duration: dur, Error: item.Error}})
		}
	} else {
		// Avoid noisy logs for very frequent jobs: only elevate to INFO when
		// the run took noticeable time.
		if dur >= 750*time.Millisecond {
			s.log.Info("job completed", logx.String("job", e.job.Name), logx.Duration("dur", dur))
		} else {
			s.log.Debug("job completed", logx.String("job", e.job.Name), logx.Duration("dur", dur))
		}
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "job.finished", Time: time.Now(), Data: JobEvent{Name: e.job.Name, Started: start, Duration: dur}})
		}
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	historySize := cfg.HistorySize
	// A zero/negative history_size would mean unbounded growth, which slowly
	// retains memory on long-running daemons; cap it.
	if historySize <= 0 {
		historySize = 200
	}
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) runRecovered(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("panic in job",
				logx.String("job", e.job.Name),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	return e.job.Run(ctx)
}
