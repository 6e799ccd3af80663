package scheduler

import (
	"context"
	"sync"
	"time"
)

// Config controls the scheduler service.
type Config struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	HistorySize    int
}

type OverlapPolicy int

const (
	// OverlapSkipIfRunning skips a firing while the previous run of the same
	// job is still executing (or still queued). Default.
	OverlapSkipIfRunning OverlapPolicy = iota
	// OverlapAllow lets firings of the same job run concurrently.
	OverlapAllow
)

// Options tunes per-job behavior.
type Options struct {
	Overlap OverlapPolicy
}

// Job is a named, independently-failing unit of recurring work.
// Immutable once registered.
type Job struct {
	Name     string
	Schedule Schedule
	Timeout  time.Duration
	Opt      Options
	Run      func(ctx context.Context) error
}

// RunState tracks whether a job is already in-flight.
// "SkipIfRunning" treats "already queued" the same as "running", which
// prevents queue blow-ups when a schedule fires faster than execution.
type RunState struct {
	mu       sync.Mutex
	inflight int
}

func (s *RunState) tryAcquire() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *RunState) release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

// JobStats are lifetime counters for one job.
type JobStats struct {
	Runs     uint64
	OK       uint64
	Failed   uint64
	Skipped  uint64
	LastRun  time.Time
	LastErr  string
	ConsecOK uint64
}

// entry is the registry record for one job.
type entry struct {
	job   Job
	state *RunState

	mu    sync.Mutex
	stats JobStats
	next  time.Time
	prev  time.Time
}

func (e *entry) setNext(t time.Time) {
	e.mu.Lock()
	e.next = t
	e.mu.Unlock()
}

func (e *entry) markStarted(now time.Time) {
	e.mu.Lock()
	e.prev = now
	e.stats.Runs++
	e.stats.LastRun = now
	e.mu.Unlock()
}

func (e *entry) markResult(err error) {
	e.mu.Lock()
	if err != nil {
		e.stats.Failed++
		e.stats.LastErr = err.Error()
		e.stats.ConsecOK = 0
	} else {
		e.stats.OK++
		e.stats.LastErr = ""
		e.stats.ConsecOK++
	}
	e.mu.Unlock()
}

func (e *entry) markSkipped() {
	e.mu.Lock()
	e.stats.Skipped++
	e.mu.Unlock()
}

type runRequest struct {
	e     *entry
	track bool // release run state when done
}

// HistoryItem is one completed (or failed) run, kept in a bounded ring.
type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// JobEvent is emitted on the event bus for job lifecycle events.
type JobEvent struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// JobInfo is a diagnostics view of one registered job.
type JobInfo struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Next     time.Time
	Prev     time.Time
	Stats    JobStats
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Running  bool
	Workers  int
	QueueLen int
	QueueCap int
	Dropped  uint64
	Jobs     []JobInfo
	History  []HistoryItem
}
