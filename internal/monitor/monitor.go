// Package monitor watches job lifecycle events and raises an alert when a
// job fails several times in a row. The scheduler itself never disables a
// failing job, so this is the operator-facing signal that something needs
// attention.
package monitor

import (
	"context"
	"sync"

	"upkeep/internal/eventbus"
	"upkeep/internal/scheduler"
	logx "upkeep/pkg/logx"
)

// Config controls the failure monitor.
type Config struct {
	// MaxConsecutiveFailures before an alert fires. 0 uses the default (3).
	MaxConsecutiveFailures int
}

type Service struct {
	log logx.Logger
	bus eventbus.Bus

	mu        sync.Mutex
	threshold int
	streaks   map[string]int
	alerted   map[string]bool

	unsub func()
	done  chan struct{}
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	threshold := cfg.MaxConsecutiveFailures
	if threshold <= 0 {
		threshold = 3
	}
	return &Service{
		log:       log,
		bus:       bus,
		threshold: threshold,
		streaks:   map[string]int{},
		alerted:   map[string]bool{},
	}
}

// Apply updates the alert threshold (config hot reload).
func (s *Service) Apply(cfg Config) {
	threshold := cfg.MaxConsecutiveFailures
	if threshold <= 0 {
		threshold = 3
	}
	s.mu.Lock()
	s.threshold = threshold
	s.mu.Unlock()
}

// Start subscribes to the bus and consumes events until ctx is done or
// Stop is called.
func (s *Service) Start(ctx context.Context) {
	if s.bus == nil {
		return
	}
	ch, unsub := s.bus.Subscribe(64)
	s.unsub = unsub
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				s.observe(ev)
			}
		}
	}()
}

func (s *Service) Stop() {
	if s.unsub != nil {
		s.unsub()
	}
	if s.done != nil {
		<-s.done
	}
}

func (s *Service) observe(ev eventbus.Event) {
	je, ok := ev.Data.(scheduler.JobEvent)
	if !ok {
		return
	}

	switch ev.Type {
	case "job.failed":
		s.mu.Lock()
		s.streaks[je.Name]++
		streak := s.streaks[je.Name]
		threshold := s.threshold
		already := s.alerted[je.Name]
		if streak >= threshold {
			s.alerted[je.Name] = true
		}
		s.mu.Unlock()

		if streak >= threshold && !already {
			s.log.Error("job failing repeatedly",
				logx.String("job", je.Name),
				logx.Int("consecutive_failures", streak),
				logx.String("last_error", je.Error),
			)
			s.bus.Publish(eventbus.Event{Type: "job.alert", Data: scheduler.JobEvent{Name: je.Name, Error: je.Error}})
		}
	case "job.finished":
		s.mu.Lock()
		recovered := s.alerted[je.Name]
		s.streaks[je.Name] = 0
		s.alerted[je.Name] = false
		s.mu.Unlock()

		if recovered {
			s.log.Info("job recovered", logx.String("job", je.Name))
		}
	}
}

// Streak reports the current consecutive-failure count for a job.
func (s *Service) Streak(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaks[name]
}
