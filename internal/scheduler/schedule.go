package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes job activation times. Next must return the first
// activation strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// cronParser accepts standard 5-field specs plus descriptors ("@hourly",
// "@every 55m").
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type intervalSchedule struct {
	every time.Duration
}

// Every returns a fixed-interval schedule. Each next fire is computed from
// the previous fire time, so slow runs do not shift the cadence.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		d = time.Second
	}
	return intervalSchedule{every: d}
}

func (s intervalSchedule) Next(t time.Time) time.Time { return t.Add(s.every) }
func (s intervalSchedule) String() string             { return "@every " + s.every.String() }

type midnightSchedule struct{}

// AtMidnightUTC returns a schedule that fires at 00:00:00.000 UTC every day.
// The next fire time is recomputed from the clock on every activation, so a
// job carries a single timer instead of layering a separate 24h interval on
// top of a midnight anchor.
func AtMidnightUTC() Schedule { return midnightSchedule{} }

func (midnightSchedule) Next(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func (midnightSchedule) String() string { return "@midnight-utc" }

type cronSchedule struct {
	spec  string
	sched cron.Schedule
}

// Cron parses a cron expression and returns a schedule evaluated in UTC.
func Cron(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return cronSchedule{spec: spec, sched: sched}, nil
}

func (s cronSchedule) Next(t time.Time) time.Time { return s.sched.Next(t.UTC()) }
func (s cronSchedule) String() string             { return s.spec }

// ParseSchedule turns a config string into a Schedule.
//
// Accepted forms:
//   - "@midnight-utc": daily at 00:00 UTC
//   - Go durations: "30m", "2h30m"
//   - Cron specs and descriptors: "0 3 * * 0", "@hourly", "@every 55m"
//
// To force interpretation, prefix with "cron:" or "every:".
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	switch {
	case strings.EqualFold(s, "@midnight-utc"), strings.EqualFold(s, "@midnight_utc"):
		return AtMidnightUTC(), nil
	case strings.HasPrefix(s, "cron:"):
		return Cron(strings.TrimPrefix(s, "cron:"))
	case strings.HasPrefix(s, "every:"):
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(s, "every:")))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", raw, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("interval must be > 0: %q", raw)
		}
		return Every(d), nil
	}

	// Bare duration ("55m") before cron, since cron would reject it anyway.
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("interval must be > 0: %q", raw)
		}
		return Every(d), nil
	}

	sched, err := Cron(s)
	if err != nil {
		return nil, fmt.Errorf("unrecognized schedule %q (want duration, cron spec, or @midnight-utc)", raw)
	}
	return sched, nil
}

// UntilNextMidnightUTC reports the exact time remaining until 00:00:00.000
// UTC of the next day. The result is in [0, 24h); it is 0 when now is
// exactly at a UTC midnight.
func UntilNextMidnightUTC(now time.Time) time.Duration {
	u := now.UTC()
	mid := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	if u.Equal(mid) {
		return 0
	}
	return mid.AddDate(0, 0, 1).Sub(u)
}
