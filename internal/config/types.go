package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the daemon's full configuration. Durations are Go duration
// strings (e.g. "500ms", "30m", "168h").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Rates      RatesConfig      `json:"rates"`
	Scheduler  SchedulerConfig  `json:"scheduler,omitempty"`
	Jobs       JobsConfig       `json:"jobs,omitempty"`
	Monitoring MonitoringConfig `json:"monitoring,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console *bool      `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type RatesConfig struct {
	Endpoint       string   `json:"endpoint"`
	Base           string   `json:"base,omitempty"`
	Currencies     []string `json:"currencies,omitempty"`
	RequestTimeout string   `json:"request_timeout,omitempty"`
	RatePerSec     int      `json:"rate_per_sec,omitempty"`
}

// SchedulerConfig controls execution settings for all jobs.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - default_timeout: "1m"
//   - history_size: 200
type SchedulerConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// JobConfig tunes one maintenance job. Enabled is a pointer so "omitted"
// (default true) is distinguishable from an explicit false.
type JobConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Schedule string `json:"schedule,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// CacheJobConfig is JobConfig plus the prune-specific knobs.
type CacheJobConfig struct {
	JobConfig
	Retention string   `json:"retention,omitempty"`
	Tables    []string `json:"tables,omitempty"`
}

type JobsConfig struct {
	RefreshRates    JobConfig      `json:"refresh_rates,omitempty"`
	CleanupSessions JobConfig      `json:"cleanup_sessions,omitempty"`
	PruneCache      CacheJobConfig `json:"prune_cache,omitempty"`
	ResetUsage      JobConfig      `json:"reset_usage,omitempty"`
	HealthCheck     JobConfig      `json:"health_check,omitempty"`
	DailyReport     JobConfig      `json:"daily_report,omitempty"`
}

type MonitoringConfig struct {
	MaxConsecutiveFailures int `json:"max_consecutive_failures,omitempty"`
}

// Default schedules. The report runs just before the usage reset so it
// summarizes the day it belongs to.
const (
	defRefreshSchedule  = "1h"
	defSessionsSchedule = "30m"
	defCacheSchedule    = "6h"
	defUsageSchedule    = "@midnight-utc"
	defHealthSchedule   = "@hourly"
	defReportSchedule   = "59 23 * * *"
)

// ApplyDefaults fills zero-valued fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Console == nil {
		t := true
		c.Logging.Console = &t
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "./data/upkeep.db"
	}
	if strings.TrimSpace(c.Storage.BusyTimeout) == "" {
		c.Storage.BusyTimeout = "5s"
	}
	if strings.TrimSpace(c.Rates.Base) == "" {
		c.Rates.Base = "USD"
	}
	if len(c.Rates.Currencies) == 0 {
		c.Rates.Currencies = []string{"EUR", "GBP", "JPY", "CAD", "AUD"}
	}
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = 2
	}
	if c.Scheduler.QueueSize <= 0 {
		c.Scheduler.QueueSize = 64
	}
	if strings.TrimSpace(c.Scheduler.DefaultTimeout) == "" {
		c.Scheduler.DefaultTimeout = "1m"
	}
	if c.Scheduler.HistorySize <= 0 {
		c.Scheduler.HistorySize = 200
	}

	applySchedule := func(j *JobConfig, def string) {
		if strings.TrimSpace(j.Schedule) == "" {
			j.Schedule = def
		}
	}
	applySchedule(&c.Jobs.RefreshRates, defRefreshSchedule)
	applySchedule(&c.Jobs.CleanupSessions, defSessionsSchedule)
	applySchedule(&c.Jobs.PruneCache.JobConfig, defCacheSchedule)
	applySchedule(&c.Jobs.ResetUsage, defUsageSchedule)
	applySchedule(&c.Jobs.HealthCheck, defHealthSchedule)
	applySchedule(&c.Jobs.DailyReport, defReportSchedule)

	if strings.TrimSpace(c.Jobs.PruneCache.Retention) == "" {
		c.Jobs.PruneCache.Retention = "168h"
	}
	if len(c.Jobs.PruneCache.Tables) == 0 {
		c.Jobs.PruneCache.Tables = []string{"vehicle_lookup_cache", "compliance_cache"}
	}
	if c.Monitoring.MaxConsecutiveFailures <= 0 {
		c.Monitoring.MaxConsecutiveFailures = 3
	}
}

// Validate checks durations and required fields. Call after ApplyDefaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Rates.Endpoint) == "" && c.Jobs.RefreshRates.IsEnabled() {
		return fmt.Errorf("rates.endpoint is required while jobs.refresh_rates is enabled")
	}

	durations := map[string]string{
		"storage.busy_timeout":       c.Storage.BusyTimeout,
		"rates.request_timeout":      c.Rates.RequestTimeout,
		"scheduler.default_timeout":  c.Scheduler.DefaultTimeout,
		"jobs.prune_cache.retention": c.Jobs.PruneCache.Retention,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}

	timeouts := map[string]string{
		"jobs.refresh_rates.timeout":    c.Jobs.RefreshRates.Timeout,
		"jobs.cleanup_sessions.timeout": c.Jobs.CleanupSessions.Timeout,
		"jobs.prune_cache.timeout":      c.Jobs.PruneCache.Timeout,
		"jobs.reset_usage.timeout":      c.Jobs.ResetUsage.Timeout,
		"jobs.health_check.timeout":     c.Jobs.HealthCheck.Timeout,
		"jobs.daily_report.timeout":     c.Jobs.DailyReport.Timeout,
	}
	for path, raw := range timeouts {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}

// IsEnabled reports whether the job should run (omitted means enabled).
func (j JobConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// Duration parses a duration field validated earlier; def is used when the
// field is empty.
func Duration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
