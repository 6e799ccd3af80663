// Package scheduler provides the in-process recurring job scheduler that
// drives upkeep's maintenance work.
//
// # Overview
//
// Jobs are registered under a logical name (e.g. "rates:refresh") together
// with a Schedule and a run function. Names are unique: registering the same
// name twice is an error. All registration happens before Start(); the
// registry is rebuilt from configuration on every process start and nothing
// is persisted.
//
// # Schedule formats
//
// Three schedule kinds are supported:
//
//   - Every(d): fixed interval, e.g. every 30m.
//   - AtMidnightUTC(): fires at 00:00:00 UTC each day. The next fire time is
//     always recomputed as the next UTC midnight, so there is exactly one
//     timer per job regardless of how long a run takes.
//   - Cron(spec): standard 5-field cron expressions plus descriptors
//     ("@hourly", "@every 55m"), evaluated in UTC.
//
// ParseSchedule accepts all of the above as strings for config-driven
// registration.
//
// # Execution model
//
// Start() runs every registered job once, synchronously, before returning
// (cold start populates state eagerly instead of waiting a full interval).
// After that, one timer loop per job enqueues work onto a shared worker
// pool. A job error is logged, counted, and published on the event bus; it
// never unregisters the job or stops the scheduler, and the next firing
// proceeds on cadence. There is no retry: a failed run simply waits for its
// next scheduled firing.
//
// # Concurrency and overlap
//
// The default overlap policy skips a firing while the previous run of the
// same job is still executing (the skip is logged and published as
// job.skipped). OverlapAllow restores unguarded behavior for jobs that are
// safe to overlap, such as idempotent deletes.
//
// # Lifecycle
//
// Stop() cancels all pending timers exactly once and waits for in-flight
// runs to finish; it does not cancel them (the per-job timeout still
// applies). Stop is idempotent.
package scheduler
