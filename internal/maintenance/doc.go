// Package maintenance implements the recurring jobs that keep the advisory
// platform's data fresh and its tables lean: exchange-rate refresh, expired
// session cleanup, stale cache pruning, daily usage resets, a store health
// check, and a daily run report.
//
// Each job is a plain Run(ctx) error unit plugged into the scheduler; jobs
// share the scheduler's failure-isolation contract but differ in side
// effects. Failures inside a job are scoped as narrowly as possible (per
// currency, per table) so one failing unit never aborts its siblings.
package maintenance
