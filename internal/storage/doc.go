// Package storage provides the SQLite persistence layer shared with the
// advisory web application.
//
// upkeep owns the maintenance side of the schema:
//   - exchange_rates upserts (rate refresh)
//   - expired session deletes
//   - stale cache-row pruning (tables owned by the web layer; tolerated
//     when absent)
//   - daily usage counter resets
package storage
