package storage

import (
	"errors"
	"strings"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Rate is one currency conversion rate relative to a base currency.
// Keyed by (Base, Target); upserts replace the previous rate.
type Rate struct {
	Base      string
	Target    string
	Rate      float64
	FetchedAt time.Time
}

// IsMissingTable reports whether err is SQLite's "relation does not exist"
// failure. Cache pruning treats this as a skip: the cache tables belong to
// the web layer and may not be provisioned in every environment.
func IsMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
