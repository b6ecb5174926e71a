package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines journal, no external dependencies
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 leaves the driver default
	// Retain caps the number of records kept; 0 keeps everything.
	Retain int
}

// Record is one journal line. Keep it compact and schema-stable.
type Record struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`   // bus event type, e.g. "timer.fired"
	Source string    `json:"source"` // "timer" | "event"
	ID     string    `json:"id"`
	Name   string    `json:"name,omitempty"`
	// Detail is kind-specific: the new state, the tick, "immediate", ...
	Detail    string `json:"detail,omitempty"`
	Iteration uint64 `json:"iteration,omitempty"`
	Error     string `json:"error,omitempty"`
	MetaJSON  string `json:"meta,omitempty"`
}
