// Package poller runs named fetch operations on fixed intervals.
package poller

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultInterval matches the dashboard's standard refresh cadence.
	DefaultInterval = 30 * time.Second
)

var (
	ErrInvalidInterval = errors.New("poll interval must be positive")
	ErrNilTask         = errors.New("poll task is nil")
	ErrEmptyKey        = errors.New("poller key is empty")

	// ErrDone may be returned by a Task to end its own poller.
	ErrDone = errors.New("poll task finished")
)

// Task is one fetch operation. ctx is cancelled when the poller stops; a task
// must not mutate shared state once ctx is done.
type Task func(ctx context.Context) error

// SuppressFunc is evaluated before every tick; returning true skips the tick.
type SuppressFunc func() bool

// Stats describes what a poller has done so far.
type Stats struct {
	Key        string    `json:"key"`
	Owner      string    `json:"owner,omitempty"`
	Interval   string    `json:"interval"`
	Runs       uint64    `json:"runs"`
	Errors     uint64    `json:"errors"`
	Suppressed uint64    `json:"suppressed"`
	Dropped    uint64    `json:"dropped"`
	Throttled  uint64    `json:"throttled"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}
