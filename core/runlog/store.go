// Package runlog keeps the history of optimisation runs: inputs summary,
// solver outcome and cost breakdown, so past schedules can be listed and
// compared.
package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/bhkw/core/schedule"
)

// RunRecord captures one optimisation run.
type RunRecord struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Solver    string             `json:"solver"`
	Status    string             `json:"status"`
	Objective float64            `json:"objective"`
	Gap       float64            `json:"gap"`
	Nodes     int                `json:"nodes"`
	Runtime   time.Duration      `json:"runtime"`
	Steps     int                `json:"steps"`
	Online    int                `json:"online_steps"`
	Cost      schedule.Breakdown `json:"cost"`
	InputDir  string             `json:"input_dir"`
	Output    string             `json:"output,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// RunQuery defines filters for retrieving records.
type RunQuery struct {
	Start  time.Time
	End    time.Time
	Status string
	Limit  int
}

func (q RunQuery) match(r RunRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	return q.Status == "" || r.Status == q.Status
}

// Store persists RunRecords and supports querying.
type Store interface {
	Append(ctx context.Context, rec RunRecord) error
	Query(ctx context.Context, q RunQuery) ([]RunRecord, error)
	Close() error
}

// Config selects and configures the run store backend.
type Config struct {
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Open returns the store described by cfg. An empty path disables the run
// history.
func Open(cfg Config) (Store, error) {
	if cfg.Path == "" {
		return NopStore{}, nil
	}
	switch cfg.Backend {
	case "", "jsonl":
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown runlog backend %q", cfg.Backend)
	}
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, RunRecord) error              { return nil }
func (NopStore) Query(context.Context, RunQuery) ([]RunRecord, error) { return nil, nil }
func (NopStore) Close() error                                         { return nil }
