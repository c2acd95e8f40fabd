package metrics

import (
	"errors"
	"time"

	"github.com/kilianp07/bhkw/core/model"
)

// RunEvent summarises one optimisation run.
type RunEvent struct {
	RunID       string
	Solver      string
	Status      string
	Objective   float64
	Gap         float64
	Nodes       int
	Runtime     time.Duration
	Steps       int
	OnlineSteps int
	FuelCost    float64
	Revenue     float64
	Time        time.Time
}

// RunSink records run outcomes for observability purposes.
type RunSink interface {
	RecordRun(ev RunEvent) error
}

// ScheduleRecorder is implemented by sinks able to persist the solved rows.
type ScheduleRecorder interface {
	RecordSchedule(runID string, rows []model.Row) error
}

// NopSink implements RunSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordRun(RunEvent) error                 { return nil }
func (NopSink) RecordSchedule(string, []model.Row) error { return nil }

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []RunSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...RunSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRun forwards the event to every sink and joins their errors.
func (m *MultiSink) RecordRun(ev RunEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordRun(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordSchedule forwards the rows to the sinks implementing ScheduleRecorder.
func (m *MultiSink) RecordSchedule(runID string, rows []model.Row) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(ScheduleRecorder); ok {
			if err := rec.RecordSchedule(runID, rows); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
