package milp

import (
	"context"
	"errors"
	"time"
)

// ErrTimeLimit is returned when the time budget ran out before any feasible
// assignment was found.
var ErrTimeLimit = errors.New("time limit reached without incumbent")

// Status is the terminal state reported by a solver.
type Status int

const (
	StatusError Status = iota
	StatusOptimal
	StatusFeasible
	StatusInfeasible
	StatusUnbounded
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return "error"
	}
}

// HasSolution reports whether the status carries a usable assignment.
func (s Status) HasSolution() bool {
	return s == StatusOptimal || s == StatusFeasible
}

// Options bounds a solve.
type Options struct {
	// TimeLimit caps the wall time of the solve. Zero means no limit.
	TimeLimit time.Duration
	// MIPGap is the relative optimality gap at which the search stops.
	MIPGap float64
	// LogPath, when set, receives the solver log.
	LogPath string
}

// Solution is the outcome of a solve.
type Solution struct {
	Status    Status
	Values    []float64
	Objective float64
	// Bound is the best proven bound on the objective.
	Bound   float64
	Gap     float64
	Nodes   int
	Runtime time.Duration
	Solver  string
}

// Value returns the value of v, or 0 when no assignment is available.
func (s Solution) Value(v VarID) float64 {
	if int(v) < 0 || int(v) >= len(s.Values) {
		return 0
	}
	return s.Values[v]
}

// IsOptimal reports whether optimality was proven.
func (s Solution) IsOptimal() bool { return s.Status == StatusOptimal }

// Solver turns a Problem into a Solution. Implementations block until a
// terminal status is reached or ctx is done. Infeasible and unbounded models
// are reported through Status with a nil error; the error is reserved for
// failures of the solver itself.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *Problem, opts Options) (Solution, error)
}
