package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/kilianp07/bhkw/core/milp"
	"github.com/kilianp07/bhkw/infra/logger"
)

const (
	defaultTolerance    = 1e-9
	defaultIntTolerance = 1e-6
)

// BranchAndBound solves MILPs by depth-first branch and bound over the
// integer variables. Every relaxation is presolved and solved with a dense
// bounded-variable simplex. It is suited to day-ahead horizons.
type BranchAndBound struct {
	// Tolerance is passed to the simplex as the zero threshold.
	Tolerance float64
	// IntTolerance is the distance from an integer below which a value is
	// considered integral.
	IntTolerance float64
	// MaxNodes stops the search after this many relaxations. Zero means no
	// limit.
	MaxNodes int

	log logger.Logger
}

// NewBranchAndBound returns a solver with default tolerances.
func NewBranchAndBound(log logger.Logger) *BranchAndBound {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &BranchAndBound{Tolerance: defaultTolerance, IntTolerance: defaultIntTolerance, log: log}
}

// Name implements milp.Solver.
func (s *BranchAndBound) Name() string { return "branch_and_bound" }

type node struct {
	lo, hi []float64
	bound  float64
	depth  int
}

type search struct {
	p       *milp.Problem
	sign    float64
	ints    []milp.VarID
	best    []float64
	bestVal float64
	nodes   int
	stack   []node
	log     logger.Logger
	solver  *BranchAndBound
}

// Solve implements milp.Solver. The search stops when the tree is exhausted,
// when the relative gap between incumbent and bound drops to opts.MIPGap, or
// when the time limit expires.
func (s *BranchAndBound) Solve(ctx context.Context, p *milp.Problem, opts milp.Options) (milp.Solution, error) {
	start := time.Now()
	sol := milp.Solution{Solver: s.Name()}
	if err := p.Validate(); err != nil {
		return sol, fmt.Errorf("invalid problem: %w", err)
	}
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TimeLimit)
		defer cancel()
	}
	log := s.log
	if opts.LogPath != "" {
		f, err := os.Create(opts.LogPath)
		if err != nil {
			return sol, fmt.Errorf("solver log: %w", err)
		}
		defer func() { _ = f.Close() }()
		log = logger.NewWriterLogger("branch_and_bound", f)
	}

	sr := &search{
		p:       p,
		sign:    1,
		ints:    p.IntegerVars(),
		bestVal: math.Inf(1),
		log:     log,
		solver:  s,
	}
	if p.Sense == milp.Maximize {
		sr.sign = -1
	}
	root := node{lo: make([]float64, len(p.Vars)), hi: make([]float64, len(p.Vars)), bound: math.Inf(-1)}
	for i, v := range p.Vars {
		root.lo[i], root.hi[i] = v.Lower, v.Upper
		if v.Integer {
			root.lo[i] = math.Ceil(v.Lower - s.IntTolerance)
			root.hi[i] = math.Floor(v.Upper + s.IntTolerance)
		}
	}
	sr.stack = append(sr.stack, root)
	log.Infow("branch and bound started", map[string]any{
		"variables":   len(p.Vars),
		"integers":    len(sr.ints),
		"constraints": len(p.Constraints),
		"time_limit":  opts.TimeLimit.String(),
		"mip_gap":     opts.MIPGap,
	})

	status, err := sr.run(ctx, opts.MIPGap)
	sol.Runtime = time.Since(start)
	sol.Nodes = sr.nodes
	solveNodes.Add(float64(sr.nodes))
	if err != nil {
		sol.Status = milp.StatusError
		return sol, err
	}
	sol.Status = status
	if status.HasSolution() {
		sol.Values = sr.best
		sol.Objective = p.Objective.Eval(sr.best)
		bound := sr.bound()
		sol.Bound = sr.sign * bound
		sol.Gap = relGap(sr.bestVal, bound)
	}
	log.Infow("branch and bound finished", map[string]any{
		"status":    status.String(),
		"nodes":     sr.nodes,
		"objective": sol.Objective,
		"gap":       sol.Gap,
		"runtime":   sol.Runtime.String(),
	})
	return sol, nil
}

// run drives the search and returns the terminal status.
func (sr *search) run(ctx context.Context, gap float64) (milp.Status, error) {
	s := sr.solver
	for len(sr.stack) > 0 {
		if err := ctx.Err(); err != nil {
			reason := "cancelled"
			if errors.Is(err, context.DeadlineExceeded) {
				reason = "time limit"
			}
			return sr.stopped(reason)
		}
		if s.MaxNodes > 0 && sr.nodes >= s.MaxNodes {
			return sr.stopped("node limit")
		}
		if sr.best != nil && relGap(sr.bestVal, sr.bound()) <= gap {
			if len(sr.stack) > 0 && gap > 0 {
				sr.log.Debugf("gap %g reached with %d open nodes", gap, len(sr.stack))
			}
			return milp.StatusOptimal, nil
		}

		nd := sr.stack[len(sr.stack)-1]
		sr.stack = sr.stack[:len(sr.stack)-1]
		if nd.bound >= sr.bestVal-s.pruneTol(sr.bestVal) {
			continue
		}

		sr.nodes++
		began := time.Now()
		x, err := relax(sr.p, nd.lo, nd.hi, sr.sign, s.Tolerance)
		relaxationLatency.Observe(time.Since(began).Seconds())
		switch {
		case errors.Is(err, errInfeasible):
			continue
		case errors.Is(err, errUnbounded):
			// Integer restrictions cannot bound an unbounded relaxation of
			// a problem with bounded integer variables.
			return milp.StatusUnbounded, nil
		case err != nil:
			return milp.StatusError, fmt.Errorf("node %d: %w", sr.nodes, err)
		}
		val := sr.sign * sr.p.Objective.Eval(x)
		if val >= sr.bestVal-s.pruneTol(sr.bestVal) {
			continue
		}

		branch, frac := sr.mostFractional(x)
		if branch < 0 {
			sr.accept(x, val)
			continue
		}
		xi := x[branch]
		down := node{lo: nd.lo, hi: clone(nd.hi), bound: val, depth: nd.depth + 1}
		down.hi[branch] = math.Floor(xi)
		up := node{lo: clone(nd.lo), hi: nd.hi, bound: val, depth: nd.depth + 1}
		up.lo[branch] = math.Ceil(xi)
		// The child nearest to the relaxed value is explored first.
		if frac >= 0.5 {
			sr.stack = append(sr.stack, down, up)
		} else {
			sr.stack = append(sr.stack, up, down)
		}
	}
	if sr.best == nil {
		return milp.StatusInfeasible, nil
	}
	return milp.StatusOptimal, nil
}

func (sr *search) stopped(reason string) (milp.Status, error) {
	if sr.best == nil {
		return milp.StatusError, fmt.Errorf("%w (%s after %d nodes)", milp.ErrTimeLimit, reason, sr.nodes)
	}
	sr.log.Warnf("%s reached after %d nodes, returning incumbent", reason, sr.nodes)
	return milp.StatusFeasible, nil
}

// mostFractional returns the integer variable farthest from integrality and
// its fractional part, or -1 when x is integral.
func (sr *search) mostFractional(x []float64) (int, float64) {
	best, bestDist, bestFrac := -1, sr.solver.IntTolerance, 0.0
	for _, id := range sr.ints {
		v := x[id]
		frac := v - math.Floor(v)
		dist := math.Min(frac, 1-frac)
		if dist > bestDist {
			best, bestDist, bestFrac = int(id), dist, frac
		}
	}
	return best, bestFrac
}

func (sr *search) accept(x []float64, val float64) {
	for j, v := range sr.p.Vars {
		x[j] = math.Min(math.Max(x[j], v.Lower), v.Upper)
		if v.Integer {
			x[j] = math.Round(x[j])
		}
	}
	sr.best = x
	sr.bestVal = val
	incumbentUpdates.Inc()
	sr.log.Debugw("new incumbent", map[string]any{"objective": sr.sign * val, "nodes": sr.nodes})
}

// bound returns the best proven bound in the minimisation sense.
func (sr *search) bound() float64 {
	b := sr.bestVal
	for _, nd := range sr.stack {
		if nd.bound < b {
			b = nd.bound
		}
	}
	return b
}

func (s *BranchAndBound) pruneTol(incumbent float64) float64 {
	if math.IsInf(incumbent, 0) {
		return 0
	}
	return 1e-9 * math.Max(1, math.Abs(incumbent))
}

func relGap(incumbent, bound float64) float64 {
	if math.IsInf(incumbent, 0) {
		return math.Inf(1)
	}
	if math.IsInf(bound, -1) {
		return math.Inf(1)
	}
	return math.Max(0, incumbent-bound) / math.Max(1e-10, math.Abs(incumbent))
}

func clone(v []float64) []float64 { return append([]float64(nil), v...) }
