package solver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/bhkw/core/milp"
	"github.com/kilianp07/bhkw/infra/logger"
)

// ErrSolverOutput is returned when the CBC solution file cannot be read.
var ErrSolverOutput = errors.New("unreadable solver output")

// runFunc executes the solver binary and returns its combined output.
type runFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

func execRun(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, bin, args...).CombinedOutput()
}

// CBC hands the model to the COIN-OR CBC executable through an LP file and
// reads back its solution file.
type CBC struct {
	// Path is the cbc executable, looked up on PATH when relative.
	Path string
	// KeepFiles leaves the LP and solution files in place for inspection.
	KeepFiles bool

	log logger.Logger
	run runFunc
}

// NewCBC returns a CBC adapter for the given executable.
func NewCBC(path string, log logger.Logger) *CBC {
	if path == "" {
		path = "cbc"
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &CBC{Path: path, log: log, run: execRun}
}

// Name implements milp.Solver.
func (c *CBC) Name() string { return "cbc" }

// Solve implements milp.Solver.
func (c *CBC) Solve(ctx context.Context, p *milp.Problem, opts milp.Options) (milp.Solution, error) {
	start := time.Now()
	sol := milp.Solution{Solver: c.Name()}

	dir, err := os.MkdirTemp("", "bhkw-cbc")
	if err != nil {
		return sol, err
	}
	if c.KeepFiles {
		c.log.Infof("cbc files kept in %s", dir)
	} else {
		defer func() { _ = os.RemoveAll(dir) }()
	}
	lpPath := filepath.Join(dir, "model.lp")
	solPath := filepath.Join(dir, "model.sol")
	if err := writeLPFile(lpPath, p); err != nil {
		return sol, err
	}

	args := []string{lpPath}
	if opts.TimeLimit > 0 {
		args = append(args, "sec", strconv.FormatFloat(opts.TimeLimit.Seconds(), 'f', 0, 64))
		// Leave room for cbc to write its incumbent before the process is killed.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TimeLimit+30*time.Second)
		defer cancel()
	}
	if opts.MIPGap > 0 {
		args = append(args, "ratio", strconv.FormatFloat(opts.MIPGap, 'g', -1, 64))
	}
	args = append(args, "solve", "printingOptions", "all", "solu", solPath)

	c.log.Debugw("running cbc", map[string]any{"bin": c.Path, "args": strings.Join(args, " ")})
	out, runErr := c.run(ctx, c.Path, args...)
	if opts.LogPath != "" {
		if werr := os.WriteFile(opts.LogPath, out, 0o644); werr != nil {
			c.log.Warnf("write solver log: %v", werr)
		}
	}
	sol.Runtime = time.Since(start)
	if runErr != nil {
		return sol, fmt.Errorf("cbc: %w", runErr)
	}

	f, err := os.Open(solPath)
	if err != nil {
		return sol, fmt.Errorf("%w: %v", ErrSolverOutput, err)
	}
	defer func() { _ = f.Close() }()
	status, values, err := parseCBCSolution(f, p)
	if err != nil {
		return sol, err
	}
	sol.Status = status
	if status.HasSolution() {
		if v := p.Violations(values, 1e-6); len(v) > 0 {
			if status == milp.StatusFeasible {
				sol.Status = milp.StatusError
				return sol, fmt.Errorf("%w: cbc stopped without a feasible incumbent", milp.ErrTimeLimit)
			}
			c.log.Warnf("cbc solution violates %d rows, first %s", len(v), v[0])
		}
		sol.Values = values
		sol.Objective = p.Objective.Eval(values)
		sol.Bound = math.NaN()
		if status == milp.StatusOptimal {
			sol.Bound = sol.Objective
		}
	}
	return sol, nil
}

func writeLPFile(path string, p *milp.Problem) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := milp.WriteLP(f, p); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// parseCBCSolution reads a CBC `solu` file. The first line carries the status,
// every following line `index name value reduced-cost`, optionally prefixed by
// `**` when the value violates a bound.
func parseCBCSolution(r io.Reader, p *milp.Problem) (milp.Status, []float64, error) {
	index := make(map[string]int, len(p.Vars))
	for i, v := range p.Vars {
		index[v.Name] = i
	}
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return milp.StatusError, nil, fmt.Errorf("%w: empty solution file", ErrSolverOutput)
	}
	status := cbcStatus(sc.Text())
	values := make([]float64, len(p.Vars))
	for sc.Scan() {
		fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(sc.Text()), "**"))
		if len(fields) < 3 {
			continue
		}
		i, ok := index[fields[1]]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return milp.StatusError, nil, fmt.Errorf("%w: value of %s: %v", ErrSolverOutput, fields[1], err)
		}
		values[i] = v
	}
	if err := sc.Err(); err != nil {
		return milp.StatusError, nil, err
	}
	return status, values, nil
}

func cbcStatus(line string) milp.Status {
	l := strings.ToLower(strings.TrimSpace(line))
	switch {
	case strings.HasPrefix(l, "optimal"):
		return milp.StatusOptimal
	case strings.Contains(l, "infeasible"):
		return milp.StatusInfeasible
	case strings.Contains(l, "unbounded"):
		return milp.StatusUnbounded
	case strings.HasPrefix(l, "stopped"):
		return milp.StatusFeasible
	default:
		return milp.StatusError
	}
}
