package solver

import (
	"fmt"

	"github.com/kilianp07/bhkw/core/factory"
	"github.com/kilianp07/bhkw/core/milp"
	"github.com/kilianp07/bhkw/infra/logger"
)

var registry = factory.NewRegistry[milp.Solver]()

// BranchAndBoundConfig configures the in-process solver.
type BranchAndBoundConfig struct {
	Tolerance    float64 `json:"tolerance"`
	IntTolerance float64 `json:"int_tolerance"`
	MaxNodes     int     `json:"max_nodes"`
}

// CBCConfig configures the external CBC solver.
type CBCConfig struct {
	Path      string `json:"path"`
	KeepFiles bool   `json:"keep_files"`
}

func init() {
	registry.MustRegister("branch_and_bound", func(conf map[string]any) (milp.Solver, error) {
		var c BranchAndBoundConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		s := NewBranchAndBound(logger.New("solver"))
		if c.Tolerance > 0 {
			s.Tolerance = c.Tolerance
		}
		if c.IntTolerance > 0 {
			s.IntTolerance = c.IntTolerance
		}
		s.MaxNodes = c.MaxNodes
		return s, nil
	})
	registry.MustRegister("cbc", func(conf map[string]any) (milp.Solver, error) {
		var c CBCConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		s := NewCBC(c.Path, logger.New("solver"))
		s.KeepFiles = c.KeepFiles
		return s, nil
	})
}

// New creates the solver named by cfg.Type. An empty type selects the
// in-process branch and bound.
func New(cfg factory.ModuleConfig) (milp.Solver, error) {
	if cfg.Type == "" {
		cfg.Type = "branch_and_bound"
	}
	s, err := registry.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}
	return s, nil
}

// Names lists the available solver types.
func Names() []string { return registry.Names() }
