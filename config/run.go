package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/bhkw/core/factory"
	"github.com/kilianp07/bhkw/core/milp"
	"github.com/kilianp07/bhkw/core/model"
	"github.com/kilianp07/bhkw/infra/solver"
)

// InputConfig locates the input files.
type InputConfig struct {
	// Dir holds Gas_Price.csv, Power_Price.csv, Capacity_Price.csv,
	// BHKWCapacityAllowance.csv and, by default, BHKW.csv.
	Dir string `json:"dir"`
	// EnvelopeFile overrides the unit envelope; .yaml files are accepted.
	EnvelopeFile string `json:"envelope_file"`
	// Start is the RFC3339 time of step 0. Rows carry no time when empty.
	Start       string `json:"start"`
	StepMinutes int    `json:"step_minutes"`
}

func (c *InputConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "01_Input"
	}
	if c.StepMinutes == 0 {
		c.StepMinutes = 60
	}
}

func (c InputConfig) Validate() error {
	if c.StepMinutes < 0 {
		return fmt.Errorf("step_minutes must not be negative")
	}
	if _, err := c.Clock(); err != nil {
		return err
	}
	return nil
}

// Clock maps step identifiers to wall-clock time.
func (c InputConfig) Clock() (model.Clock, error) {
	if c.Start == "" {
		return model.Clock{}, nil
	}
	start, err := time.Parse(time.RFC3339, c.Start)
	if err != nil {
		return model.Clock{}, fmt.Errorf("start: %w", err)
	}
	return model.Clock{Start: start, StepSize: time.Duration(c.StepMinutes) * time.Minute}, nil
}

// SolverConfig selects the MILP solver and bounds the solve.
type SolverConfig struct {
	Type             string         `json:"type"`
	TimeLimitSeconds int            `json:"time_limit_seconds"`
	MIPGap           float64        `json:"mip_gap"`
	Conf             map[string]any `json:"conf"`
}

func (c *SolverConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "branch_and_bound"
	}
}

func (c SolverConfig) Validate() error {
	known := false
	for _, n := range solver.Names() {
		if n == c.Type {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown type %q (available: %v)", c.Type, solver.Names())
	}
	if c.TimeLimitSeconds < 0 {
		return fmt.Errorf("time_limit_seconds must not be negative")
	}
	if c.MIPGap < 0 || c.MIPGap >= 1 {
		return fmt.Errorf("mip_gap must be within [0,1)")
	}
	return nil
}

// Module returns the factory configuration of the solver.
func (c SolverConfig) Module() factory.ModuleConfig {
	return factory.ModuleConfig{Type: c.Type, Conf: c.Conf}
}

// Options returns the solve options, logging to logPath.
func (c SolverConfig) Options(logPath string) milp.Options {
	return milp.Options{
		TimeLimit: time.Duration(c.TimeLimitSeconds) * time.Second,
		MIPGap:    c.MIPGap,
		LogPath:   logPath,
	}
}

// OutputConfig selects the files written after a successful solve.
type OutputConfig struct {
	Dir   string `json:"dir"`
	CSV   bool   `json:"csv"`
	JSON  bool   `json:"json"`
	Chart bool   `json:"chart"`
	// LPFile writes the instantiated model with symbolic labels.
	LPFile bool `json:"lp_file"`
}

// SetDefaults enables the CSV table and JSON summary when no format is
// selected.
func (c *OutputConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "02_Output"
	}
	if !c.CSV && !c.JSON && !c.Chart {
		c.CSV, c.JSON = true, true
	}
}

func (c OutputConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	return nil
}
