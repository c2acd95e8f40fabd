package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidSeries is returned when the input time series cannot be used to
// build a dispatch model.
var ErrInvalidSeries = errors.New("invalid time series")

// Step carries the exogenous parameters of one time step of the horizon.
type Step struct {
	ID                int     `json:"t" yaml:"t"`
	GasPrice          float64 `json:"gas_price" yaml:"gas_price"`                   // fuel price per unit of gas
	PowerPrice        float64 `json:"power_price" yaml:"power_price"`               // electricity price per unit of power
	CapacityPrice     float64 `json:"capacity_price" yaml:"capacity_price"`         // charge per unit of gas not covered by allowance
	CapacityAllowance float64 `json:"capacity_allowance" yaml:"capacity_allowance"` // contractual allowance offered this step
}

var seriesNames = [...]string{"gas_price", "power_price", "capacity_price", "capacity_allowance"}

// Series is the ordered time horizon together with its per-step parameters.
// Slice order defines "first", "last" and "previous step".
type Series []Step

// Len returns the number of steps in the horizon.
func (s Series) Len() int { return len(s) }

// First returns the first step of the horizon.
func (s Series) First() Step { return s[0] }

// Last returns the last step of the horizon.
func (s Series) Last() Step { return s[len(s)-1] }

// IsFirst reports whether i is the index of the first step.
func (s Series) IsFirst(i int) bool { return i == 0 }

// IsLast reports whether i is the index of the last step.
func (s Series) IsLast(i int) bool { return i == len(s)-1 }

// Prev returns the index of the step preceding i. It panics for the first step.
func (s Series) Prev(i int) int {
	if i <= 0 || i >= len(s) {
		panic(fmt.Sprintf("model: no previous step for index %d", i))
	}
	return i - 1
}

// IDs returns the step identifiers in horizon order.
func (s Series) IDs() []int {
	ids := make([]int, len(s))
	for i, st := range s {
		ids[i] = st.ID
	}
	return ids
}

// Validate checks the horizon is non-empty, strictly ordered and carries
// finite values only. Gaps between identifiers are allowed.
func (s Series) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty horizon", ErrInvalidSeries)
	}
	for i, st := range s {
		if i > 0 && st.ID <= s[i-1].ID {
			return fmt.Errorf("%w: step %d not after step %d", ErrInvalidSeries, st.ID, s[i-1].ID)
		}
		vals := [...]float64{st.GasPrice, st.PowerPrice, st.CapacityPrice, st.CapacityAllowance}
		for j, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s at step %d is not finite", ErrInvalidSeries, seriesNames[j], st.ID)
			}
		}
	}
	return nil
}

// Clock maps step identifiers to wall-clock time. The zero Clock yields zero
// times so rows stay indexed by step only.
type Clock struct {
	Start    time.Time
	StepSize time.Duration
}

// At returns the start time of the step with the given identifier.
func (c Clock) At(id int) time.Time {
	if c.Start.IsZero() {
		return time.Time{}
	}
	return c.Start.Add(time.Duration(id) * c.StepSize)
}
