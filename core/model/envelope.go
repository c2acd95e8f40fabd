package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidEnvelope is returned for an operating envelope that cannot be
// linearised, most notably when PowerMax does not exceed PowerMin.
var ErrInvalidEnvelope = errors.New("invalid unit envelope")

// Envelope describes the operating line of the CHP unit by its two operating
// points: minimum and maximum electrical load with the fuel consumption and
// heat output at each of them.
type Envelope struct {
	PowerMin float64 `json:"power_min" yaml:"power_min"`
	PowerMax float64 `json:"power_max" yaml:"power_max"`
	GasMin   float64 `json:"gas_min" yaml:"gas_min"`
	GasMax   float64 `json:"gas_max" yaml:"gas_max"`
	HeatMin  float64 `json:"heat_min" yaml:"heat_min"`
	HeatMax  float64 `json:"heat_max" yaml:"heat_max"`
}

// Validate rejects envelopes with non-finite or negative values and
// zero-width power ranges.
func (e Envelope) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"power_min", e.PowerMin},
		{"power_max", e.PowerMax},
		{"gas_min", e.GasMin},
		{"gas_max", e.GasMax},
		{"heat_min", e.HeatMin},
		{"heat_max", e.HeatMax},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidEnvelope, f.name)
		}
		if f.v < 0 {
			return fmt.Errorf("%w: %s is negative (%g)", ErrInvalidEnvelope, f.name, f.v)
		}
	}
	if e.PowerMax <= e.PowerMin {
		return fmt.Errorf("%w: power_max (%g) must exceed power_min (%g)", ErrInvalidEnvelope, e.PowerMax, e.PowerMin)
	}
	return nil
}
