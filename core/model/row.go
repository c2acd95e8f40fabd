package model

import "time"

// Row is one step of a solved schedule: the exogenous inputs followed by the
// value of every decision variable.
type Row struct {
	Step Step      `json:"step"`
	Time time.Time `json:"time,omitempty"`

	Online                      float64 `json:"online"`
	Gas                         float64 `json:"gas"`
	Power                       float64 `json:"power"`
	Heat                        float64 `json:"heat"`
	Helper                      float64 `json:"helper"`
	PayCapacityPrice            float64 `json:"pay_capacity_price"`
	AdditionalCapacityAllowance float64 `json:"additional_capacity_allowance"`
	CapacityAllowance           float64 `json:"capacity_allowance"`
}

// IsOnline reports whether the unit is committed in this step.
func (r Row) IsOnline() bool { return r.Online >= 0.5 }
