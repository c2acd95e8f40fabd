package mqtt

import (
	"context"
	"errors"
	"time"
)

// ErrAckTimeout is returned when the unit controller does not acknowledge a
// plan before the timeout.
var ErrAckTimeout = errors.New("timeout waiting for plan ack")

// PlanStep is the set-point of one schedule step sent to the unit controller.
type PlanStep struct {
	T      int       `json:"t"`
	Time   time.Time `json:"time,omitempty"`
	Online bool      `json:"online"`
	Power  float64   `json:"power"`
	Heat   float64   `json:"heat"`
	Gas    float64   `json:"gas"`
}

// Plan is the solved schedule of one unit as published on the bus.
type Plan struct {
	RunID     string     `json:"run_id"`
	Unit      string     `json:"unit"`
	Status    string     `json:"status"`
	Objective float64    `json:"objective"`
	CreatedAt time.Time  `json:"created_at"`
	Steps     []PlanStep `json:"steps"`
}

// Publisher sends schedules to the unit controller and waits for its
// acknowledgment.
type Publisher interface {
	// PublishPlan sends the plan and returns the command identifier used to
	// track the acknowledgment.
	PublishPlan(ctx context.Context, plan Plan) (commandID string, err error)

	// WaitForAck waits for an acknowledgment for the provided command
	// identifier or until the timeout expires.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)
}
