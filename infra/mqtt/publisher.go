package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	coremqtt "github.com/kilianp07/bhkw/core/mqtt"
)

// Publisher is the contract PahoClient and MockPublisher satisfy.
type Publisher = coremqtt.Publisher

var (
	_ Publisher = (*PahoClient)(nil)
	_ Publisher = (*MockPublisher)(nil)
)

// errMockPublish is returned by a MockPublisher with Fail set.
var errMockPublish = errors.New("mock publish failed")

// MockPublisher keeps plans in memory and acknowledges them at once unless
// NoAck is set. Fail makes every publish fail.
type MockPublisher struct {
	Fail  bool
	NoAck bool

	mu    sync.Mutex
	plans []coremqtt.Plan
	acked map[string]bool
}

// NewMockPublisher returns an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{acked: map[string]bool{}}
}

// PublishPlan records plan under the command id "cmd-<run id>".
func (m *MockPublisher) PublishPlan(_ context.Context, plan coremqtt.Plan) (string, error) {
	if m.Fail {
		return "", errMockPublish
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans = append(m.plans, plan)
	id := "cmd-" + plan.RunID
	m.acked[id] = !m.NoAck
	return id, nil
}

// WaitForAck answers immediately.
func (m *MockPublisher) WaitForAck(commandID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	acked, known := m.acked[commandID]
	m.mu.Unlock()
	switch {
	case !known:
		return false, fmt.Errorf("no pending plan %q", commandID)
	case !acked:
		return false, coremqtt.ErrAckTimeout
	}
	return true, nil
}

// Published returns the plans recorded so far.
func (m *MockPublisher) Published() []coremqtt.Plan {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]coremqtt.Plan, len(m.plans))
	copy(out, m.plans)
	return out
}
