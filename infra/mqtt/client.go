package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremqtt "github.com/kilianp07/bhkw/core/mqtt"
	"github.com/kilianp07/bhkw/infra/logger"
)

const (
	defaultRetries = 3
	defaultBackoff = 100 * time.Millisecond
	quiesceMS      = 250
)

// pahoClient is the subset of paho.Client the planner relies on.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var dial = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }

// ackMessage is what the unit controller sends back once it took over a plan.
type ackMessage struct {
	CommandID string `json:"command_id"`
}

// planMessage wraps a plan with the command id the controller echoes.
type planMessage struct {
	CommandID string `json:"command_id"`
	coremqtt.Plan
}

// pendingAcks tracks plans waiting for their acknowledgment.
type pendingAcks struct {
	mu sync.Mutex
	m  map[string]chan struct{}
}

func (a *pendingAcks) add(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.m == nil {
		a.m = map[string]chan struct{}{}
	}
	a.m[id] = make(chan struct{}, 1)
}

func (a *pendingAcks) get(id string) chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.m[id]
}

// resolve signals the waiter of id and reports whether id was pending.
func (a *pendingAcks) resolve(id string) bool {
	ch := a.get(id)
	if ch == nil {
		return false
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	return true
}

func (a *pendingAcks) drop(id string) {
	a.mu.Lock()
	delete(a.m, id)
	a.mu.Unlock()
}

// PahoClient publishes schedules with Eclipse Paho and matches the acks the
// unit controller sends on AckTopic.
type PahoClient struct {
	cli     pahoClient
	cfg     Config
	log     logger.Logger
	pending pendingAcks
	retries int
	backoff time.Duration
}

// NewPahoClient connects to the broker. The ack subscription is renewed on
// every (re)connect.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	p := &PahoClient{
		cfg:     cfg,
		log:     logger.New("mqtt_client"),
		retries: cfg.MaxRetries,
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if p.retries <= 0 {
		p.retries = defaultRetries
	}
	if p.backoff <= 0 {
		p.backoff = defaultBackoff
	}
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.log.Errorf("broker connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		p.log.Warnf("reconnecting to %s", cfg.Broker)
	})

	cli := dial(opts)
	if tok := cli.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, tok.Error())
	}
	p.cli = cli
	return p, nil
}

func (p *PahoClient) onConnect(c paho.Client) {
	p.log.Infof("connected to %s", p.cfg.Broker)
	if p.cfg.AckTopic == "" {
		return
	}
	tok := c.Subscribe(p.cfg.AckTopic, p.cfg.qos("ack"), p.onAck)
	if tok.Wait() && tok.Error() != nil {
		p.log.Errorf("subscribe %s: %v", p.cfg.AckTopic, tok.Error())
	}
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var ack ackMessage
	if err := json.Unmarshal(msg.Payload(), &ack); err != nil {
		p.log.Warnf("ignoring malformed ack on %s: %v", msg.Topic(), err)
		return
	}
	if p.pending.resolve(ack.CommandID) {
		p.log.Infof("plan %s acknowledged", ack.CommandID)
	}
}

// PublishPlan sends plan to the unit's schedule topic. Failed publishes are
// retried with a doubling backoff. The returned command id is the run id when
// the plan carries one.
func (p *PahoClient) PublishPlan(ctx context.Context, plan coremqtt.Plan) (string, error) {
	id := plan.RunID
	if id == "" {
		id = uuid.NewString()
	}
	payload, err := json.Marshal(planMessage{CommandID: id, Plan: plan})
	if err != nil {
		return "", err
	}
	// Registered up front: the controller may ack before Publish returns.
	p.pending.add(id)

	topic := p.cfg.PlanTopic(plan.Unit)
	wait := p.backoff
	for attempt := 1; ; attempt++ {
		tok := p.cli.Publish(topic, p.cfg.qos("schedule"), p.cfg.Retain, payload)
		tok.Wait()
		err = tok.Error()
		if err == nil {
			p.log.Infow("plan published", map[string]any{"command_id": id, "topic": topic, "steps": len(plan.Steps), "attempt": attempt})
			return id, nil
		}
		p.log.Warnf("publish %s attempt %d: %v", topic, attempt, err)
		if attempt > p.retries {
			break
		}
		select {
		case <-ctx.Done():
			p.pending.drop(id)
			return "", ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	p.pending.drop(id)
	return "", err
}

// WaitForAck blocks until the controller acknowledges commandID or the timeout
// elapses. The command is forgotten either way.
func (p *PahoClient) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	ch := p.pending.get(commandID)
	if ch == nil {
		return false, fmt.Errorf("no pending plan %q", commandID)
	}
	defer p.pending.drop(commandID)

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true, nil
	case <-t.C:
		return false, coremqtt.ErrAckTimeout
	}
}

// Disconnect closes the broker connection if it is open.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(quiesceMS)
	}
}
