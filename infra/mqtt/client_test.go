package mqtt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremqtt "github.com/kilianp07/bhkw/core/mqtt"
)

// selfSigned writes a throwaway certificate that doubles as its own CA.
func selfSigned(t *testing.T) (cert, key, ca string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "bhkw-test"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	dir := t.TempDir()
	cert = filepath.Join(dir, "cert.pem")
	key = filepath.Join(dir, "key.pem")
	ca = filepath.Join(dir, "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(cert, certPEM, 0o600))
	require.NoError(t, os.WriteFile(ca, certPEM, 0o600))
	require.NoError(t, os.WriteFile(key, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return cert, key, ca
}

// stubBroker swaps the Paho constructor for fakeClient until the test ends.
func stubBroker(t *testing.T, fc *fakeClient) {
	t.Helper()
	orig := dial
	dial = func(o *paho.ClientOptions) pahoClient {
		fc.opts = o
		return fc
	}
	t.Cleanup(func() { dial = orig })
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := selfSigned(t)
	tc, err := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}.LoadTLSConfig()
	require.NoError(t, err)
	assert.Len(t, tc.Certificates, 1)
	assert.NotNil(t, tc.RootCAs)

	_, err = Config{UseTLS: true, ClientCert: cert}.LoadTLSConfig()
	assert.ErrorContains(t, err, "required")

	_, err = Config{ClientCert: cert, ClientKey: key, CABundle: key}.LoadTLSConfig()
	assert.ErrorContains(t, err, "no certificate")
}

func TestNewClientOptions(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.Regexp(t, `^bhkw-[0-9a-f]{8}$`, opts.ClientID)
	assert.True(t, opts.AutoReconnect)

	_, err = NewClientOptions(Config{Broker: "ssl://localhost:8883", UseTLS: true})
	assert.Error(t, err)
}

func TestPlanTopic(t *testing.T) {
	assert.Equal(t, "bhkw/chp-1/schedule", Config{}.PlanTopic("chp-1"))
	assert.Equal(t, "plant/u/schedule", Config{Topic: "plant/"}.PlanTopic("u"))
}

func TestPahoClient_PublishAndAck(t *testing.T) {
	fc := &fakeClient{}
	stubBroker(t, fc)
	cli, err := NewPahoClient(Config{
		Broker:   "tcp://localhost:1883",
		AckTopic: "bhkw/+/ack",
		Retain:   true,
		QoS:      map[string]byte{"schedule": 2, "ack": 0},
	})
	require.NoError(t, err)
	require.Equal(t, []subscription{{"bhkw/+/ack", 0}}, fc.subs)

	plan := coremqtt.Plan{RunID: "run-1", Unit: "chp-1", Status: "optimal", Steps: []coremqtt.PlanStep{{T: 1, Online: true, Power: 100}}}
	id, err := cli.PublishPlan(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	require.Len(t, fc.sent, 1)
	sent := fc.sent[0]
	assert.Equal(t, "bhkw/chp-1/schedule", sent.topic)
	assert.Equal(t, byte(2), sent.qos)
	assert.True(t, sent.retained)

	var got planMessage
	require.NoError(t, json.Unmarshal(sent.payload, &got))
	assert.Equal(t, "run-1", got.CommandID)
	assert.Equal(t, plan.Steps, got.Steps)

	// A stray ack for another run is ignored.
	cli.onAck(nil, ackPayload(`{"command_id":"other"}`))
	cli.onAck(nil, ackPayload(`not json`))
	cli.onAck(nil, ackPayload(`{"command_id":"run-1"}`))

	ok, err := cli.WaitForAck(id, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = cli.WaitForAck(id, time.Millisecond)
	assert.ErrorContains(t, err, "no pending plan")
}

func TestPahoClient_WillAndDisconnect(t *testing.T) {
	fc := &fakeClient{}
	stubBroker(t, fc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", LWTTopic: "bhkw/chp-1/status", LWTPayload: "offline"})
	require.NoError(t, err)

	assert.True(t, fc.opts.WillEnabled)
	assert.Equal(t, "bhkw/chp-1/status", fc.opts.WillTopic)
	assert.Equal(t, "offline", string(fc.opts.WillPayload))
	assert.Empty(t, fc.subs)

	cli.Disconnect()
	assert.True(t, fc.disconnected)
	assert.Empty(t, fc.sent)
}

func TestPahoClient_ConnectError(t *testing.T) {
	stubBroker(t, &fakeClient{connectErr: errors.New("refused")})
	_, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"})
	assert.ErrorContains(t, err, "refused")
}

func TestPahoClient_Retry(t *testing.T) {
	fail := errors.New("net fail")
	cases := []struct {
		name    string
		errs    []error
		wantErr error
		sent    int
	}{
		{"recovers", []error{fail, nil}, nil, 2},
		{"exhausted", []error{fail, fail}, fail, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeClient{publishErrs: tc.errs}
			stubBroker(t, fc)
			cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
			require.NoError(t, err)

			_, err = cli.PublishPlan(context.Background(), coremqtt.Plan{RunID: "r", Unit: "u"})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				_, err = cli.WaitForAck("r", time.Millisecond)
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, fc.sent, tc.sent)
		})
	}
}

func TestPahoClient_RetryCanceled(t *testing.T) {
	fc := &fakeClient{publishErrs: []error{errors.New("net fail")}}
	stubBroker(t, fc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", BackoffMS: 60_000})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cli.PublishPlan(ctx, coremqtt.Plan{RunID: "r", Unit: "u"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, fc.sent, 1)
}

func TestPahoClient_AckTimeout(t *testing.T) {
	stubBroker(t, &fakeClient{})
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)

	id, err := cli.PublishPlan(context.Background(), coremqtt.Plan{Unit: "u"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	ok, err := cli.WaitForAck(id, time.Millisecond)
	assert.False(t, ok)
	assert.ErrorIs(t, err, coremqtt.ErrAckTimeout)
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	id, err := m.PublishPlan(context.Background(), coremqtt.Plan{RunID: "r1"})
	require.NoError(t, err)
	ok, err := m.WaitForAck(id, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	m.NoAck = true
	id, err = m.PublishPlan(context.Background(), coremqtt.Plan{RunID: "r2"})
	require.NoError(t, err)
	_, err = m.WaitForAck(id, time.Second)
	assert.ErrorIs(t, err, coremqtt.ErrAckTimeout)
	assert.Len(t, m.Published(), 2)

	m.Fail = true
	_, err = m.PublishPlan(context.Background(), coremqtt.Plan{RunID: "r3"})
	assert.Error(t, err)
}

type subscription struct {
	topic string
	qos   byte
}

type sentMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records what the planner does with the broker connection.
type fakeClient struct {
	mu           sync.Mutex
	opts         *paho.ClientOptions
	connectErr   error
	publishErrs  []error
	subs         []subscription
	sent         []sentMessage
	disconnected bool
}

func (f *fakeClient) IsConnected() bool      { return true }
func (f *fakeClient) IsConnectionOpen() bool { return true }

func (f *fakeClient) Connect() paho.Token {
	if f.connectErr != nil {
		return token{err: f.connectErr}
	}
	if f.opts != nil && f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
	return token{}
}

func (f *fakeClient) Disconnect(uint) { f.disconnected = true }

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := payload.([]byte)
	f.sent = append(f.sent, sentMessage{topic, qos, retained, b})
	if len(f.publishErrs) == 0 {
		return token{}
	}
	err := f.publishErrs[0]
	f.publishErrs = f.publishErrs[1:]
	return token{err: err}
}

func (f *fakeClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	f.subs = append(f.subs, subscription{topic, qos})
	return token{}
}

func (f *fakeClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return token{}
}
func (f *fakeClient) Unsubscribe(...string) paho.Token        { return token{} }
func (f *fakeClient) AddRoute(string, paho.MessageHandler)    {}
func (f *fakeClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

type token struct{ err error }

func (token) Wait() bool                     { return true }
func (token) WaitTimeout(time.Duration) bool { return true }
func (token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t token) Error() error { return t.err }

// ackPayload is an inbound message on the ack topic.
type ackPayload string

func (ackPayload) Duplicate() bool   { return false }
func (ackPayload) Qos() byte         { return 1 }
func (ackPayload) Retained() bool    { return false }
func (ackPayload) Topic() string     { return "bhkw/chp-1/ack" }
func (ackPayload) MessageID() uint16 { return 0 }
func (a ackPayload) Payload() []byte { return []byte(a) }
func (ackPayload) Ack()              {}
