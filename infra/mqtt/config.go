package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Config holds the broker connection and the plan/ack topics of one unit.
type Config struct {
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	Topic      string          `json:"topic"`
	AckTopic   string          `json:"ack_topic"`
	AckTimeout time.Duration   `json:"ack_timeout"`
	Retain     bool            `json:"retain"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`
	TLSConfig  *tls.Config     `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// PlanTopic is the topic the plan of unit is published on.
func (c Config) PlanTopic(unit string) string {
	base := strings.TrimSuffix(c.Topic, "/")
	if base == "" {
		base = "bhkw"
	}
	return base + "/" + unit + "/schedule"
}

// qos returns the configured level for "schedule" or "ack", 1 otherwise.
func (c Config) qos(kind string) byte {
	if q, ok := c.QoS[kind]; ok {
		return q
	}
	return 1
}

// NewClientOptions maps c onto Paho client options. A missing client id gets
// a random suffix so two planners never kick each other off the broker.
func NewClientOptions(c Config) (*paho.ClientOptions, error) {
	id := c.ClientID
	if id == "" {
		id = "bhkw-" + uuid.NewString()[:8]
	}
	opts := paho.NewClientOptions().
		AddBroker(c.Broker).
		SetClientID(id).
		SetAutoReconnect(true).
		SetUsername(c.Username).
		SetPassword(c.Password)
	if c.UseTLS {
		tc, err := c.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tc)
	}
	if c.LWTTopic != "" {
		opts.SetWill(c.LWTTopic, c.LWTPayload, 1, true)
	}
	return opts, nil
}

// LoadTLSConfig returns TLSConfig when set, otherwise it builds a mutual TLS
// config from the PEM files named in c.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, errors.New("mqtt tls: client_cert, client_key and ca_bundle are required")
	}
	pair, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("mqtt tls: key pair: %w", err)
	}
	pem, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("mqtt tls: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("mqtt tls: %s holds no certificate", c.CABundle)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		RootCAs:      roots,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
