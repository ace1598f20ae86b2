// Package mqtt implements the core transport contract with the Eclipse Paho
// client. A mock connection for tests lives in mock.go.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremqtt "github.com/kurnia-dev/smartenergy/core/mqtt"
	"github.com/kurnia-dev/smartenergy/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	AuthMethod string `json:"auth_method"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
	QoS        byte   `json:"qos"`
	LWTTopic   string `json:"lwt_topic"`
	LWTPayload string `json:"lwt_payload"`
	LWTQoS     byte   `json:"lwt_qos"`
	LWTRetain  bool   `json:"lwt_retain"`

	TLSConfig *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://localhost:1883"
	}
	if c.ClientID == "" {
		c.ClientID = "smartenergy-" + uuid.NewString()[:8]
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	return nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// NewClientOptions builds Paho client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(5 * time.Second)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// pahoClient is the slice of paho.Client the wrapper relies on. Narrowing the
// interface keeps tests free of a live broker.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newPahoClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoConn implements coremqtt.Conn using Eclipse Paho.
type PahoConn struct {
	cli pahoClient
	qos byte
	log logger.Logger

	mu         sync.Mutex
	subscribed map[string]bool
}

var _ coremqtt.Conn = (*PahoConn)(nil)

// Connect establishes the broker connection. Subscriptions made through the
// wrapper are re-established automatically on reconnect.
func Connect(cfg Config) (*PahoConn, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt")
	opts.OnConnect = func(paho.Client) {
		log.Infof("connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) {
		log.Warnf("reconnecting to broker")
	}
	opts.SetResumeSubs(true)

	cli := newPahoClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, token.Error())
	}
	return &PahoConn{cli: cli, qos: cfg.QoS, log: log, subscribed: make(map[string]bool)}, nil
}

// Subscribe registers the handler for the topic. Re-subscribing to a topic
// already held by this connection is a no-op, which lets the subscription
// refresher run blindly over the full device list.
func (p *PahoConn) Subscribe(topic string, h coremqtt.HandlerFunc) error {
	p.mu.Lock()
	if p.subscribed[topic] {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	cb := func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	}
	if token := p.cli.Subscribe(topic, p.qos, cb); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}

	p.mu.Lock()
	p.subscribed[topic] = true
	p.mu.Unlock()
	p.log.Infof("subscribed to %s", topic)
	return nil
}

// Publish sends the payload to the topic.
func (p *PahoConn) Publish(topic string, payload []byte) error {
	if token := p.cli.Publish(topic, p.qos, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight work to drain.
func (p *PahoConn) Close() {
	if p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
