// Package mqtt publishes dispatch schedules to an MQTT broker with Eclipse Paho.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/gridflex/core/model"
	coremqtt "github.com/kilianp07/gridflex/core/mqtt"
	"github.com/kilianp07/gridflex/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string      `json:"broker" koanf:"broker"`
	ClientID    string      `json:"client_id" koanf:"client_id"`
	Username    string      `json:"username" koanf:"username"`
	Password    string      `json:"password" koanf:"password"`
	TopicPrefix string      `json:"topic_prefix" koanf:"topic_prefix"`
	QoS         byte        `json:"qos" koanf:"qos"`
	Retain      bool        `json:"retain" koanf:"retain"`
	UseTLS      bool        `json:"use_tls" koanf:"use_tls"`
	ClientCert  string      `json:"client_cert" koanf:"client_cert"`
	ClientKey   string      `json:"client_key" koanf:"client_key"`
	CABundle    string      `json:"ca_bundle" koanf:"ca_bundle"`
	LWTTopic    string      `json:"lwt_topic" koanf:"lwt_topic"`
	LWTPayload  string      `json:"lwt_payload" koanf:"lwt_payload"`
	MaxRetries  int         `json:"max_retries" koanf:"max_retries"`
	BackoffMS   int         `json:"backoff_ms" koanf:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-" koanf:"-"`
}

// DefaultTopicPrefix is used when Config.TopicPrefix is empty.
const DefaultTopicPrefix = "gridflex"

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Publisher implements coremqtt.Publisher on a Paho client.
type Publisher struct {
	cli        pahoClient
	prefix     string
	qos        byte
	retain     bool
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

var _ coremqtt.Publisher = (*Publisher)(nil)

// NewPublisher connects to the broker.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_publisher")
	p := &Publisher{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		log:        log,
	}
	if p.prefix == "" {
		p.prefix = DefaultTopicPrefix
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	if p.backoff <= 0 {
		p.backoff = 100 * time.Millisecond
	}
	opts.OnConnect = func(paho.Client) { log.Infof("MQTT connected") }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Errorf("connection lost: %v", err) }
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) { log.Warnf("reconnecting to MQTT broker") }

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos %d out of range", cfg.QoS)
	}
	id := cfg.ClientID
	if id == "" {
		id = "gridflex-" + uuid.NewString()[:8]
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(id)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.QoS, false)
	}
	return opts, nil
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
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("ca bundle %s holds no certificate", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Topic returns the topic of an asset's schedule.
func (p *Publisher) Topic(assetID string) string {
	return p.prefix + "/" + assetID + "/schedule"
}

// PublishSchedule publishes one message per asset and one for the site.
// Each message is retried with exponential backoff; ctx bounds the waits.
func (p *Publisher) PublishSchedule(ctx context.Context, s *model.DispatchSchedule) error {
	if p.cli == nil || !p.cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	for _, m := range coremqtt.Messages(s) {
		payload, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if err := p.publish(ctx, p.Topic(m.AssetID), payload); err != nil {
			return fmt.Errorf("publish %s: %w", m.AssetID, err)
		}
	}
	p.log.Infof("published schedule %s for %d assets", s.RequestID, len(s.Assets))
	return nil
}

func (p *Publisher) publish(ctx context.Context, topic string, payload []byte) error {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos, p.retain, payload)
		token.Wait()
		if err = token.Error(); err == nil {
			return nil
		}
		p.log.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, err)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return err
}

// Disconnect gracefully closes the MQTT connection.
func (p *Publisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
