package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/gridflex/core/mqtt"
	"github.com/kilianp07/gridflex/core/model"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	for path, data := range map[string][]byte{certFile: certPEM, keyFile: keyPEM, caFile: certPEM} {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 || tlsCfg.RootCAs == nil {
		t.Fatalf("tls config incomplete")
	}
	if _, err := (Config{UseTLS: true}).LoadTLSConfig(); err == nil {
		t.Fatalf("expected error without files")
	}
}

func TestNewClientOptions(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", Username: "u", Password: "p", LWTTopic: "lwt", LWTPayload: "bye"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
	if opts.ClientID == "" {
		t.Fatalf("client id not generated")
	}
	if !opts.WillEnabled || opts.WillTopic != "lwt" || string(opts.WillPayload) != "bye" {
		t.Fatalf("will options incorrect")
	}
	if _, err := NewClientOptions(Config{}); err == nil {
		t.Fatalf("expected error without broker")
	}
	if _, err := NewClientOptions(Config{Broker: "tcp://x:1883", QoS: 3}); err == nil {
		t.Fatalf("expected error for qos 3")
	}
}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = orig })
}

func testSchedule() *model.DispatchSchedule {
	return &model.DispatchSchedule{
		RequestID: "r1",
		Start:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Step:      time.Hour,
		Periods:   1,
		ImportKW:  []float64{2},
		ExportKW:  []float64{0},
		Assets:    []model.AssetDispatch{{AssetID: "bat", Kind: model.AssetStorage, PowerKW: []float64{2}, SoCKWh: []float64{0, 1.8}}},
	}
}

func TestPublishSchedule(t *testing.T) {
	mc := &mockClient{connected: true}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", TopicPrefix: "site1/", QoS: 1, Retain: true})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if err := p.PublishSchedule(context.Background(), testSchedule()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected asset and site messages, got %d", len(mc.published))
	}
	first := mc.published[0]
	if first.topic != "site1/bat/schedule" || first.qos != 1 || !first.retained {
		t.Fatalf("unexpected publish %+v", first)
	}
	var msg coremqtt.AssetMessage
	if err := json.Unmarshal(first.payload, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.RequestID != "r1" || len(msg.Setpoints) != 1 || msg.Setpoints[0].PowerKW != 2 || *msg.Setpoints[0].SoCKWh != 1.8 {
		t.Fatalf("unexpected payload %+v", msg)
	}
	if mc.published[1].topic != "site1/site/schedule" {
		t.Fatalf("unexpected site topic %s", mc.published[1].topic)
	}
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{connected: true, publishErrs: []error{fmt.Errorf("net fail"), nil}}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if err := p.PublishSchedule(context.Background(), testSchedule()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(mc.published) != 3 {
		t.Fatalf("expected a retry, got %d publishes", len(mc.published))
	}
	if mc.published[0].topic != DefaultTopicPrefix+"/bat/schedule" {
		t.Fatalf("default prefix not applied: %s", mc.published[0].topic)
	}
}

func TestRetriesExhausted(t *testing.T) {
	fail := errors.New("net fail")
	mc := &mockClient{connected: true, publishErrs: []error{fail, fail}}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if err := p.PublishSchedule(context.Background(), testSchedule()); !errors.Is(err, fail) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestPublishNotConnected(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883"})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	if err := p.PublishSchedule(context.Background(), testSchedule()); !errors.Is(err, coremqtt.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	p.Disconnect()
}

func TestConnectError(t *testing.T) {
	mc := &mockClient{connectErr: errors.New("refused")}
	withMock(t, mc)
	if _, err := NewPublisher(Config{Broker: "tcp://localhost:1883"}); err == nil {
		t.Fatalf("expected connect error")
	}
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts        *paho.ClientOptions
	connected   bool
	connectErr  error
	published   []published
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return m.connected }
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) { m.connected = false }
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.published = append(m.published, published{topic: topic, qos: qos, retained: retained, payload: b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }
