package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
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
	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0o644); err != nil {
		t.Fatalf("write ca: %v", err)
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
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
}

func TestLoadTLSConfigMissingFiles(t *testing.T) {
	cfg := Config{UseTLS: true}
	if _, err := cfg.LoadTLSConfig(); err == nil {
		t.Fatal("expected error without cert paths")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
}

func TestSetDefaultsGeneratesClientID(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	if cfg.Broker != "tcp://localhost:1883" {
		t.Fatalf("broker default: %v", cfg.Broker)
	}
	if cfg.ClientID == "" {
		t.Fatal("client id not generated")
	}
	other := Config{}
	other.SetDefaults()
	if other.ClientID == cfg.ClientID {
		t.Fatal("client ids should differ")
	}
}

// fakeToken implements paho.Token and completes immediately.
type fakeToken struct{ err error }

func (f fakeToken) Wait() bool                     { return true }
func (f fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (f fakeToken) Error() error { return f.err }

type subscribeCall struct {
	topic string
	qos   byte
}

type fakeClient struct {
	connected  bool
	subscribed []subscribeCall
	published  []string
}

func (f *fakeClient) IsConnected() bool { return f.connected }
func (f *fakeClient) Connect() paho.Token {
	f.connected = true
	return fakeToken{}
}
func (f *fakeClient) Disconnect(uint) { f.connected = false }
func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.published = append(f.published, topic)
	return fakeToken{}
}
func (f *fakeClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	f.subscribed = append(f.subscribed, subscribeCall{topic: topic, qos: qos})
	return fakeToken{}
}

func withFakeClient(t *testing.T) *fakeClient {
	t.Helper()
	fc := &fakeClient{}
	orig := newPahoClient
	newPahoClient = func(*paho.ClientOptions) pahoClient { return fc }
	t.Cleanup(func() { newPahoClient = orig })
	return fc
}

func TestConnectAppliesQoS(t *testing.T) {
	fc := withFakeClient(t)
	conn, err := Connect(Config{Broker: "tcp://localhost:1883", ClientID: "id", QoS: 1})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := conn.Subscribe("tele/a", func(string, []byte) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(fc.subscribed) != 1 || fc.subscribed[0].qos != 1 {
		t.Fatalf("subscribe qos not applied: %+v", fc.subscribed)
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	fc := withFakeClient(t)
	conn, err := Connect(Config{Broker: "tcp://localhost:1883", ClientID: "id"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	for range 3 {
		if err := conn.Subscribe("tele/a", func(string, []byte) {}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	if len(fc.subscribed) != 1 {
		t.Fatalf("expected one broker subscribe, got %d", len(fc.subscribed))
	}
}

func TestCloseDisconnects(t *testing.T) {
	fc := withFakeClient(t)
	conn, err := Connect(Config{Broker: "tcp://localhost:1883", ClientID: "id"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn.Close()
	if fc.connected {
		t.Fatal("client still connected after close")
	}
}
