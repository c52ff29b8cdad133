package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Broker-backed tests expect Mosquitto at 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "dlmsparser-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// skipIfNoBroker skips the test when nothing listens on the broker port.
func skipIfNoBroker(t *testing.T) {
	t.Helper()
	cfg := testConfig()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port), 500*time.Millisecond)
	if err != nil {
		t.Skip("MQTT broker not available, skipping integration test")
	}
	conn.Close()
}

func connectTest(t *testing.T, clientID string) *Client {
	t.Helper()
	skipIfNoBroker(t)

	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Raw", topics.Raw("meter-17"), "dlms/raw/meter-17"},
		{"Decoded", topics.Decoded("meter-17"), "dlms/decoded/meter-17"},
		{"Errors", topics.Errors("meter-17"), "dlms/errors/meter-17"},
		{"SystemStatus", topics.SystemStatus(), "dlms/system/status"},
		{"AllRaw", topics.AllRaw(), "dlms/raw/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestMeterFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"dlms/raw/meter-17", "meter-17"},
		{"site/a/raw/meter-3", "meter-3"},
		{"dlms/raw/", ""},
		{"dlms/raw/+", ""},
		{"meter", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if got := MeterFromTopic(tt.topic); got != tt.want {
				t.Errorf("MeterFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestNewClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "meter-gw"
	cfg.Auth.Password = "secret"

	opts := newClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [ssl://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "dlmsparser-test" || opts.Username != "meter-gw" {
		t.Errorf("ClientID, Username = %q, %q", opts.ClientID, opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil, want non-nil when TLS enabled")
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("want clean session with auto-reconnect")
	}

	if !opts.WillEnabled || !opts.WillRetained || opts.WillTopic != "dlms/system/status" {
		t.Fatalf("will = enabled %v retained %v topic %q", opts.WillEnabled, opts.WillRetained, opts.WillTopic)
	}
	var will statusPayload
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload not JSON: %v", err)
	}
	if will.Status != statusOffline || will.Reason != reasonConnLost {
		t.Errorf("will payload = %+v", will)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		broker config.MQTTBrokerConfig
		want   string
	}{
		{config.MQTTBrokerConfig{Host: "localhost", Port: 1883}, "tcp://localhost:1883"},
		{config.MQTTBrokerConfig{Host: "broker.local", Port: 8883, TLS: true}, "ssl://broker.local:8883"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := brokerURL(tt.broker); got != tt.want {
				t.Errorf("brokerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeStatus(t *testing.T) {
	tests := []struct {
		status string
		reason string
	}{
		{statusOnline, ""},
		{statusOffline, reasonShutdown},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			var p statusPayload
			raw := encodeStatus(tt.status, `id"quoted`, tt.reason)
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				t.Fatalf("payload %q not JSON: %v", raw, err)
			}
			if p.Status != tt.status || p.Reason != tt.reason || p.ClientID != `id"quoted` {
				t.Errorf("payload = %+v", p)
			}
			if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
				t.Errorf("timestamp %q: %v", p.Timestamp, err)
			}
		})
	}
}

// =============================================================================
// Validation Tests (no broker)
// =============================================================================

func TestPublishValidation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"invalid qos", "dlms/decoded/m", 3, nil, ErrInvalidQoS},
		{"oversized payload", "dlms/decoded/m", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"not connected", "dlms/decoded/m", 1, []byte("{}"), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, handler, ErrInvalidTopic},
		{"invalid qos", "dlms/raw/+", 3, handler, ErrInvalidQoS},
		{"nil handler", "dlms/raw/+", 1, nil, ErrSubscribeFailed},
		{"not connected", "dlms/raw/+", 1, handler, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0 after failed subscribes", client.SubscriptionCount())
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	client := &Client{}

	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Unsubscribe("dlms/raw/+"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
	if client.Reconnects() != 0 {
		t.Errorf("Reconnects() = %d, want 0", client.Reconnects())
	}

	var nilClient *Client
	if nilClient.IsConnected() {
		t.Error("IsConnected() should be false for nil client")
	}
}

func TestCloseNil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on empty client error = %v, want nil", err)
	}
	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	client := &Client{}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestSetLogger(t *testing.T) {
	client := &Client{}
	if _, ok := client.log().(noopLogger); !ok {
		t.Errorf("log() = %T, want noopLogger before SetLogger()", client.log())
	}

	logger := &mockLogger{}
	client.SetLogger(logger)
	if client.log() != logger {
		t.Error("log() did not return the logger passed to SetLogger()")
	}

	client.SetLogger(nil)
	if _, ok := client.log().(noopLogger); !ok {
		t.Errorf("log() = %T, want noopLogger after SetLogger(nil)", client.log())
	}
}

func TestSubscriptionSet(t *testing.T) {
	var set subscriptionSet
	if set.count() != 0 || set.has("dlms/raw/+") {
		t.Fatal("zero subscriptionSet should be empty")
	}

	handler := func(string, []byte) error { return nil }
	set.put(subscription{topic: "dlms/raw/+", qos: 1, handler: handler})
	set.put(subscription{topic: "dlms/raw/+", qos: 0, handler: handler})
	set.put(subscription{topic: "dlms/test/#", qos: 2, handler: handler})

	if set.count() != 2 {
		t.Errorf("count() = %d, want 2 (same topic replaces)", set.count())
	}
	for _, sub := range set.snapshot() {
		if sub.topic == "dlms/raw/+" && sub.qos != 0 {
			t.Errorf("dlms/raw/+ qos = %d, want latest value 0", sub.qos)
		}
	}

	set.remove("dlms/raw/+")
	if set.has("dlms/raw/+") || !set.has("dlms/test/#") {
		t.Error("remove() dropped the wrong subscription")
	}
}

func TestAwait(t *testing.T) {
	sentinel := errors.New("sentinel")

	done := &pahomqtt.DummyToken{}
	if err := await(done, time.Second, sentinel); err != nil {
		t.Errorf("await(completed) error = %v, want nil", err)
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestWrapHandler(t *testing.T) {
	client := &Client{}
	logger := &mockLogger{}
	client.SetLogger(logger)

	msg := fakeMessage{topic: "dlms/raw/m1", payload: []byte("6001")}

	var gotTopic string
	client.wrapHandler(func(topic string, _ []byte) error {
		gotTopic = topic
		return errors.New("decode failed")
	})(nil, msg)

	if gotTopic != "dlms/raw/m1" {
		t.Errorf("handler topic = %q, want %q", gotTopic, "dlms/raw/m1")
	}
	if len(logger.warns) != 1 {
		t.Errorf("warns = %d, want 1", len(logger.warns))
	}

	client.wrapHandler(func(string, []byte) error {
		panic("boom")
	})(nil, msg)

	if len(logger.errors) != 1 {
		t.Errorf("errors = %d, want 1 after recovered panic", len(logger.errors))
	}
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connectTest(t, "dlmsparser-test-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}
}

func TestClose(t *testing.T) {
	client := connectTest(t, "dlmsparser-test-close")

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	client := connectTest(t, "dlmsparser-test-subs")

	topics := []string{"dlms/test/raw/a", "dlms/test/raw/b", "dlms/test/raw/c"}
	handler := func(string, []byte) error { return nil }

	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != len(topics)-1 {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics)-1)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	pub := connectTest(t, "dlmsparser-test-pub")
	sub := connectTest(t, "dlmsparser-test-sub")

	pattern := "dlms/test/raw/+"
	received := make(chan string, 1)
	var once sync.Once

	err := sub.Subscribe(pattern, 1, func(topic string, payload []byte) error {
		once.Do(func() {
			received <- MeterFromTopic(topic) + "=" + string(payload)
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish("dlms/test/raw/meter-17", []byte("C001C1000301"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "meter-17=C001C1000301" {
			t.Errorf("received = %q, want %q", got, "meter-17=C001C1000301")
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
