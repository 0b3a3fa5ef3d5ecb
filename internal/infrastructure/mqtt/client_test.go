package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-dvb/internal/infrastructure/config"
)

var testTopics = Topics{Space: "example.org", Instance: "dvb"}

// testConfig returns a valid MQTT configuration for testing.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to a local broker at 127.0.0.1:1883, skipping the
// test when none is running.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Connect(ctx, testConfig(clientID), testTopics)
	if err != nil {
		t.Skipf("no MQTT broker available: %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

// =============================================================================
// Unit tests (no broker)
// =============================================================================

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Entry", testTopics.Entry("dvb", "dvbstreamer"), "ose/example.org/dvb/entry/dvbstreamer"},
		{"AllEntries", testTopics.AllEntries("dvb"), "ose/example.org/dvb/entry/+"},
		{"NodeStatus", testTopics.NodeStatus(), "ose/example.org/node/dvb/status"},
		{"ResolveRequest", testTopics.ResolveRequest(), "ose/example.org/node/dvb/resolve"},
		{"ResolveReply", testTopics.ResolveReply("req-1"), "ose/example.org/node/dvb/resolve/req-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestStatusPayload(t *testing.T) {
	var msg StatusMessage
	if err := json.Unmarshal(statusPayload(StatusOffline, "graceful_shutdown", testTopics, "dvbnode"), &msg); err != nil {
		t.Fatalf("statusPayload() is not JSON: %v", err)
	}
	if msg.Status != StatusOffline || msg.Instance != "dvb" || msg.Space != "example.org" ||
		msg.ClientID != "dvbnode" || msg.Reason != "graceful_shutdown" {
		t.Errorf("statusPayload() = %+v", msg)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("Timestamp %q: %v", msg.Timestamp, err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("dvbnode")
	cfg.Broker.TLS = true
	cfg.Auth = config.MQTTAuthConfig{Username: "node", Password: "secret"}

	opts := buildClientOptions(cfg)
	configureLWT(opts, testTopics, cfg.Broker.ClientID)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "dvbnode" || opts.Username != "node" {
		t.Errorf("ClientID = %q Username = %q", opts.ClientID, opts.Username)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS not configured")
	}
	if !opts.WillEnabled || opts.WillTopic != testTopics.NodeStatus() || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
}

func TestValidationWithoutConnection(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", client.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", client.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish oversized", client.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", client.Publish("t", nil, 1, false), ErrNotConnected},
		{"subscribe empty topic", client.Subscribe("", 1, func(string, []byte) error { return nil }), ErrInvalidTopic},
		{"subscribe bad qos", client.Subscribe("t", 3, func(string, []byte) error { return nil }), ErrInvalidQoS},
		{"subscribe nil handler", client.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", client.Subscribe("t", 1, func(string, []byte) error { return nil }), ErrNotConnected},
		{"health", client.HealthCheck(context.Background()), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}
}

func TestCloseNil(t *testing.T) {
	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

// fakeMessage satisfies pahomqtt.Message for handler tests.
type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestWrapHandler(t *testing.T) {
	logger := &recordingLogger{}
	client := &Client{}
	client.SetLogger(logger)

	msg := fakeMessage{topic: "ose/example.org/node/dvb/resolve", payload: []byte("{}")}

	var got string
	client.wrapHandler(func(topic string, payload []byte) error {
		got = topic + " " + string(payload)
		return nil
	})(nil, msg)
	if got != "ose/example.org/node/dvb/resolve {}" {
		t.Errorf("handler saw %q", got)
	}

	client.wrapHandler(func(string, []byte) error { return errors.New("bad request") })(nil, msg)
	client.wrapHandler(func(string, []byte) error { panic("boom") })(nil, msg)

	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns = %v errors = %v, want one of each", logger.warns, logger.errors)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig("dvbnode-refused")
	cfg.Broker.Port = 19998

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, cfg, testTopics)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// =============================================================================
// Broker tests (skipped without a local broker)
// =============================================================================

func TestConnectAndClose(t *testing.T) {
	client := connectOrSkip(t, "dvbnode-test-connect")

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() with cancelled context succeeded")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	client := connectOrSkip(t, "dvbnode-test-subs")
	handler := func(string, []byte) error { return nil }

	topics := []string{testTopics.AllEntries("dvb"), testTopics.ResolveRequest()}
	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
		if !client.subscribed(topic) {
			t.Errorf("%s not kept for reconnect", topic)
		}
	}

	client.forget(topics[0])
	if client.subscribed(topics[0]) || !client.subscribed(topics[1]) {
		t.Error("forget() dropped the wrong subscription")
	}
}

func TestSubscribe_RejectedNotKept(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if err := client.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if err := client.Subscribe("t", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if client.subscribed("t") {
		t.Error("failed subscription kept for reconnect")
	}
}

func TestRetainedEntryRoundtrip(t *testing.T) {
	client := connectOrSkip(t, "dvbnode-test-roundtrip")

	shard := fmt.Sprintf("test-%d", time.Now().UnixNano())
	topic := testTopics.Entry(shard, "dvbstreamer")
	payload := []byte(`{"alias":"dvbstreamer","name":"DVBlast"}`)

	if err := client.PublishRetained(topic, payload); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}
	t.Cleanup(func() { client.ClearRetained(topic) }) //nolint:errcheck // Test cleanup

	// A retained message reaches a subscriber that arrives later.
	received := make(chan string, 1)
	if err := client.Subscribe(testTopics.AllEntries(shard), 1, func(topic string, payload []byte) error {
		received <- topic + " " + string(payload)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case got := <-received:
		if want := topic + " " + string(payload); got != want {
			t.Errorf("received %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Error("retained entry not delivered")
	}
}

func TestOnConnectCallback(t *testing.T) {
	client := connectOrSkip(t, "dvbnode-test-callbacks")

	called := make(chan struct{}, 1)
	client.SetOnConnect(func() { called <- struct{}{} })
	client.SetOnDisconnect(func(error) {})

	client.handleConnect()
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Error("OnConnect callback not invoked")
	}
}
