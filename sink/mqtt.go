package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	quiesceMillis  = 250
)

// MQTTConfig selects the broker and topic layout.
type MQTTConfig struct {
	Broker      string // host:port
	ClientID    string
	TopicPrefix string // Default "ergowatch"
	QoS         byte
}

// Publisher is the subset of mqtt.Client used for publishing.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// MQTT publishes each event as JSON to <prefix>/<event name>. Session state
// and reports are retained so late subscribers see the latest value.
type MQTT struct {
	client Publisher
	prefix string
	qos    byte
	close  func()

	mu        sync.Mutex
	published map[string]uint64
	errors    uint64
	inflight  sync.WaitGroup
}

// Stats are publish counters per topic.
type Stats struct {
	Published map[string]uint64
	Errors    uint64
}

// DialMQTT connects to the broker with auto-reconnect enabled.
func DialMQTT(ctx context.Context, cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		slog.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return nil, fmt.Errorf("mqtt connect: timeout after %s", connectTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	m := NewMQTT(client, cfg)
	m.close = func() { client.Disconnect(quiesceMillis) }
	return m, nil
}

// NewMQTT wraps an existing publisher.
func NewMQTT(p Publisher, cfg MQTTConfig) *MQTT {
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "ergowatch"
	}
	return &MQTT{
		client:    p,
		prefix:    prefix,
		qos:       cfg.QoS,
		published: make(map[string]uint64),
	}
}

// Emit publishes without waiting for the broker acknowledgement.
func (m *MQTT) Emit(name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		m.fail()
		slog.Warn("marshal projection event", "event", name, "error", err)
		return
	}

	topic := m.prefix + "/" + name
	retained := name == "session-state" || name == "session-report"
	token := m.client.Publish(topic, m.qos, retained, payload)

	m.inflight.Add(1)
	go m.await(topic, token)
}

func (m *MQTT) await(topic string, token mqtt.Token) {
	defer m.inflight.Done()
	if !token.WaitTimeout(publishTimeout) {
		m.fail()
		slog.Debug("mqtt publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		m.fail()
		slog.Debug("mqtt publish failed", "topic", topic, "error", err)
		return
	}
	m.mu.Lock()
	m.published[topic]++
	m.mu.Unlock()
}

func (m *MQTT) fail() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

// Stats returns a snapshot of the publish counters.
func (m *MQTT) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	published := make(map[string]uint64, len(m.published))
	for k, v := range m.published {
		published[k] = v
	}
	return Stats{Published: published, Errors: m.errors}
}

// Close waits for pending publishes and disconnects.
func (m *MQTT) Close() {
	m.inflight.Wait()
	if m.close != nil {
		m.close()
		slog.Info("mqtt disconnected")
	}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
