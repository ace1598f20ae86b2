package mqtt

import (
	"fmt"
	"sync"

	coremqtt "github.com/kurnia-dev/smartenergy/core/mqtt"
)

// PublishedMessage is one recorded publish call.
type PublishedMessage struct {
	Topic   string
	Payload []byte
}

// MockConn is an in-memory transport used in tests. It records publishes,
// tracks subscriptions and can replay inbound messages to handlers.
type MockConn struct {
	mu        sync.Mutex
	published []PublishedMessage
	handlers  map[string]coremqtt.HandlerFunc
	// FailTopics makes Publish fail for the listed topics.
	FailTopics map[string]bool
	// SubscribeErr makes every Subscribe call fail.
	SubscribeErr error
	closed       bool
}

var _ coremqtt.Conn = (*MockConn)(nil)

// NewMockConn creates an empty MockConn.
func NewMockConn() *MockConn {
	return &MockConn{
		handlers:   make(map[string]coremqtt.HandlerFunc),
		FailTopics: make(map[string]bool),
	}
}

func (m *MockConn) Subscribe(topic string, h coremqtt.HandlerFunc) error {
	if m.SubscribeErr != nil {
		return m.SubscribeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[topic]; ok {
		return nil
	}
	m.handlers[topic] = h
	return nil
}

func (m *MockConn) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailTopics[topic] {
		return fmt.Errorf("publish to %s: broker unavailable", topic)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.published = append(m.published, PublishedMessage{Topic: topic, Payload: cp})
	return nil
}

func (m *MockConn) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Inject delivers an inbound message to the handler subscribed on topic.
// It reports whether a handler was registered.
func (m *MockConn) Inject(topic string, payload []byte) bool {
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		return false
	}
	h(topic, payload)
	return true
}

// Published returns a copy of all recorded publishes.
func (m *MockConn) Published() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedMessage, len(m.published))
	copy(out, m.published)
	return out
}

// Subscriptions returns the topics currently subscribed.
func (m *MockConn) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.handlers))
	for t := range m.handlers {
		out = append(out, t)
	}
	return out
}
