// Package mqtt defines the transport contract between the controller core and
// the messaging channel. The core only needs topic subscribe, topic publish
// and an inbound handler per subscription; delivery is at-least-once with no
// ordering guarantee. The Paho-backed implementation lives in infra/mqtt.
package mqtt

// HandlerFunc receives one inbound message. Implementations must absorb their
// own failures: a handler error must never take down the message stream.
type HandlerFunc func(topic string, payload []byte)

// Conn is the channel transport consumed by the core.
type Conn interface {
	// Subscribe registers the handler for the topic. Subscribing to an
	// already-subscribed topic is a no-op.
	Subscribe(topic string, h HandlerFunc) error
	Publish(topic string, payload []byte) error
	Close()
}
