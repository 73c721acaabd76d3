package pubsub

import (
	"context"
)

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies the channel the message belongs to (e.g., "chat.message.created").
	Topic string
	// UserID identifies the account that caused the message.
	UserID string
	// Payload contains the encoded event.
	Payload []byte
	// Metadata can contain arbitrary key-value pairs for context (e.g., timestamps).
	Metadata map[string]string
}

// Handler defines the function signature for processing a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines the contract for sending messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber defines the contract for receiving messages from the bus.
type Subscriber interface {
	// Subscribe starts consuming topic in the background and returns once the
	// subscription is active. Consumption stops when ctx is canceled or the bus closes.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Bus is a Publisher and Subscriber backed by the same transport.
type Bus interface {
	Publisher
	Subscriber
}
