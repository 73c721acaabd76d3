package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event binds a topic name to its payload type so publishers and subscribers
// agree on the encoding.
type Event[T any] struct {
	name string
}

// NewEvent declares a typed topic.
func NewEvent[T any](name string) Event[T] {
	return Event[T]{name: name}
}

// Name returns the topic name.
func (e Event[T]) Name() string { return e.name }

// Publish encodes payload as JSON and publishes it on the event's topic.
func (e Event[T]) Publish(ctx context.Context, pub Publisher, userID string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.name, err)
	}
	return pub.Publish(ctx, Message{Topic: e.name, UserID: userID, Payload: data})
}

// Decode unmarshals a received message into the event's payload type.
func (e Event[T]) Decode(msg Message) (T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s: %w", e.name, err)
	}
	return payload, nil
}

// Subscribe registers a handler that receives decoded payloads.
func (e Event[T]) Subscribe(ctx context.Context, sub Subscriber, fn func(ctx context.Context, userID string, payload T) error) error {
	return sub.Subscribe(ctx, e.name, func(ctx context.Context, msg Message) error {
		payload, err := e.Decode(msg)
		if err != nil {
			return err
		}
		return fn(ctx, msg.UserID, payload)
	})
}
