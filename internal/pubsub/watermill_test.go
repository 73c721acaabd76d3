package pubsub

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillBridge_PublishSubscribe(t *testing.T) {
	bus := NewWatermillBridge()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	require.NoError(t, bus.Subscribe(ctx, "chat.test", func(_ context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, Message{
		Topic:    "chat.test",
		UserID:   "a1",
		Payload:  []byte(`{"hello":"world"}`),
		Metadata: map[string]string{"request_id": "req-1"},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "chat.test", msg.Topic)
		assert.Equal(t, "a1", msg.UserID)
		assert.JSONEq(t, `{"hello":"world"}`, string(msg.Payload))
		assert.Equal(t, "req-1", msg.Metadata["request_id"])
		assert.NotEmpty(t, msg.Metadata["timestamp"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestWatermillBridge_HandlerFailureDoesNotStopSubscription(t *testing.T) {
	bus := NewWatermillBridge()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{}, 3)
	require.NoError(t, bus.Subscribe(ctx, "chat.flaky", func(_ context.Context, msg Message) error {
		done <- struct{}{}
		switch calls.Add(1) {
		case 1:
			return errors.New("boom")
		case 2:
			panic("worse")
		}
		return nil
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(ctx, Message{Topic: "chat.flaky", Payload: []byte("{}")}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d deliveries", i)
		}
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestWatermillBridge_RejectsEmptyTopic(t *testing.T) {
	bus := NewWatermillBridge()
	defer bus.Close()
	assert.Error(t, bus.Publish(context.Background(), Message{}))
}

func TestTypedEvent_RoundTrip(t *testing.T) {
	bus := NewWatermillBridge()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan MessageDeleted, 1)
	require.NoError(t, TopicMessageDeleted.Subscribe(ctx, bus, func(_ context.Context, userID string, p MessageDeleted) error {
		assert.Equal(t, "admin-1", userID)
		got <- p
		return nil
	}))

	require.NoError(t, TopicMessageDeleted.Publish(ctx, bus, "admin-1", MessageDeleted{ID: "m1", ModeratorID: "admin-1", Existed: true}))

	select {
	case p := <-got:
		assert.Equal(t, MessageDeleted{ID: "m1", ModeratorID: "admin-1", Existed: true}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("typed event not delivered")
	}
}

func TestTypedEvent_DecodeError(t *testing.T) {
	_, err := TopicMessageCreated.Decode(Message{Payload: []byte("not json")})
	assert.Error(t, err)
	assert.Equal(t, "chat.message.created", TopicMessageCreated.Name())
}
