package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nfrund/relaychat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func testClient(id string, buffer int) *Client {
	return &Client{
		id:      id,
		session: session(id, "acct-"+id, id, domain.RoleMember),
		send:    make(chan []byte, buffer),
	}
}

func receive(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		require.True(t, ok, "send queue closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame for %s", c.id)
		return Envelope{}
	}
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	h, _ := startHub(t)
	a, b := testClient("a", 4), testClient("b", 4)
	require.NoError(t, h.attach(a))
	require.NoError(t, h.attach(b))

	require.NoError(t, h.Broadcast(EventMessageDeleted, "m1"))

	for _, c := range []*Client{a, b} {
		env := receive(t, c)
		assert.Equal(t, EventMessageDeleted, env.Event)
		assert.JSONEq(t, `"m1"`, string(env.Data))
	}
}

func TestHub_SendToTargetsOneClient(t *testing.T) {
	h, _ := startHub(t)
	a, b := testClient("a", 4), testClient("b", 4)
	require.NoError(t, h.attach(a))
	require.NoError(t, h.attach(b))

	require.NoError(t, h.SendTo("b", EventError, ErrorPayload{Code: CodePersistFailed, Message: "x"}))
	require.NoError(t, h.SendTo("missing", EventError, ErrorPayload{Code: CodePersistFailed}))
	require.NoError(t, h.SendTo("", EventError, ErrorPayload{Code: CodePersistFailed}))
	require.NoError(t, h.Broadcast(EventUsers, []RosterEntry{}))

	env := receive(t, b)
	assert.Equal(t, EventError, env.Event)
	assert.JSONEq(t, `{"code":"persist_failed","message":"x"}`, string(env.Data))

	// a only sees the broadcast that was queued after the direct sends.
	assert.Equal(t, EventUsers, receive(t, a).Event)
}

func TestHub_PreservesQueueOrder(t *testing.T) {
	h, _ := startHub(t)
	a := testClient("a", 16)
	require.NoError(t, h.attach(a))

	require.NoError(t, h.Broadcast(EventUsers, []RosterEntry{}))
	require.NoError(t, h.Broadcast(EventMessage, MessagePayload{ID: "1"}))
	require.NoError(t, h.Broadcast(EventMessageDeleted, "1"))

	assert.Equal(t, EventUsers, receive(t, a).Event)
	assert.Equal(t, EventMessage, receive(t, a).Event)
	assert.Equal(t, EventMessageDeleted, receive(t, a).Event)
}

func TestHub_DropsWhenQueueFull(t *testing.T) {
	h, _ := startHub(t)
	slow, fast := testClient("slow", 1), testClient("fast", 4)
	require.NoError(t, h.attach(slow))
	require.NoError(t, h.attach(fast))

	require.NoError(t, h.Broadcast(EventMessage, MessagePayload{ID: "1"}))
	require.NoError(t, h.Broadcast(EventMessage, MessagePayload{ID: "2"}))

	receive(t, fast)
	receive(t, fast)
	receive(t, slow)
	select {
	case <-slow.send:
		t.Fatal("slow client should have dropped the second frame")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_DetachClosesQueue(t *testing.T) {
	h, _ := startHub(t)
	a := testClient("a", 1)
	require.NoError(t, h.attach(a))
	require.NoError(t, h.detach(a))

	select {
	case _, ok := <-a.send:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("queue not closed")
	}
}

func TestHub_StoppedRejectsEvents(t *testing.T) {
	h, cancel := startHub(t)
	a := testClient("a", 1)
	require.NoError(t, h.attach(a))
	cancel()

	require.Eventually(t, func() bool {
		return h.Broadcast(EventUsers, []RosterEntry{}) == ErrHubStopped
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := <-a.send
	assert.False(t, ok)
}
