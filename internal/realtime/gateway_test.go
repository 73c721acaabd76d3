package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/relaychat/internal/domain"
	"github.com/nfrund/relaychat/internal/identity"
	"github.com/nfrund/relaychat/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubVerifier admits the tokens it knows. "outage" simulates a store failure.
type stubVerifier map[string]identity.Principal

func (v stubVerifier) VerifyConnection(_ context.Context, token string) (identity.Principal, error) {
	if token == "outage" {
		return identity.Principal{}, errors.New("store unavailable")
	}
	p, ok := v[token]
	if !ok {
		return identity.Principal{}, &identity.AuthFailure{Reason: identity.ReasonInvalidToken}
	}
	return p, nil
}

type dispatched struct {
	event   string
	session Session
	arg     string
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []dispatched
	seen   chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{seen: make(chan struct{}, 16)}
}

func (d *recordingDispatcher) record(e dispatched) {
	d.mu.Lock()
	d.events = append(d.events, e)
	d.mu.Unlock()
	d.seen <- struct{}{}
}

func (d *recordingDispatcher) HandleSend(_ context.Context, s Session, content string) {
	d.record(dispatched{event: EventSendMessage, session: s, arg: content})
}

func (d *recordingDispatcher) HandleDelete(_ context.Context, s Session, id string) {
	if id == "explode" {
		panic("dispatch failure")
	}
	d.record(dispatched{event: EventDeleteMessage, session: s, arg: id})
}

func (d *recordingDispatcher) wait(t *testing.T) dispatched {
	t.Helper()
	select {
	case <-d.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("nothing dispatched")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events[len(d.events)-1]
}

var (
	alice = identity.Principal{AccountID: "a1", Username: "alice", Role: domain.RoleMember}
	bob   = identity.Principal{AccountID: "b1", Username: "bob", Role: domain.RoleAdmin}
)

type gatewayFixture struct {
	gateway    *Gateway
	registry   *Registry
	dispatcher *recordingDispatcher
	url        string
}

func newGatewayFixture(t *testing.T, opts ...GatewayOption) *gatewayFixture {
	t.Helper()

	hub, _ := startHub(t)
	registry := NewRegistry()
	dispatcher := newRecordingDispatcher()
	verifier := stubVerifier{"alice-token": alice, "bob-token": bob}
	gw := NewGateway(verifier, registry, hub, dispatcher, opts...)

	e := echo.New()
	e.GET("/ws", gw.Handler())
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &gatewayFixture{
		gateway:    gw,
		registry:   registry,
		dispatcher: dispatcher,
		url:        "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (f *gatewayFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, f.url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var env Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	return env
}

func readRoster(t *testing.T, conn *websocket.Conn) []RosterEntry {
	t.Helper()
	env := readEnvelope(t, conn)
	require.Equal(t, EventUsers, env.Event)
	var roster []RosterEntry
	require.NoError(t, json.Unmarshal(env.Data, &roster))
	return roster
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := Encode(event, data)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, frame))
}

func TestGateway_AuthenticatedConnectionJoinsRoster(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "alice-token")

	roster := readRoster(t, conn)
	assert.Equal(t, []RosterEntry{{ID: "a1", Username: "alice", Role: domain.RoleMember}}, roster)
	assert.Equal(t, 1, f.registry.Len())
}

func TestGateway_RejectsBadCredentials(t *testing.T) {
	for _, token := range []string{"tampered", "", "outage"} {
		t.Run("token="+token, func(t *testing.T) {
			f := newGatewayFixture(t)
			conn := f.dial(t, token)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _, err := conn.Read(ctx)
			require.Error(t, err)

			var closeErr websocket.CloseError
			require.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
			assert.Equal(t, websocket.StatusPolicyViolation, closeErr.Code)
			assert.Equal(t, AuthErrorReason, closeErr.Reason)
			assert.Empty(t, f.registry.Snapshot())
		})
	}
}

func TestGateway_BearerHeader(t *testing.T) {
	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, f.url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer bob-token"}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	assert.Equal(t, []RosterEntry{{ID: "b1", Username: "bob", Role: domain.RoleAdmin}}, readRoster(t, conn))
}

func TestGateway_RosterFollowsConnectAndDisconnect(t *testing.T) {
	f := newGatewayFixture(t)

	a := f.dial(t, "alice-token")
	require.Len(t, readRoster(t, a), 1)

	b := f.dial(t, "bob-token")
	assert.Len(t, readRoster(t, a), 2)
	assert.Len(t, readRoster(t, b), 2)

	require.NoError(t, b.Close(websocket.StatusNormalClosure, "bye"))

	roster := readRoster(t, a)
	assert.Equal(t, []RosterEntry{{ID: "a1", Username: "alice", Role: domain.RoleMember}}, roster)
	require.Eventually(t, func() bool { return f.registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_DispatchUsesSessionIdentity(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "alice-token")
	readRoster(t, conn)

	writeEvent(t, conn, EventSendMessage, map[string]any{
		"content": "hi",
		"sender":  map[string]string{"id": "b1", "username": "bob", "role": "admin"},
	})
	got := f.dispatcher.wait(t)
	assert.Equal(t, EventSendMessage, got.event)
	assert.Equal(t, "hi", got.arg)
	assert.Equal(t, "a1", got.session.AccountID)
	assert.Equal(t, domain.RoleMember, got.session.Role)
	assert.NotEmpty(t, got.session.ConnectionID)

	writeEvent(t, conn, EventDeleteMessage, DeleteMessagePayload{MessageID: "m1"})
	got = f.dispatcher.wait(t)
	assert.Equal(t, EventDeleteMessage, got.event)
	assert.Equal(t, "m1", got.arg)
}

func TestGateway_IgnoresBadFrames(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "alice-token")
	readRoster(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	writeEvent(t, conn, "shout", map[string]string{"content": "x"})
	writeEvent(t, conn, EventDeleteMessage, DeleteMessagePayload{MessageID: "explode"})
	writeEvent(t, conn, EventSendMessage, SendMessagePayload{Content: "still here"})

	got := f.dispatcher.wait(t)
	assert.Equal(t, "still here", got.arg)
	assert.Equal(t, 1, f.registry.Len())
}

func TestGateway_RateLimitsInboundEvents(t *testing.T) {
	f := newGatewayFixture(t, WithRateLimit(0.001, 1))
	conn := f.dial(t, "alice-token")
	readRoster(t, conn)

	writeEvent(t, conn, EventSendMessage, SendMessagePayload{Content: "first"})
	writeEvent(t, conn, EventSendMessage, SendMessagePayload{Content: "second"})

	assert.Equal(t, "first", f.dispatcher.wait(t).arg)

	env := readEnvelope(t, conn)
	assert.Equal(t, EventError, env.Event)
	assert.JSONEq(t, `{"code":"rate_limited","message":"too many events"}`, string(env.Data))
}

func TestGateway_PublishesRosterChanges(t *testing.T) {
	bus := pubsub.NewWatermillBridge()
	t.Cleanup(func() { bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	changes := make(chan pubsub.RosterChanged, 4)
	require.NoError(t, pubsub.TopicRosterChanged.Subscribe(ctx, bus, func(_ context.Context, _ string, p pubsub.RosterChanged) error {
		changes <- p
		return nil
	}))

	f := newGatewayFixture(t, WithPublisher(bus))
	conn := f.dial(t, "alice-token")
	readRoster(t, conn)

	select {
	case p := <-changes:
		assert.Equal(t, pubsub.RosterChanged{Connections: 1, AccountID: "a1", Joined: true}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("no roster event published")
	}
}

func TestGateway_StateTransitions(t *testing.T) {
	c := &Client{}
	assert.Equal(t, StateConnecting, c.State())
	c.setState(StateAuthenticated)
	assert.Equal(t, "authenticated", c.State().String())
	c.setState(StateClosed)
	assert.Equal(t, "closed", c.State().String())
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "q", tokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "bearer h")
	assert.Equal(t, "h", tokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic xyz")
	assert.Empty(t, tokenFromRequest(r))
}
