package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nfrund/relaychat/internal/database/badgerstore"
	"github.com/nfrund/relaychat/internal/domain"
	"github.com/nfrund/relaychat/internal/domain/domaintest"
	"github.com/nfrund/relaychat/internal/pubsub"
	"github.com/nfrund/relaychat/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Broadcast(event string, data any) error {
	return m.Called(event, data).Error(0)
}

func (m *mockBroadcaster) SendTo(connectionID, event string, data any) error {
	return m.Called(connectionID, event, data).Error(0)
}

var (
	member = realtime.Session{ConnectionID: "c-member", AccountID: "a1", Username: "alice", Role: domain.RoleMember}
	admin  = realtime.Session{ConnectionID: "c-admin", AccountID: "b1", Username: "bob", Role: domain.RoleAdmin}
)

func TestHandleSend_PersistsThenBroadcasts(t *testing.T) {
	store := new(domaintest.MessageRepository)
	out := new(mockBroadcaster)
	r := New(store, out)

	stored := &domain.Message{ID: "m1", Content: "hi", SenderID: "a1", CreatedAt: time.Now()}
	store.On("Create", mock.Anything, "hi", "a1").Return(stored, nil).Once()
	out.On("Broadcast", realtime.EventMessage, realtime.MessagePayload{
		ID:      "m1",
		Content: "hi",
		Sender:  realtime.Sender{ID: "a1", Username: "alice", Role: domain.RoleMember},
	}).Return(nil).Once()

	r.HandleSend(context.Background(), member, "  hi \n")

	store.AssertExpectations(t)
	out.AssertExpectations(t)
}

func TestHandleSend_RoleComesFromSession(t *testing.T) {
	store := new(domaintest.MessageRepository)
	out := new(mockBroadcaster)
	r := New(store, out)

	store.On("Create", mock.Anything, "ok", "b1").Return(&domain.Message{ID: "m2", Content: "ok", SenderID: "b1"}, nil)
	out.On("Broadcast", realtime.EventMessage, mock.MatchedBy(func(p realtime.MessagePayload) bool {
		return p.Sender.Role == domain.RoleAdmin && p.Sender.Username == "bob"
	})).Return(nil).Once()

	r.HandleSend(context.Background(), admin, "ok")
	out.AssertExpectations(t)
}

func TestHandleSend_WhitespaceIsDropped(t *testing.T) {
	for _, content := range []string{"", "   ", "\t\n", "  "} {
		store := new(domaintest.MessageRepository)
		out := new(mockBroadcaster)
		r := New(store, out)

		r.HandleSend(context.Background(), member, content)

		store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		out.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
		out.AssertNotCalled(t, "SendTo", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestHandleSend_TooLong(t *testing.T) {
	store := new(domaintest.MessageRepository)
	out := new(mockBroadcaster)
	r := New(store, out, WithMaxLength(5))

	out.On("SendTo", "c-member", realtime.EventError, realtime.ErrorPayload{
		Code: realtime.CodeMessageTooLong, Message: "message exceeds 5 characters",
	}).Return(nil).Once()

	r.HandleSend(context.Background(), member, "héllo!")

	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	out.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	out.AssertExpectations(t)
}

func TestSend_NormalizesToNFC(t *testing.T) {
	store := new(domaintest.MessageRepository)
	out := new(mockBroadcaster)
	r := New(store, out, WithMaxLength(5))

	// "e" + combining acute accent composes to a single rune.
	store.On("Create", mock.Anything, "caf\u00e9", "a1").Return(&domain.Message{ID: "m3", Content: "caf\u00e9"}, nil)
	out.On("Broadcast", realtime.EventMessage, mock.Anything).Return(nil)

	msg, err := r.Send(context.Background(), member, "cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "m3", msg.ID)
}

func TestHandleSend_PersistenceFailureAcksSenderOnly(t *testing.T) {
	store := new(domaintest.MessageRepository)
	out := new(mockBroadcaster)
	r := New(store, out)

	store.On("Create", mock.Anything, "hi", "a1").Return(nil, errors.New("disk full"))
	out.On("SendTo", "c-member", realtime.EventError, realtime.ErrorPayload{
		Code: realtime.CodePersistFailed, Message: "message could not be saved",
	}).Return(nil).Once()

	r.HandleSend(context.Background(), member, "hi")

	out.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	out.AssertExpectations(t)
}

func TestHandleSend_SurvivesSenderDisconnect(t *testing.T) {
	store := new(domaintest.MessageRepository)
	out := new(mockBroadcaster)
	r := New(store, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store.On("Create", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), "hi", "a1").
		Return(&domain.Message{ID: "m4", Content: "hi"}, nil).Once()
	out.On("Broadcast", realtime.EventMessage, mock.Anything).Return(nil).Once()

	r.HandleSend(ctx, member, "hi")
	store.AssertExpectations(t)
	out.AssertExpectations(t)
}

func TestHandleDelete_NonAdminIgnored(t *testing.T) {
	store := new(domaintest.MessageRepository)
	out := new(mockBroadcaster)
	r := New(store, out)

	r.HandleDelete(context.Background(), member, "m1")

	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	out.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	out.AssertNotCalled(t, "SendTo", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleDelete_AdminBroadcastsEvenWhenAbsent(t *testing.T) {
	for _, existed := range []bool{true, false} {
		store := new(domaintest.MessageRepository)
		out := new(mockBroadcaster)
		r := New(store, out)

		store.On("Delete", mock.Anything, "m1").Return(existed, nil).Once()
		out.On("Broadcast", realtime.EventMessageDeleted, "m1").Return(nil).Once()

		r.HandleDelete(context.Background(), admin, "m1")

		store.AssertExpectations(t)
		out.AssertExpectations(t)
	}
}

func TestHandleDelete_StoreFailureAcksWithoutBroadcast(t *testing.T) {
	store := new(domaintest.MessageRepository)
	out := new(mockBroadcaster)
	r := New(store, out)

	store.On("Delete", mock.Anything, "m1").Return(false, errors.New("timeout"))
	out.On("SendTo", "c-admin", realtime.EventError, realtime.ErrorPayload{
		Code: realtime.CodeDeleteFailed, Message: "message could not be deleted",
	}).Return(nil).Once()

	r.HandleDelete(context.Background(), admin, "m1")

	out.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	out.AssertExpectations(t)
}

func TestDelete_ForbiddenForMembers(t *testing.T) {
	r := New(new(domaintest.MessageRepository), new(mockBroadcaster))
	_, err := r.Delete(context.Background(), member, "m1")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRelay_PublishesDomainEvents(t *testing.T) {
	bus := pubsub.NewWatermillBridge()
	t.Cleanup(func() { bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	created := make(chan pubsub.MessageCreated, 1)
	deleted := make(chan pubsub.MessageDeleted, 1)
	require.NoError(t, pubsub.TopicMessageCreated.Subscribe(ctx, bus, func(_ context.Context, _ string, p pubsub.MessageCreated) error {
		created <- p
		return nil
	}))
	require.NoError(t, pubsub.TopicMessageDeleted.Subscribe(ctx, bus, func(_ context.Context, _ string, p pubsub.MessageDeleted) error {
		deleted <- p
		return nil
	}))

	store := new(domaintest.MessageRepository)
	out := new(mockBroadcaster)
	r := New(store, out, WithPublisher(bus))

	store.On("Create", mock.Anything, "hello", "a1").Return(&domain.Message{ID: "m1", Content: "hello"}, nil)
	store.On("Delete", mock.Anything, "m1").Return(true, nil)
	out.On("Broadcast", mock.Anything, mock.Anything).Return(nil)

	r.HandleSend(ctx, member, "hello")
	r.HandleDelete(ctx, admin, "m1")

	select {
	case p := <-created:
		assert.Equal(t, pubsub.MessageCreated{ID: "m1", SenderID: "a1", Length: 5}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("no created event")
	}
	select {
	case p := <-deleted:
		assert.Equal(t, pubsub.MessageDeleted{ID: "m1", ModeratorID: "b1", Existed: true}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("no deleted event")
	}
}

// recorder is a Broadcaster that keeps every broadcast for inspection.
type recorder struct {
	events []string
	data   []any
}

func (r *recorder) Broadcast(event string, data any) error {
	r.events = append(r.events, event)
	r.data = append(r.data, data)
	return nil
}

func (r *recorder) SendTo(string, string, any) error { return nil }

func TestRelay_SendAndModerateAgainstStore(t *testing.T) {
	db, err := badgerstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	messages := badgerstore.NewMessageStore(db)
	out := &recorder{}
	r := New(messages, out)
	ctx := context.Background()

	r.HandleSend(ctx, member, "hi")
	require.Equal(t, []string{realtime.EventMessage}, out.events)
	payload := out.data[0].(realtime.MessagePayload)
	assert.Equal(t, "hi", payload.Content)
	assert.Equal(t, "alice", payload.Sender.Username)

	r.HandleDelete(ctx, member, payload.ID)
	assert.Len(t, out.events, 1)
	_, err = messages.FindByID(ctx, payload.ID)
	require.NoError(t, err, "member delete must leave the message in place")

	r.HandleDelete(ctx, admin, payload.ID)
	assert.Equal(t, []string{realtime.EventMessage, realtime.EventMessageDeleted}, out.events)
	assert.Equal(t, payload.ID, out.data[1])
	_, err = messages.FindByID(ctx, payload.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	r.HandleDelete(ctx, admin, "no-such-id")
	assert.Len(t, out.events, 3)
	assert.Equal(t, "no-such-id", out.data[2])

	r.HandleSend(ctx, member, strings.Repeat(" ", 10))
	assert.Len(t, out.events, 3)
}
