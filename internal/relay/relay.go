// Package relay turns validated chat events into persistence plus fan-out.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/nfrund/relaychat/internal/domain"
	"github.com/nfrund/relaychat/internal/pubsub"
	"github.com/nfrund/relaychat/internal/realtime"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmptyContent is returned for messages that are blank after trimming.
	ErrEmptyContent = errors.New("message content is empty")
	// ErrContentTooLong is returned for messages above the configured rune limit.
	ErrContentTooLong = errors.New("message content is too long")
)

// DefaultMaxLength is the rune limit applied when none is configured.
const DefaultMaxLength = 2000

// Option configures a Relay.
type Option func(*Relay)

// WithMaxLength sets the rune limit for message content.
func WithMaxLength(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxLength = n
		}
	}
}

// WithPublisher publishes domain events for every stored and deleted message.
func WithPublisher(pub pubsub.Publisher) Option {
	return func(r *Relay) {
		r.publisher = pub
	}
}

// Relay persists chat messages and fans them out to every connection.
type Relay struct {
	messages  domain.MessageRepository
	out       realtime.Broadcaster
	publisher pubsub.Publisher
	maxLength int
	logger    *slog.Logger
}

var _ realtime.Dispatcher = (*Relay)(nil)

// New creates a Relay.
func New(messages domain.MessageRepository, out realtime.Broadcaster, opts ...Option) *Relay {
	r := &Relay{
		messages:  messages,
		out:       out,
		maxLength: DefaultMaxLength,
		logger:    slog.Default().With("component", "relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Normalize trims surrounding whitespace and converts content to NFC.
func Normalize(content string) string {
	return norm.NFC.String(strings.TrimSpace(content))
}

// Send validates, stores and broadcasts a message from s.
func (r *Relay) Send(ctx context.Context, s realtime.Session, content string) (*domain.Message, error) {
	content = Normalize(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if n := utf8.RuneCountInString(content); n > r.maxLength {
		return nil, fmt.Errorf("%w: %d runes, limit %d", ErrContentTooLong, n, r.maxLength)
	}

	// Persistence must finish even if the sender disconnects meanwhile.
	msg, err := r.messages.Create(context.WithoutCancel(ctx), content, s.AccountID)
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	payload := realtime.MessagePayload{ID: msg.ID, Content: msg.Content, Sender: s.Sender()}
	if err := r.out.Broadcast(realtime.EventMessage, payload); err != nil {
		r.logger.WarnContext(ctx, "Failed to queue message broadcast", "message_id", msg.ID, "error", err)
	}

	r.publish(ctx, s.AccountID, func(ctx context.Context) error {
		return pubsub.TopicMessageCreated.Publish(ctx, r.publisher, s.AccountID, pubsub.MessageCreated{
			ID: msg.ID, SenderID: s.AccountID, Length: utf8.RuneCountInString(msg.Content),
		})
	})
	return msg, nil
}

// Delete removes a message on behalf of an admin session and broadcasts the
// retraction whether or not the message still existed. Non-admins get
// domain.ErrForbidden and nothing is touched.
func (r *Relay) Delete(ctx context.Context, s realtime.Session, messageID string) (bool, error) {
	if !s.IsAdmin() {
		return false, domain.ErrForbidden
	}

	existed, err := r.messages.Delete(context.WithoutCancel(ctx), messageID)
	if err != nil {
		return false, fmt.Errorf("delete message %s: %w", messageID, err)
	}

	if err := r.out.Broadcast(realtime.EventMessageDeleted, messageID); err != nil {
		r.logger.WarnContext(ctx, "Failed to queue retraction broadcast", "message_id", messageID, "error", err)
	}

	r.publish(ctx, s.AccountID, func(ctx context.Context) error {
		return pubsub.TopicMessageDeleted.Publish(ctx, r.publisher, s.AccountID, pubsub.MessageDeleted{
			ID: messageID, ModeratorID: s.AccountID, Existed: existed,
		})
	})
	return existed, nil
}

// HandleSend is the realtime entry point for sendMessage. Blank content is
// dropped silently; other failures are reported to the sender only.
func (r *Relay) HandleSend(ctx context.Context, s realtime.Session, content string) {
	logger := r.logger.With("connection_id", s.ConnectionID, "account_id", s.AccountID)

	msg, err := r.Send(ctx, s, content)
	switch {
	case err == nil:
		logger.DebugContext(ctx, "Message relayed", "message_id", msg.ID)
	case errors.Is(err, ErrEmptyContent):
		logger.DebugContext(ctx, "Dropping empty message")
	case errors.Is(err, ErrContentTooLong):
		logger.InfoContext(ctx, "Rejecting oversized message", "error", err)
		r.ack(s, realtime.CodeMessageTooLong, fmt.Sprintf("message exceeds %d characters", r.maxLength))
	default:
		logger.ErrorContext(ctx, "Failed to persist message", "error", err)
		r.ack(s, realtime.CodePersistFailed, "message could not be saved")
	}
}

// HandleDelete is the realtime entry point for deleteMessage. Requests from
// non-admins are ignored without a reply.
func (r *Relay) HandleDelete(ctx context.Context, s realtime.Session, messageID string) {
	logger := r.logger.With("connection_id", s.ConnectionID, "account_id", s.AccountID, "message_id", messageID)

	existed, err := r.Delete(ctx, s, messageID)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "Message deleted by moderator", "existed", existed)
	case errors.Is(err, domain.ErrForbidden):
		logger.DebugContext(ctx, "Ignoring delete from non-admin session")
	default:
		logger.ErrorContext(ctx, "Failed to delete message", "error", err)
		r.ack(s, realtime.CodeDeleteFailed, "message could not be deleted")
	}
}

func (r *Relay) ack(s realtime.Session, code, message string) {
	if err := r.out.SendTo(s.ConnectionID, realtime.EventError, realtime.ErrorPayload{Code: code, Message: message}); err != nil {
		r.logger.Warn("Failed to queue error ack", "connection_id", s.ConnectionID, "code", code, "error", err)
	}
}

func (r *Relay) publish(ctx context.Context, userID string, fn func(context.Context) error) {
	if r.publisher == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish domain event", "user_id", userID, "error", err)
	}
}
