// Package audit writes a structured trail of moderation and membership events
// taken from the internal bus.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/relaychat/internal/pubsub"
)

// Logger subscribes to domain events and records them.
type Logger struct {
	logger *slog.Logger
}

// New creates an audit logger writing to logger, or to the default logger when nil.
func New(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With("component", "audit")}
}

// Start subscribes to every audited topic. Subscriptions end when ctx is
// canceled or the bus closes.
func (l *Logger) Start(ctx context.Context, sub pubsub.Subscriber) error {
	if err := pubsub.TopicMessageDeleted.Subscribe(ctx, sub, l.messageDeleted); err != nil {
		return fmt.Errorf("audit %s: %w", pubsub.TopicMessageDeleted.Name(), err)
	}
	if err := pubsub.TopicAccountUpdated.Subscribe(ctx, sub, l.accountUpdated); err != nil {
		return fmt.Errorf("audit %s: %w", pubsub.TopicAccountUpdated.Name(), err)
	}
	if err := pubsub.TopicMessageCreated.Subscribe(ctx, sub, l.messageCreated); err != nil {
		return fmt.Errorf("audit %s: %w", pubsub.TopicMessageCreated.Name(), err)
	}
	if err := pubsub.TopicRosterChanged.Subscribe(ctx, sub, l.rosterChanged); err != nil {
		return fmt.Errorf("audit %s: %w", pubsub.TopicRosterChanged.Name(), err)
	}
	return nil
}

func (l *Logger) messageDeleted(ctx context.Context, _ string, e pubsub.MessageDeleted) error {
	l.logger.InfoContext(ctx, "Message removed by moderator",
		"event", "moderation.delete", "message_id", e.ID, "moderator_id", e.ModeratorID, "existed", e.Existed)
	return nil
}

func (l *Logger) accountUpdated(ctx context.Context, _ string, e pubsub.AccountUpdated) error {
	l.logger.InfoContext(ctx, "Account changed by admin",
		"event", "moderation.account", "account_id", e.ID, "role", e.Role, "active", e.Active, "by", e.By)
	return nil
}

func (l *Logger) messageCreated(ctx context.Context, _ string, e pubsub.MessageCreated) error {
	l.logger.DebugContext(ctx, "Message stored",
		"event", "chat.message", "message_id", e.ID, "account_id", e.SenderID, "length", e.Length)
	return nil
}

func (l *Logger) rosterChanged(ctx context.Context, _ string, e pubsub.RosterChanged) error {
	l.logger.DebugContext(ctx, "Roster changed",
		"event", "chat.roster", "account_id", e.AccountID, "joined", e.Joined, "connections", e.Connections)
	return nil
}
