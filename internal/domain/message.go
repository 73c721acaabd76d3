package domain

import (
	"context"
	"time"
)

// Message is a persisted chat message.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageRepository defines the contract for chat message storage.
type MessageRepository interface {
	// Create persists a message and returns it with the store-assigned ID.
	Create(ctx context.Context, content, senderID string) (*Message, error)
	// Delete hard-deletes a message. Deleting an absent id is not an error;
	// the boolean reports whether a row was removed.
	Delete(ctx context.Context, id string) (bool, error)
	FindByID(ctx context.Context, id string) (*Message, error)
	// List returns every message, oldest first.
	List(ctx context.Context) ([]*Message, error)
}
