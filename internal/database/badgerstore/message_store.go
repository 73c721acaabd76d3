package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/nfrund/relaychat/internal/domain"
)

var _ domain.MessageRepository = (*MessageStore)(nil)

// MessageStore keeps chat messages in badger keyed by time-ordered ids.
type MessageStore struct {
	db *badger.DB
}

// NewMessageStore creates a MessageStore.
func NewMessageStore(db *badger.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Create stores a new message.
func (s *MessageStore) Create(_ context.Context, content, senderID string) (*domain.Message, error) {
	msg := &domain.Message{
		ID:        newID(),
		Content:   content,
		SenderID:  senderID,
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, messagePrefix+msg.ID, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// Delete removes the message. An absent id reports false without error.
func (s *MessageStore) Delete(_ context.Context, id string) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(messagePrefix + id)
		if _, err := txn.Get(key); err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("delete message %s: %w", id, err)
	}
	return existed, nil
}

// FindByID returns the message or domain.ErrNotFound.
func (s *MessageStore) FindByID(_ context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, messagePrefix+id, &msg)
	})
	if isNotFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message %s: %w", id, err)
	}
	return &msg, nil
}

// List returns every message, oldest first.
func (s *MessageStore) List(_ context.Context) ([]*domain.Message, error) {
	var out []*domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, messagePrefix, func(val []byte) error {
			var msg domain.Message
			if err := json.Unmarshal(val, &msg); err != nil {
				return err
			}
			out = append(out, &msg)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}
