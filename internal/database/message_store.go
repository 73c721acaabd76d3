package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/relaychat/internal/domain"
	"github.com/samber/lo"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// var _ ensures that MessageStore implements the domain.MessageRepository interface at compile time.
var _ domain.MessageRepository = (*MessageStore)(nil)

type messageRecord struct {
	ID        *surrealmodels.RecordID       `json:"id,omitempty"`
	Content   string                        `json:"content"`
	SenderID  string                        `json:"sender_id"`
	CreatedAt *surrealmodels.CustomDateTime `json:"created_at,omitempty"`
}

func (r messageRecord) toDomain() *domain.Message {
	m := &domain.Message{
		ID:       recordKey(r.ID),
		Content:  r.Content,
		SenderID: r.SenderID,
	}
	if r.CreatedAt != nil {
		m.CreatedAt = r.CreatedAt.Time
	}
	return m
}

// MessageStore persists chat messages in SurrealDB.
type MessageStore struct {
	conn *Connection
}

// NewMessageStore creates a MessageStore over a managed connection.
func NewMessageStore(conn *Connection) *MessageStore {
	return &MessageStore{conn: conn}
}

// Create inserts a message with a generated id.
func (s *MessageStore) Create(ctx context.Context, content, senderID string) (*domain.Message, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.ExecuteTimeout(), ContextKeyExecuteTimeout)
	defer cancel()

	query := "CREATE type::thing($tb, $id) CONTENT $data"
	params := map[string]any{
		"tb": messageTable,
		"id": uuid.NewString(),
		"data": map[string]any{
			"content":    content,
			"sender_id":  senderID,
			"created_at": surrealmodels.CustomDateTime{Time: time.Now().UTC()},
		},
	}

	var created *messageRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		created, err = QueryOne[messageRecord](ctx, db, query, params)
		return err
	})
	if err != nil {
		return nil, WrapError(err, "create message")
	}
	if created == nil {
		return nil, NewDBError(ErrQueryFailed, "create message returned no record")
	}
	return created.toDomain(), nil
}

// Delete removes a message. An absent id reports false without error.
func (s *MessageStore) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.ExecuteTimeout(), ContextKeyExecuteTimeout)
	defer cancel()

	var removed []messageRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		removed, err = Query[messageRecord](ctx, db, "DELETE type::thing($tb, $id) RETURN BEFORE", map[string]any{"tb": messageTable, "id": id})
		return err
	})
	if err != nil {
		return false, WrapError(err, "delete message")
	}
	return len(removed) > 0, nil
}

// FindByID returns the message or ErrNotFound.
func (s *MessageStore) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.QueryTimeout(), ContextKeyQueryTimeout)
	defer cancel()

	var rec *messageRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rec, err = QueryOne[messageRecord](ctx, db, "SELECT * FROM type::thing($tb, $id)", map[string]any{"tb": messageTable, "id": id})
		return err
	})
	if err != nil {
		return nil, WrapError(err, "find message")
	}
	if rec == nil {
		return nil, NewDBError(ErrNotFound, "message not found")
	}
	return rec.toDomain(), nil
}

// List returns every message, oldest first.
func (s *MessageStore) List(ctx context.Context) ([]*domain.Message, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.QueryTimeout(), ContextKeyQueryTimeout)
	defer cancel()

	var rows []messageRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rows, err = Query[messageRecord](ctx, db, "SELECT * FROM message ORDER BY created_at ASC", nil)
		return err
	})
	if err != nil {
		return nil, WrapError(err, "list messages")
	}
	return lo.Map(rows, func(r messageRecord, _ int) *domain.Message { return r.toDomain() }), nil
}
