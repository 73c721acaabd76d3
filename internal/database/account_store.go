package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/relaychat/internal/domain"
	"github.com/samber/lo"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// var _ ensures that AccountStore implements the domain.AccountRepository interface at compile time.
var _ domain.AccountRepository = (*AccountStore)(nil)

type accountRecord struct {
	ID           *surrealmodels.RecordID       `json:"id,omitempty"`
	Username     string                        `json:"username"`
	PasswordHash string                        `json:"password_hash"`
	Role         string                        `json:"role"`
	Active       bool                          `json:"active"`
	CreatedAt    *surrealmodels.CustomDateTime `json:"created_at,omitempty"`
}

func (r accountRecord) toDomain() *domain.Account {
	a := &domain.Account{
		ID:           recordKey(r.ID),
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Role:         domain.Role(r.Role),
		Active:       r.Active,
	}
	if r.CreatedAt != nil {
		a.CreatedAt = r.CreatedAt.Time
	}
	return a
}

type countRow struct {
	Count int `json:"count"`
}

// AccountStore persists accounts in SurrealDB.
type AccountStore struct {
	conn *Connection
}

// NewAccountStore creates an AccountStore over a managed connection.
func NewAccountStore(conn *Connection) *AccountStore {
	return &AccountStore{conn: conn}
}

// Create inserts a new account with a generated id.
func (s *AccountStore) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if account == nil || strings.TrimSpace(account.Username) == "" {
		return nil, NewDBError(ErrInvalidInput, "account requires a username")
	}
	if !account.Role.Valid() {
		return nil, NewDBError(domain.ErrInvalidRole, fmt.Sprintf("unknown role %q", account.Role))
	}

	ctx, cancel := getTimeoutFromContext(ctx, s.conn.ExecuteTimeout(), ContextKeyExecuteTimeout)
	defer cancel()

	query := "CREATE type::thing($tb, $id) CONTENT $data"
	params := map[string]any{
		"tb": accountTable,
		"id": uuid.NewString(),
		"data": map[string]any{
			"username":      account.Username,
			"password_hash": account.PasswordHash,
			"role":          string(account.Role),
			"active":        account.Active,
			"created_at":    surrealmodels.CustomDateTime{Time: time.Now().UTC()},
		},
	}

	var created *accountRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		created, err = QueryOne[accountRecord](ctx, db, query, params)
		return err
	})
	if isUniqueViolation(err) {
		return nil, NewDBError(ErrAlreadyExists, fmt.Sprintf("username %q is taken", account.Username))
	}
	if err != nil {
		return nil, WrapError(err, "create account")
	}
	if created == nil {
		return nil, NewDBError(ErrQueryFailed, "create account returned no record")
	}
	return created.toDomain(), nil
}

// FindByID returns the account with the given id or ErrNotFound.
func (s *AccountStore) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	if id == "" {
		return nil, NewDBError(ErrNotFound, "empty account id")
	}
	return s.findOne(ctx, "SELECT * FROM type::thing($tb, $id)", map[string]any{"tb": accountTable, "id": id})
}

// FindByUsername returns the account with the given username or ErrNotFound.
func (s *AccountStore) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return s.findOne(ctx, "SELECT * FROM account WHERE username = $username", map[string]any{"username": username})
}

func (s *AccountStore) findOne(ctx context.Context, query string, params map[string]any) (*domain.Account, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.QueryTimeout(), ContextKeyQueryTimeout)
	defer cancel()

	var rec *accountRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rec, err = QueryOne[accountRecord](ctx, db, query, params)
		return err
	})
	if err != nil {
		return nil, WrapError(err, "find account")
	}
	if rec == nil {
		return nil, NewDBError(ErrNotFound, "account not found")
	}
	return rec.toDomain(), nil
}

// List returns all accounts in creation order.
func (s *AccountStore) List(ctx context.Context) ([]*domain.Account, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.QueryTimeout(), ContextKeyQueryTimeout)
	defer cancel()

	var rows []accountRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rows, err = Query[accountRecord](ctx, db, "SELECT * FROM account ORDER BY created_at ASC", nil)
		return err
	})
	if err != nil {
		return nil, WrapError(err, "list accounts")
	}
	return lo.Map(rows, func(r accountRecord, _ int) *domain.Account { return r.toDomain() }), nil
}

// Update applies patch to the account and returns the result.
func (s *AccountStore) Update(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error) {
	if patch.Empty() {
		return s.FindByID(ctx, id)
	}
	changes := map[string]any{}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return nil, NewDBError(domain.ErrInvalidRole, fmt.Sprintf("unknown role %q", *patch.Role))
		}
		changes["role"] = string(*patch.Role)
	}
	if patch.Active != nil {
		changes["active"] = *patch.Active
	}

	ctx, cancel := getTimeoutFromContext(ctx, s.conn.ExecuteTimeout(), ContextKeyExecuteTimeout)
	defer cancel()

	// Filtering on id keeps UPDATE from creating a record that does not exist.
	query := "UPDATE account MERGE $changes WHERE id = type::thing($tb, $id) RETURN AFTER"
	params := map[string]any{"tb": accountTable, "id": id, "changes": changes}

	var rows []accountRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rows, err = Query[accountRecord](ctx, db, query, params)
		return err
	})
	if err != nil {
		return nil, WrapError(err, "update account")
	}
	if len(rows) == 0 {
		return nil, NewDBError(ErrNotFound, "account not found")
	}
	return rows[0].toDomain(), nil
}

// Count returns the number of stored accounts.
func (s *AccountStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.QueryTimeout(), ContextKeyQueryTimeout)
	defer cancel()

	var row *countRow
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		row, err = QueryOne[countRow](ctx, db, "SELECT count() AS count FROM account GROUP ALL", nil)
		return err
	})
	if err != nil {
		return 0, WrapError(err, "count accounts")
	}
	if row == nil {
		return 0, nil
	}
	return row.Count, nil
}

// HasAdmin reports whether at least one admin account exists.
func (s *AccountStore) HasAdmin(ctx context.Context) (bool, error) {
	ctx, cancel := getTimeoutFromContext(ctx, s.conn.QueryTimeout(), ContextKeyQueryTimeout)
	defer cancel()

	var rec *accountRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rec, err = QueryOne[accountRecord](ctx, db, "SELECT * FROM account WHERE role = $role", map[string]any{"role": string(domain.RoleAdmin)})
		return err
	})
	if err != nil {
		return false, WrapError(err, "check for admin")
	}
	return rec != nil, nil
}

// recordKey returns the id part of a record id, without the table prefix.
func recordKey(id *surrealmodels.RecordID) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(id.ID)
}
