package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/nfrund/relaychat/internal/domain"
)

var _ domain.AccountRepository = (*AccountStore)(nil)

// diskAccount is the stored form of an account. PasswordHash is excluded from
// domain.Account's JSON, so the store keeps its own shape.
type diskAccount struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

func (d diskAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:           d.ID,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		Role:         domain.Role(d.Role),
		Active:       d.Active,
		CreatedAt:    d.CreatedAt,
	}
}

// AccountStore keeps accounts in badger with a secondary username index.
type AccountStore struct {
	db *badger.DB
}

// NewAccountStore creates an AccountStore.
func NewAccountStore(db *badger.DB) *AccountStore {
	return &AccountStore{db: db}
}

func usernameKey(username string) string {
	return usernamePrefix + strings.ToLower(username)
}

// Create stores the account and its username index entry in one transaction.
func (s *AccountStore) Create(_ context.Context, account *domain.Account) (*domain.Account, error) {
	if account == nil || strings.TrimSpace(account.Username) == "" {
		return nil, fmt.Errorf("account requires a username")
	}
	if !account.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRole, account.Role)
	}

	rec := diskAccount{
		ID:           newID(),
		Username:     account.Username,
		PasswordHash: account.PasswordHash,
		Role:         string(account.Role),
		Active:       account.Active,
		CreatedAt:    time.Now().UTC(),
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		idxKey := []byte(usernameKey(rec.Username))
		if _, err := txn.Get(idxKey); err == nil {
			return fmt.Errorf("username %q: %w", rec.Username, domain.ErrAlreadyExists)
		} else if !isNotFound(err) {
			return err
		}
		if err := txn.Set(idxKey, []byte(rec.ID)); err != nil {
			return err
		}
		return setJSON(txn, accountPrefix+rec.ID, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

// FindByID returns the account or domain.ErrNotFound.
func (s *AccountStore) FindByID(_ context.Context, id string) (*domain.Account, error) {
	var rec diskAccount
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, accountPrefix+id, &rec)
	})
	if isNotFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account %s: %w", id, err)
	}
	return rec.toDomain(), nil
}

// FindByUsername resolves the username index and loads the account.
func (s *AccountStore) FindByUsername(_ context.Context, username string) (*domain.Account, error) {
	var rec diskAccount
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(usernameKey(username)))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, accountPrefix+string(id), &rec)
	})
	if isNotFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account %q: %w", username, err)
	}
	return rec.toDomain(), nil
}

// List returns all accounts in creation order.
func (s *AccountStore) List(_ context.Context) ([]*domain.Account, error) {
	var out []*domain.Account
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, accountPrefix, func(val []byte) error {
			var rec diskAccount
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			out = append(out, rec.toDomain())
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

// Update applies patch atomically.
func (s *AccountStore) Update(_ context.Context, id string, patch domain.AccountPatch) (*domain.Account, error) {
	if patch.Role != nil && !patch.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRole, *patch.Role)
	}

	var rec diskAccount
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, accountPrefix+id, &rec); err != nil {
			return err
		}
		if patch.Empty() {
			return nil
		}
		if patch.Role != nil {
			rec.Role = string(*patch.Role)
		}
		if patch.Active != nil {
			rec.Active = *patch.Active
		}
		return setJSON(txn, accountPrefix+id, rec)
	})
	if isNotFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update account %s: %w", id, err)
	}
	return rec.toDomain(), nil
}

// Count returns the number of stored accounts.
func (s *AccountStore) Count(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(accountPrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// HasAdmin reports whether any stored account holds the admin role.
func (s *AccountStore) HasAdmin(ctx context.Context) (bool, error) {
	accounts, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range accounts {
		if a.IsAdmin() {
			return true, nil
		}
	}
	return false, nil
}
