// Package domaintest provides testify mocks for the domain repositories.
package domaintest

import (
	"context"

	"github.com/nfrund/relaychat/internal/domain"
	"github.com/stretchr/testify/mock"
)

var (
	_ domain.AccountRepository = (*AccountRepository)(nil)
	_ domain.MessageRepository = (*MessageRepository)(nil)
)

// AccountRepository is a mock domain.AccountRepository.
type AccountRepository struct {
	mock.Mock
}

func (m *AccountRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	args := m.Called(ctx, account)
	return accountOrNil(args.Get(0)), args.Error(1)
}

func (m *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	args := m.Called(ctx, id)
	return accountOrNil(args.Get(0)), args.Error(1)
}

func (m *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	args := m.Called(ctx, username)
	return accountOrNil(args.Get(0)), args.Error(1)
}

func (m *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*domain.Account)
	return list, args.Error(1)
}

func (m *AccountRepository) Update(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error) {
	args := m.Called(ctx, id, patch)
	return accountOrNil(args.Get(0)), args.Error(1)
}

func (m *AccountRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *AccountRepository) HasAdmin(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// MessageRepository is a mock domain.MessageRepository.
type MessageRepository struct {
	mock.Mock
}

func (m *MessageRepository) Create(ctx context.Context, content, senderID string) (*domain.Message, error) {
	args := m.Called(ctx, content, senderID)
	msg, _ := args.Get(0).(*domain.Message)
	return msg, args.Error(1)
}

func (m *MessageRepository) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	msg, _ := args.Get(0).(*domain.Message)
	return msg, args.Error(1)
}

func (m *MessageRepository) List(ctx context.Context) ([]*domain.Message, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*domain.Message)
	return list, args.Error(1)
}

func accountOrNil(v any) *domain.Account {
	a, _ := v.(*domain.Account)
	return a
}
