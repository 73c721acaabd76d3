package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nfrund/relaychat/internal/domain"
)

// Service implements registration, login and admin bootstrap on top of the
// account store and token codec.
type Service struct {
	accounts domain.AccountRepository
	tokens   *Tokens
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(accounts domain.AccountRepository, tokens *Tokens) *Service {
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		logger:   slog.Default().With("component", "identity"),
	}
}

// Register creates a member account, or an admin account when the store is
// empty, and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, username, password string) (*domain.Account, string, error) {
	count, err := s.accounts.Count(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("count accounts: %w", err)
	}
	role := domain.RoleMember
	if count == 0 {
		role = domain.RoleAdmin
	}

	account, err := s.create(ctx, username, password, role)
	if err != nil {
		return nil, "", err
	}
	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, "", err
	}
	s.logger.InfoContext(ctx, "Account registered", "account_id", account.ID, "role", account.Role)
	return account, token, nil
}

// Login checks credentials and returns the account with a fresh token.
// Deactivated accounts get ErrAccountInactive even with a correct password.
func (s *Service) Login(ctx context.Context, username, password string) (*domain.Account, string, error) {
	account, err := s.accounts.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, "", domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("find account: %w", err)
	}

	ok, err := ComparePassword(password, account.PasswordHash)
	if err != nil {
		s.logger.ErrorContext(ctx, "Stored password hash is unreadable", "account_id", account.ID, "error", err)
		return nil, "", domain.ErrInvalidCredentials
	}
	if !ok {
		return nil, "", domain.ErrInvalidCredentials
	}
	if !account.Active {
		return nil, "", domain.ErrAccountInactive
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, "", err
	}
	return account, token, nil
}

// EnsureAdmin creates an admin account unless one already exists.
// The boolean reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (*domain.Account, bool, error) {
	exists, err := s.accounts.HasAdmin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("check for admin: %w", err)
	}
	if exists {
		return nil, false, nil
	}
	account, err := s.create(ctx, username, password, domain.RoleAdmin)
	if err != nil {
		return nil, false, err
	}
	s.logger.InfoContext(ctx, "Admin account created", "account_id", account.ID)
	return account, true, nil
}

// IssueFor returns a token for an existing, active account.
func (s *Service) IssueFor(ctx context.Context, username string) (string, error) {
	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if !account.Active {
		return "", domain.ErrAccountInactive
	}
	return s.tokens.Issue(account)
}

func (s *Service) create(ctx context.Context, username, password string, role domain.Role) (*domain.Account, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.accounts.Create(ctx, &domain.Account{
		Username:     strings.TrimSpace(username),
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	})
}
