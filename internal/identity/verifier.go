package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nfrund/relaychat/internal/domain"
)

// AuthReason classifies why a credential was refused.
type AuthReason string

const (
	// ReasonInvalidToken covers bad signatures, wrong algorithms and expired tokens.
	ReasonInvalidToken AuthReason = "invalid_token"
	// ReasonAccountUnavailable covers unknown and deactivated accounts.
	ReasonAccountUnavailable AuthReason = "account_unavailable"
)

// AuthFailure is returned by the Verifier when a credential must not be admitted.
type AuthFailure struct {
	Reason AuthReason
	Err    error
}

func (f *AuthFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("authentication failed (%s): %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("authentication failed (%s)", f.Reason)
}

func (f *AuthFailure) Unwrap() error { return f.Err }

// IsAuthFailure reports whether err is an AuthFailure and returns it.
func IsAuthFailure(err error) (*AuthFailure, bool) {
	var f *AuthFailure
	ok := errors.As(err, &f)
	return f, ok
}

// Principal is the verified identity behind a credential.
type Principal struct {
	AccountID string
	Username  string
	Role      domain.Role
}

// IsAdmin reports whether the principal may moderate.
func (p Principal) IsAdmin() bool { return p.Role == domain.RoleAdmin }

// Verifier resolves bearer tokens to active accounts. It is shared by the
// HTTP middleware and the realtime gateway.
type Verifier struct {
	tokens   *Tokens
	accounts domain.AccountRepository
	logger   *slog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(tokens *Tokens, accounts domain.AccountRepository) *Verifier {
	return &Verifier{
		tokens:   tokens,
		accounts: accounts,
		logger:   slog.Default().With("component", "identity"),
	}
}

// VerifyConnection checks the token and resolves it against the account store.
// It never mutates state. Failures are *AuthFailure except for store errors,
// which are returned wrapped so callers can tell an outage from a bad credential.
func (v *Verifier) VerifyConnection(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, &AuthFailure{Reason: ReasonInvalidToken, Err: errors.New("missing token")}
	}

	claims, err := v.tokens.Parse(token)
	if err != nil {
		return Principal{}, &AuthFailure{Reason: ReasonInvalidToken, Err: err}
	}

	account, err := v.accounts.FindByID(ctx, claims.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return Principal{}, &AuthFailure{Reason: ReasonAccountUnavailable, Err: err}
	}
	if err != nil {
		v.logger.ErrorContext(ctx, "Account lookup failed during verification", "account_id", claims.ID, "error", err)
		return Principal{}, fmt.Errorf("resolve account %s: %w", claims.ID, err)
	}
	if !account.Active {
		return Principal{}, &AuthFailure{Reason: ReasonAccountUnavailable, Err: domain.ErrAccountInactive}
	}

	return Principal{
		AccountID: account.ID,
		Username:  account.Username,
		Role:      account.Role,
	}, nil
}
