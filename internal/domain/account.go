package domain

import (
	"context"
	"time"
)

// Role is the authorization level of an account.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

// Account is a registered chat participant.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// AccountPatch carries the mutable fields of an account. Nil fields are left untouched.
type AccountPatch struct {
	Role   *Role
	Active *bool
}

// Empty reports whether the patch would change nothing.
func (p AccountPatch) Empty() bool {
	return p.Role == nil && p.Active == nil
}

// AccountRepository defines the contract for account storage.
// Lookups return ErrNotFound when no account matches.
type AccountRepository interface {
	// Create stores a new account and returns it with its ID and CreatedAt set.
	// A taken username yields ErrAlreadyExists.
	Create(ctx context.Context, account *Account) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
	Update(ctx context.Context, id string, patch AccountPatch) (*Account, error)
	Count(ctx context.Context) (int, error)
	HasAdmin(ctx context.Context) (bool, error)
}
