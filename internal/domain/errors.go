package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common business logic failures.
var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidCredentials = errors.New("invalid credentials provided")
	ErrAccountInactive    = errors.New("account is deactivated")
	ErrForbidden          = errors.New("operation not permitted for this role")
	ErrInvalidRole        = errors.New("invalid role")

	// ErrSelfModification is returned when an admin tries to demote or
	// deactivate their own account.
	ErrSelfModification = errors.New("admins cannot demote or deactivate themselves")
)
