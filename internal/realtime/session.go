package realtime

import (
	"github.com/nfrund/relaychat/internal/domain"
	"github.com/nfrund/relaychat/internal/identity"
)

// Session is the identity bound to one live connection. It is captured at
// handshake and never refreshed, so a role change applies on reconnect.
type Session struct {
	ConnectionID string
	AccountID    string
	Username     string
	Role         domain.Role
}

// NewSession binds a verified principal to a connection id.
func NewSession(connectionID string, p identity.Principal) Session {
	return Session{
		ConnectionID: connectionID,
		AccountID:    p.AccountID,
		Username:     p.Username,
		Role:         p.Role,
	}
}

// IsAdmin reports whether the session may moderate.
func (s Session) IsAdmin() bool { return s.Role == domain.RoleAdmin }

// Sender returns the author block used in message broadcasts.
func (s Session) Sender() Sender {
	return Sender{ID: s.AccountID, Username: s.Username, Role: s.Role}
}

// State is the lifecycle position of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
