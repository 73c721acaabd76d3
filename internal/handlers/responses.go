package handlers

import (
	"time"

	"github.com/nfrund/relaychat/internal/domain"
	"github.com/samber/lo"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewAccountResponse creates an AccountResponse DTO from a domain.Account.
func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Username:  a.Username,
		Role:      a.Role,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
	}
}

// NewAccountResponses maps a list of accounts.
func NewAccountResponses(accounts []*domain.Account) []AccountResponse {
	return lo.Map(accounts, func(a *domain.Account, _ int) AccountResponse {
		return NewAccountResponse(a)
	})
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string          `json:"token"`
	User  AccountResponse `json:"user"`
}

// SenderResponse identifies the author of a listed message.
type SenderResponse struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// DeletedUsername is shown for messages whose author no longer exists.
const DeletedUsername = "deleted user"

// MessageResponse is a stored message with its resolved sender.
type MessageResponse struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Sender    SenderResponse `json:"sender"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessageResponse resolves the sender of m from accounts. A missing
// account renders as DeletedUsername with the member role.
func NewMessageResponse(m *domain.Message, accounts map[string]*domain.Account) MessageResponse {
	sender := SenderResponse{ID: m.SenderID, Username: DeletedUsername, Role: domain.RoleMember}
	if a, ok := accounts[m.SenderID]; ok {
		sender.Username = a.Username
		sender.Role = a.Role
	}
	return MessageResponse{
		ID:        m.ID,
		Content:   m.Content,
		Sender:    sender,
		CreatedAt: m.CreatedAt,
	}
}

// DeleteMessageResponse reports the outcome of a moderation delete.
type DeleteMessageResponse struct {
	ID      string `json:"id"`
	Existed bool   `json:"existed"`
}
