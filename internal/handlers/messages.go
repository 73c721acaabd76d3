package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/relaychat/internal/domain"
	"github.com/nfrund/relaychat/internal/middleware"
	"github.com/samber/lo"
)

// MessageHandler serves message history.
type MessageHandler struct {
	messages domain.MessageRepository
	accounts domain.AccountRepository
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messages domain.MessageRepository, accounts domain.AccountRepository) *MessageHandler {
	return &MessageHandler{messages: messages, accounts: accounts}
}

// List returns all messages oldest first with their senders (GET /api/messages).
func (h *MessageHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)

	messages, err := h.messages.List(ctx)
	if err != nil {
		logger.Error("Failed to list messages", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not load messages")
	}
	accounts, err := h.accounts.List(ctx)
	if err != nil {
		logger.Error("Failed to list accounts for senders", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not load messages")
	}

	byID := lo.KeyBy(accounts, func(a *domain.Account) string { return a.ID })
	return c.JSON(http.StatusOK, lo.Map(messages, func(m *domain.Message, _ int) MessageResponse {
		return NewMessageResponse(m, byID)
	}))
}
