package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/relaychat/internal/domain"
	"github.com/nfrund/relaychat/internal/middleware"
	"github.com/nfrund/relaychat/internal/pubsub"
	"github.com/nfrund/relaychat/internal/realtime"
)

// MessageModerator deletes messages and announces the retraction to live connections.
type MessageModerator interface {
	Delete(ctx context.Context, s realtime.Session, messageID string) (bool, error)
}

// AdminHandler serves the moderation API. Every route requires an admin principal.
type AdminHandler struct {
	accounts  domain.AccountRepository
	moderator MessageModerator
	publisher pubsub.Publisher
}

// NewAdminHandler creates a new AdminHandler. publisher may be nil.
func NewAdminHandler(accounts domain.AccountRepository, moderator MessageModerator, publisher pubsub.Publisher) *AdminHandler {
	return &AdminHandler{accounts: accounts, moderator: moderator, publisher: publisher}
}

// ListUsers returns every account (GET /api/admin/users).
func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()

	accounts, err := h.accounts.List(ctx)
	if err != nil {
		middleware.FromContext(ctx).Error("Failed to list accounts", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not list users")
	}
	return c.JSON(http.StatusOK, NewAccountResponses(accounts))
}

// UpdateUser changes an account's role or active flag (PATCH /api/admin/users/:id).
// Admins may not demote or deactivate themselves.
func (h *AdminHandler) UpdateUser(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)

	actor, ok := middleware.PrincipalFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Access denied")
	}

	id := c.Param("id")
	var req UpdateAccountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	var patch domain.AccountPatch
	if req.Role != nil {
		role := domain.Role(*req.Role)
		patch.Role = &role
	}
	patch.Active = req.Active
	if patch.Empty() {
		return echo.NewHTTPError(http.StatusBadRequest, "Nothing to update")
	}

	if id == actor.AccountID && ((patch.Role != nil && *patch.Role != domain.RoleAdmin) || (patch.Active != nil && !*patch.Active)) {
		return echo.NewHTTPError(http.StatusConflict, domain.ErrSelfModification.Error())
	}

	account, err := h.accounts.Update(ctx, id, patch)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	case errors.Is(err, domain.ErrInvalidRole):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		logger.Error("Failed to update account", "account_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not update user")
	}

	logger.Info("Account updated", "account_id", id, "role", account.Role, "active", account.Active, "by", actor.AccountID)
	if h.publisher != nil {
		event := pubsub.AccountUpdated{ID: account.ID, Role: string(account.Role), Active: account.Active, By: actor.AccountID}
		if err := pubsub.TopicAccountUpdated.Publish(ctx, h.publisher, actor.AccountID, event); err != nil {
			logger.Warn("Failed to publish account update", "error", err)
		}
	}
	return c.JSON(http.StatusOK, NewAccountResponse(account))
}

// DeleteMessage removes a message (DELETE /api/admin/messages/:id). Live
// connections receive the same retraction as for a realtime delete.
func (h *AdminHandler) DeleteMessage(c echo.Context) error {
	ctx := c.Request().Context()

	actor, ok := middleware.PrincipalFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Access denied")
	}

	id := c.Param("id")
	session := realtime.Session{AccountID: actor.AccountID, Username: actor.Username, Role: actor.Role}
	existed, err := h.moderator.Delete(ctx, session, id)
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "Admin access required")
	case err != nil:
		middleware.FromContext(ctx).Error("Failed to delete message", "message_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not delete message")
	}
	return c.JSON(http.StatusOK, DeleteMessageResponse{ID: id, Existed: existed})
}
