package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/relaychat/internal/domain"
	"github.com/nfrund/relaychat/internal/middleware"
)

// CredentialService registers accounts and exchanges credentials for tokens.
type CredentialService interface {
	Register(ctx context.Context, username, password string) (*domain.Account, string, error)
	Login(ctx context.Context, username, password string) (*domain.Account, string, error)
}

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	service CredentialService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service CredentialService) *AuthHandler {
	return &AuthHandler{service: service}
}

// bindAndValidate binds the request body into req and runs the validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format.")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// Register creates an account (POST /api/auth/register). The first account
// on an empty store becomes an admin.
func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)

	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	account, token, err := h.service.Register(ctx, req.Username, req.Password)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "Username is already taken")
	}
	if err != nil {
		logger.Error("Failed to register account", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not create account")
	}

	logger.Info("Account registered", "account_id", account.ID, "role", account.Role)
	return c.JSON(http.StatusCreated, AuthResponse{Token: token, User: NewAccountResponse(account)})
}

// Login exchanges credentials for a token (POST /api/auth/login).
func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)

	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	account, token, err := h.service.Login(ctx, req.Username, req.Password)
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, domain.ErrAccountInactive):
		return echo.NewHTTPError(http.StatusForbidden, "Account is deactivated")
	case err != nil:
		logger.Error("Login failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not sign in")
	}

	return c.JSON(http.StatusOK, AuthResponse{Token: token, User: NewAccountResponse(account)})
}
