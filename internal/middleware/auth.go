package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/relaychat/internal/domain"
	"github.com/nfrund/relaychat/internal/identity"
)

const UserContextKey = "user"

// Verifier resolves a bearer token to an active account.
type Verifier interface {
	VerifyConnection(ctx context.Context, token string) (identity.Principal, error)
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Auth protects API routes. Requests need a bearer token naming an active
// account; the verified principal is stored under UserContextKey.
func Auth(verifier Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Access denied")
			}

			ctx := c.Request().Context()
			principal, err := verifier.VerifyConnection(ctx, token)
			if err != nil {
				failure, ok := identity.IsAuthFailure(err)
				switch {
				case !ok:
					FromContext(ctx).Error("Token verification failed", "error", err)
					return echo.NewHTTPError(http.StatusServiceUnavailable, "Authentication unavailable")
				case errors.Is(failure, domain.ErrAccountInactive):
					return echo.NewHTTPError(http.StatusForbidden, "Account is deactivated")
				default:
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
				}
			}

			c.Set(UserContextKey, principal)
			return next(c)
		}
	}
}

// PrincipalFrom returns the principal stored by Auth.
func PrincipalFrom(c echo.Context) (identity.Principal, bool) {
	p, ok := c.Get(UserContextKey).(identity.Principal)
	return p, ok
}

// RequireAdmin rejects principals without the admin role. It must run after Auth.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Access denied")
		}
		if !p.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, "Admin access required")
		}
		return next(c)
	}
}
