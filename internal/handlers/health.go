package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports liveness and store reachability.
type HealthHandler struct {
	ping        func(ctx context.Context) error
	connections func() int
}

// NewHealthHandler creates a HealthHandler. ping checks the store; connections
// reports the live connection count. Either may be nil.
func NewHealthHandler(ping func(ctx context.Context) error, connections func() int) *HealthHandler {
	return &HealthHandler{ping: ping, connections: connections}
}

// Check serves GET /health.
func (h *HealthHandler) Check(c echo.Context) error {
	body := map[string]any{"status": "ok", "store": "ok"}
	if h.connections != nil {
		body["connections"] = h.connections()
	}

	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			body["status"] = "degraded"
			body["store"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
	}
	return c.JSON(http.StatusOK, body)
}
