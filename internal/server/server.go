package server

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/relaychat/internal/audit"
	"github.com/nfrund/relaychat/internal/config"
	"github.com/nfrund/relaychat/internal/domain"
	"github.com/nfrund/relaychat/internal/handlers"
	"github.com/nfrund/relaychat/internal/identity"
	appmw "github.com/nfrund/relaychat/internal/middleware"
	"github.com/nfrund/relaychat/internal/pubsub"
	"github.com/nfrund/relaychat/internal/realtime"
	"github.com/nfrund/relaychat/internal/relay"
)

// Deps holds everything the HTTP server routes to.
type Deps struct {
	Config   *config.Config
	Accounts domain.AccountRepository
	Messages domain.MessageRepository
	// Ping checks the store for the health endpoint. May be nil.
	Ping     func(ctx context.Context) error
	Bus      pubsub.Bus
	Identity *identity.Service
	Verifier *identity.Verifier
	Hub      *realtime.Hub
	Gateway  *realtime.Gateway
	Relay    *relay.Relay
	Audit    *audit.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E    *echo.Echo
	Cfg  *config.Config
	deps Deps

	authHandler    *handlers.AuthHandler
	messageHandler *handlers.MessageHandler
	adminHandler   *handlers.AdminHandler
	healthHandler  *handlers.HealthHandler
}

// New creates a Server with its middleware stack and routes.
func New(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler

	e.Use(middleware.RequestID())
	e.Use(appmw.Logger)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger := appmw.FromContext(c.Request().Context())
			level := slog.LevelInfo
			if v.Status >= 500 {
				level = slog.LevelError
			}
			logger.Log(c.Request().Context(), level, "HTTP request",
				"method", v.Method, "path", v.URIPath, "status", v.Status,
				"latency_ms", v.Latency.Milliseconds(), "error", v.Error)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	var connections func() int
	if deps.Gateway != nil {
		connections = deps.Gateway.Registry().Len
	}

	s := &Server{
		E:              e,
		Cfg:            deps.Config,
		deps:           deps,
		authHandler:    handlers.NewAuthHandler(deps.Identity),
		messageHandler: handlers.NewMessageHandler(deps.Messages, deps.Accounts),
		adminHandler:   handlers.NewAdminHandler(deps.Accounts, deps.Relay, deps.Bus),
		healthHandler:  handlers.NewHealthHandler(deps.Ping, connections),
	}
	s.RegisterRoutes()
	return s
}
