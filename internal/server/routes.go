package server

import (
	"github.com/nfrund/relaychat/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	rateLimiter := middleware.RateLimiter(1, 10)

	s.E.GET("/health", s.healthHandler.Check)
	s.E.GET("/ws", s.deps.Gateway.Handler())

	auth := s.E.Group("/api/auth")
	auth.POST("/register", s.authHandler.Register, rateLimiter)
	auth.POST("/login", s.authHandler.Login, rateLimiter)

	api := s.E.Group("/api", middleware.Auth(s.deps.Verifier))
	api.GET("/messages", s.messageHandler.List)

	admin := api.Group("/admin", middleware.RequireAdmin)
	admin.GET("/users", s.adminHandler.ListUsers)
	admin.PATCH("/users/:id", s.adminHandler.UpdateUser)
	admin.DELETE("/messages/:id", s.adminHandler.DeleteMessage)
}
