package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Start runs the realtime hub, the audit subscriber and the HTTP server
// until ctx is canceled, then shuts the HTTP server down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.deps.Hub.Run(runCtx)

	if s.deps.Audit != nil && s.deps.Bus != nil {
		if err := s.deps.Audit.Start(runCtx, s.deps.Bus); err != nil {
			return fmt.Errorf("start audit log: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	// Canceling runCtx stops the hub, which closes every websocket.
	cancel()
	if err := s.E.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
