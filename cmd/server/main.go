package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/nfrund/relaychat/internal/app"
	"github.com/nfrund/relaychat/internal/config"
	"github.com/nfrund/relaychat/internal/logging"
	"github.com/nfrund/relaychat/internal/server"
)

func main() {
	cfg, err := config.Load()
	logging.New()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := server.SignalContext(context.Background())
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}
