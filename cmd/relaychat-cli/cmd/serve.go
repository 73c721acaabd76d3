package cmd

import (
	"context"

	"github.com/nfrund/relaychat/internal/app"
	"github.com/nfrund/relaychat/internal/config"
	"github.com/nfrund/relaychat/internal/logging"
	"github.com/nfrund/relaychat/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.New()

		ctx, stop := server.SignalContext(context.Background())
		defer stop()
		return app.Run(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
