package cmd

import (
	"os"

	"github.com/nfrund/relaychat/internal/app"
	"github.com/nfrund/relaychat/internal/config"
	"github.com/nfrund/relaychat/internal/logging"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relaychat-cli",
	Short: "relaychat server and operations tool",
	Long: `relaychat-cli runs the chat server and performs account operations
against the configured store.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadContainer reads configuration and builds the service container.
func loadContainer() (*config.Config, *do.RootScope, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logging.New()
	return cfg, app.New(cfg), nil
}
