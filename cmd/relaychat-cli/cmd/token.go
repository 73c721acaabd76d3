package cmd

import (
	"errors"
	"fmt"

	"github.com/nfrund/relaychat/internal/app"
	"github.com/nfrund/relaychat/internal/identity"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token for an existing account",
	Long: `Issue an access token for an existing, active account without its password.
Useful for connecting test clients to the websocket endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		if username == "" {
			return errors.New("--username is required")
		}

		_, injector, err := loadContainer()
		if err != nil {
			return err
		}
		defer app.Shutdown(injector)

		svc, err := do.Invoke[*identity.Service](injector)
		if err != nil {
			return err
		}
		token, err := svc.IssueFor(cmd.Context(), username)
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", username, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("username", "", "account username")
	rootCmd.AddCommand(tokenCmd)
}
