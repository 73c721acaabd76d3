package cmd

import (
	"errors"
	"fmt"

	"github.com/nfrund/relaychat/internal/app"
	"github.com/nfrund/relaychat/internal/identity"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create the first admin account if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		if username == "" || password == "" {
			return errors.New("--username and --password are required")
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
		account, created, err := svc.EnsureAdmin(cmd.Context(), username, password)
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		if !created {
			fmt.Fprintln(cmd.OutOrStdout(), "An admin account already exists; nothing to do.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Admin %q created with id %s\n", account.Username, account.ID)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().String("username", "", "admin username")
	createAdminCmd.Flags().String("password", "", "admin password")
	rootCmd.AddCommand(createAdminCmd)
}
