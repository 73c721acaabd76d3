package cmd

import (
	"fmt"

	"github.com/nfrund/relaychat/internal/app"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of relaychat",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "relaychat %s\n", app.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
