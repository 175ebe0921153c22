package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmgilman/oceanctl/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display the version, commit, and build date of oceanctl.`,
	Args:  cobra.NoArgs,
	// Version needs neither configuration nor service clients.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "oceanctl %s\n", version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
