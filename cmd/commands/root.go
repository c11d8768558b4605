package commands

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "authsvc",
		Short:        "Authentication and session service for the service shop backend",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newCreateUserCommand(),
	)

	return rootCmd
}
