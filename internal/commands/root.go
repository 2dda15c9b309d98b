package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(version string) *cobra.Command {
	var opts globalOptions

	rootCmd := &cobra.Command{
		Use:     "banksync",
		Short:   "Bank feed synchronization into statement chains",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.repo, "repo", ".", "repository directory")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides banksync.yaml")

	rootCmd.AddCommand(
		newInitCommand(),
		newSyncCommand(&opts),
		newStatementsCommand(&opts),
		newValidateCommand(&opts),
		newPartnerCommand(&opts),
	)

	return rootCmd
}

type globalOptions struct {
	repo     string
	logLevel string
}
