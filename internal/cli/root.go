// Package cli implements the reqsync command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/atlet99/requisition-sync/internal/version"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	// LogLevel overrides LOG_LEVEL when set
	LogLevel string
}

// NewRootCommand creates the root command for the reqsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           version.Name,
		Short:         "Requisition sync between ClearCompany and Paylocity",
		Long:          "Keeps job requisitions in ClearCompany and headcount plans in Paylocity in step, driven by API calls, provider webhooks and event bus notifications.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides LOG_LEVEL")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewConsumeCommand(opts))
	cmd.AddCommand(NewEventCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
