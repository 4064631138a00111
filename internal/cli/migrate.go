package cli

import (
	"github.com/spf13/cobra"

	"github.com/atlet99/requisition-sync/internal/store"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply requisition store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := store.Open(ctx, store.Options{Driver: cfg.StoreDriver, DSN: cfg.StoreDSN}, log)
			if err != nil {
				return err
			}
			defer func() {
				if cErr := st.Close(); cErr != nil {
					log.Error("Failed to close store", "error", cErr)
				}
			}()

			if err := store.Migrate(ctx, st); err != nil {
				return err
			}
			log.Info("Store migrations applied", "driver", cfg.StoreDriver)
			return nil
		},
	}
}
