package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/atlet99/requisition-sync/internal/server"
	"github.com/atlet99/requisition-sync/internal/version"
)

const shutdownTimeout = 30 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, plus the bus consumer when EVENT_BUS_NAME is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *RootOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig(opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	log.Info("Starting requisition sync", "version", version.Get().String())

	rt, err := NewRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}

	if err := rt.Providers.Init(ctx); err != nil {
		log.Warn("Provider adapters not ready, retrying on first use", "error", err)
	}

	go rt.PolicyWatcher().Run(ctx)

	srv := server.New(cfg, rt.ServerDependencies(), log)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err = <-errChan:
		log.Error("Server error", "error", err)
	case <-ctx.Done():
		log.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sErr := srv.Shutdown(shutdownCtx); sErr != nil {
		log.Error("Server forced to shutdown", "error", sErr)
	}

	log.Info("Server exited")
	return err
}
