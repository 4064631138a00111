package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewConsumeCommand creates the consume command.
func NewConsumeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Run the event bus consumer without the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsume(cmd, opts)
		},
	}
}

func runConsume(cmd *cobra.Command, opts *RootOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig(opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if cfg.EventBusName == "" {
		return errors.New("EVENT_BUS_NAME is required to consume events")
	}

	rt, err := NewRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.Close(closeCtx)
	}()

	go rt.PolicyWatcher().Run(ctx)

	log.Info("Consuming bus events",
		"stream", cfg.EventBusName,
		"group", cfg.EventConsumerGroup,
		"consumer", cfg.EventConsumerName)
	return rt.Consumer().Run(ctx)
}
