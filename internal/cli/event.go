package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/atlet99/requisition-sync/internal/events"
)

// NewEventCommand creates the event command, which handles one bus event the
// way a local invocation of the consumer would.
func NewEventCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "event [file|-]",
		Short: "Process one bus event from a file or stdin and print the Ack",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "-"
			if len(args) == 1 {
				source = args[0]
			}
			return runEvent(cmd, opts, source)
		},
	}
}

func runEvent(cmd *cobra.Command, opts *RootOptions, source string) error {
	data, err := readEventInput(cmd.InOrStdin(), source)
	if err != nil {
		return err
	}

	var event events.BusEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("invalid event payload: %w", err)
	}

	// Logs go to stderr so stdout carries only the Ack
	cfg, log, err := loadConfig(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := NewRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	ack := rt.Dispatcher.HandleBusEvent(ctx, event)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(ack)
}

func readEventInput(stdin io.Reader, source string) ([]byte, error) {
	if source == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read event from stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read event file: %w", err)
	}
	return data, nil
}
