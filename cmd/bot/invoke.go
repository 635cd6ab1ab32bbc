package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bus_eta_bot/internal/config"
	"bus_eta_bot/internal/dispatch"
	"bus_eta_bot/internal/logging"
)

func newInvokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invoke <update.json>...",
		Short: "Run updates through the pipeline with an in-memory store, printing replies instead of sending them",
		Long: "Each file holds one raw Telegram update; \"-\" reads stdin. Files run in order against one " +
			"in-memory store, so a prompt and its continuation can be replayed together. Bus arrivals are " +
			"fetched from Datamall.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), args)
		},
	}
}

func runInvoke(ctx context.Context, stdin io.Reader, stdout io.Writer, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Local runs never touch the shared database.
	if requested := os.Getenv(config.KeyStoreBackend); requested != "" && requested != config.BackendMemory {
		logging.Warn("invoke always uses the memory store", logging.Fields{
			"event":     "store_backend_override",
			"requested": requested,
		})
	}
	if err := os.Setenv(config.KeyStoreBackend, config.BackendMemory); err != nil {
		return fmt.Errorf("select memory backend: %w", err)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = b.close(context.Background()) }()

	dispatcher, err := newDispatcher(cfg, b, dispatch.NewDryRunTransport(stdout), logger)
	if err != nil {
		return err
	}

	var failures []error
	for _, path := range paths {
		raw, err := readUpdate(stdin, path)
		if err != nil {
			return err
		}

		result, err := dispatcher.Dispatch(ctx, raw)
		if err != nil {
			logger.WithFields(logging.Fields{
				"event":         "invoke_failed",
				"file":          path,
				"invocation_id": result.InvocationID,
			}).WithError(err).Error("update handling failed")
			failures = append(failures, fmt.Errorf("%s: %w", path, err))
			continue
		}

		if result.Instruction == nil {
			fmt.Fprintf(stdout, "%s: no reply\n", path)
		}
	}

	return errors.Join(failures...)
}

func readUpdate(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read update from stdin: %w", err)
		}
		return raw, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read update %s: %w", path, err)
	}
	return raw, nil
}
