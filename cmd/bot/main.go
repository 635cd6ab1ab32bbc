package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bus_eta_bot/internal/config"
	"bus_eta_bot/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bot: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bot",
		Short:         "Telegram bot that answers bus arrival queries",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCheckConfigCmd())
	cmd.AddCommand(newInvokeCmd())

	return cmd
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and print the redacted configuration then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			logging.Info("configuration check", logging.Fields{"event": "config_only"})
			fmt.Fprintln(cmd.OutOrStdout(), "configuration check: ok")
			fmt.Fprintln(cmd.OutOrStdout(), config.FormatRedacted(cfg))
			return nil
		},
	}
}

// loadConfig loads configuration and sets up logging.
func loadConfig() (config.Config, *logrus.Entry, error) {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		return config.Config{}, nil, fmt.Errorf("configuration error: %w", err)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		return config.Config{}, nil, fmt.Errorf("logger setup error: %w", err)
	}

	return cfg, logger, nil
}
