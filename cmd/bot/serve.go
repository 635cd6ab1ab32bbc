package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bus_eta_bot/internal/logging"
	"bus_eta_bot/internal/server"
	"bus_eta_bot/internal/telegram"
)

const httpShutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the Telegram webhook with health and stats endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	logger.WithFields(logging.Fields{
		"event":         "startup",
		"store_backend": cfg.StoreBackend,
		"mongo_db":      cfg.MongoDB,
		"webhook_path":  cfg.WebhookPath,
	}).Info("configuration loaded")

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("store setup error")
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		defer cancel()
		if err := b.close(closeCtx); err != nil {
			logger.WithError(err).Error("store close error")
			return
		}
		logger.WithField("event", "store_closed").Info("store closed")
	}()

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		return err
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	dispatcher, err := newDispatcher(cfg, b, tgClient, logger)
	if err != nil {
		logger.WithError(err).Error("dispatcher setup error")
		return err
	}

	httpServer, err := server.NewServer(cfg.HTTPPort, cfg.WebhookPath, server.Deps{
		Dispatcher:   dispatcher,
		MongoChecker: b.mongo,
		Stats:        b.stats,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("http server setup error")
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping http server")
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("http server error")
			return err
		}
		logger.WithField("event", "http_stopped_early").Warn("http server stopped before shutdown signal")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown error")
	}

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
	return nil
}
