package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bus_eta_bot/internal/config"
	"bus_eta_bot/internal/datamall"
	"bus_eta_bot/internal/dispatch"
	"bus_eta_bot/internal/domain"
	"bus_eta_bot/internal/feature/callback"
	"bus_eta_bot/internal/feature/command"
	"bus_eta_bot/internal/feature/history"
	"bus_eta_bot/internal/server"
	"bus_eta_bot/internal/store"
	"bus_eta_bot/internal/store/memstore"
)

const (
	mongoConnectTimeout    = 10 * time.Second
	mongoIndexTimeout      = 5 * time.Second
	mongoDisconnectTimeout = 5 * time.Second
	memoryCapacity         = 10_000
)

type replyCache interface {
	dispatch.ReplyCache
	callback.ReplyCache
}

// backend holds the persistence collaborators for the configured store.
type backend struct {
	state   command.StateStore
	cache   replyCache
	stats   server.StatsProvider
	mongo   server.MongoChecker
	history dispatch.HistoryRecorder
	close   func(ctx context.Context) error
}

func openBackend(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*backend, error) {
	if !cfg.UsesMongo() {
		return openMemoryBackend(cfg, logger)
	}

	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("mongo connection: %w", err)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(ctx, mongoIndexTimeout)
	err = mongoManager.EnsureBaseIndexes(indexCtx)
	cancelIndexes()
	if err != nil {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		_ = mongoManager.Close(closeCtx)
		cancelClose()
		return nil, fmt.Errorf("mongo index setup: %w", err)
	}

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	var recorder dispatch.HistoryRecorder = history.Nop{}
	if cfg.HistoryEnabled {
		recorder = history.NewRecorder(mongoManager.History(), logger)
	}

	return &backend{
		state:   domain.NewStateRepository(mongoManager.State()),
		cache:   domain.NewReplyCacheRepository(mongoManager.MessageCache()),
		stats:   store.NewStatsProvider(mongoManager.State(), mongoManager.MessageCache()),
		mongo:   mongoManager,
		history: recorder,
		close:   mongoManager.Close,
	}, nil
}

func openMemoryBackend(cfg config.Config, logger *logrus.Entry) (*backend, error) {
	mem, err := memstore.New(memoryCapacity, 0)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}

	if cfg.HistoryEnabled {
		logger.WithField("event", "history_unavailable").Warn("history requires the mongo backend, disabling")
	}

	logger.WithField("event", "memory_store").Info("using in-memory store")

	return &backend{
		state:   mem,
		cache:   mem,
		stats:   mem,
		history: history.Nop{},
		close: func(context.Context) error {
			mem.Close()
			return nil
		},
	}, nil
}

func newDispatcher(cfg config.Config, b *backend, transport dispatch.Transport, logger *logrus.Entry) (*dispatch.Dispatcher, error) {
	fetcher, err := datamall.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("datamall client setup: %w", err)
	}

	executor := command.NewExecutor(b.state, fetcher, logger)
	resolver := callback.NewResolver(b.cache, fetcher, logger)

	return dispatch.New(executor, resolver, transport, b.cache, logger, dispatch.WithHistory(b.history)), nil
}
