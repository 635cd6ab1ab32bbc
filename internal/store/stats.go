package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bus_eta_bot/internal/domain"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// Stats is a point-in-time snapshot of persisted conversation state.
type Stats struct {
	PendingCommands int64 `json:"pending_commands"`
	RedialRecords   int64 `json:"redial_records"`
	CachedReplies   int64 `json:"cached_replies"`
}

// StatsProvider exposes collection counts for basic diagnostics without
// leaking MongoDB internals to callers.
type StatsProvider struct {
	state countCollection
	cache countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the provided state and
// message cache collections.
func NewStatsProvider(state, cache countCollection) *StatsProvider {
	return &StatsProvider{
		state: state,
		cache: cache,
	}
}

// Snapshot counts pending commands, redial records and cached outgoing replies.
func (p *StatsProvider) Snapshot(ctx context.Context) (Stats, error) {
	if ctx == nil {
		return Stats{}, errors.New("context is required")
	}
	if p == nil || p.state == nil || p.cache == nil {
		return Stats{}, errors.New("stats provider is not initialized")
	}

	pending, err := p.state.CountDocuments(ctx, bson.M{"purpose": domain.PurposeUnfinishedCommand})
	if err != nil {
		return Stats{}, fmt.Errorf("count pending commands: %w", err)
	}

	redial, err := p.state.CountDocuments(ctx, bson.M{"purpose": domain.PurposeRedial})
	if err != nil {
		return Stats{}, fmt.Errorf("count redial records: %w", err)
	}

	cached, err := p.cache.CountDocuments(ctx, bson.M{"direction": domain.DirectionOutgoing})
	if err != nil {
		return Stats{}, fmt.Errorf("count cached replies: %w", err)
	}

	return Stats{
		PendingCommands: pending,
		RedialRecords:   redial,
		CachedReplies:   cached,
	}, nil
}
