// Package store encapsulates MongoDB client management and collection helpers.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"bus_eta_bot/internal/config"
)

// CollectionHistory holds the optional inbound message log.
const CollectionHistory = "message_history"

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client           mongoClient
	db               *mongo.Database
	stateName        string
	messageCacheName string
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client:           client,
		db:               client.Database(cfg.MongoDB),
		stateName:        firstNonEmpty(cfg.StateCollection, config.DefaultStateCollection),
		messageCacheName: firstNonEmpty(cfg.MessageCacheCollection, config.DefaultMessageCacheCollection),
	}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Collection returns a collection handle for the given name.
func (m *Manager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// State returns the conversation state collection handle.
func (m *Manager) State() *mongo.Collection {
	return m.Collection(m.stateName)
}

// MessageCache returns the reply cache collection handle.
func (m *Manager) MessageCache() *mongo.Collection {
	return m.Collection(m.messageCacheName)
}

// History returns the message history collection handle.
func (m *Manager) History() *mongo.Collection {
	return m.Collection(CollectionHistory)
}

// Ping checks connectivity against the primary.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	return nil
}

// EnsureBaseIndexes creates the lookup indexes for the state, message cache and
// history collections. Collections are created implicitly if they do not
// already exist.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	stateIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "user_id", Value: 1},
				{Key: "purpose", Value: 1},
			},
			Options: options.Index().
				SetName("state_key_unique").
				SetUnique(true),
		},
	}

	if _, err := createIndexes(ctx, m.State(), stateIndexes); err != nil {
		return fmt.Errorf("create state indexes: %w", err)
	}

	cacheIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "message_id", Value: 1},
			},
			Options: options.Index().
				SetName("message_key_unique").
				SetUnique(true),
		},
	}

	if _, err := createIndexes(ctx, m.MessageCache(), cacheIndexes); err != nil {
		return fmt.Errorf("create message cache indexes: %w", err)
	}

	historyIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "received_at", Value: -1},
			},
			Options: options.Index().SetName("chat_received_at"),
		},
	}

	if _, err := createIndexes(ctx, m.History(), historyIndexes); err != nil {
		return fmt.Errorf("create history indexes: %w", err)
	}

	return nil
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if val != "" {
			return val
		}
	}
	return ""
}
