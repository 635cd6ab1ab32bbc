package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type stateCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// StateRepository persists pending commands and redial records in MongoDB.
type StateRepository struct {
	collection stateCollection
}

// NewStateRepository constructs a StateRepository.
func NewStateRepository(collection stateCollection) *StateRepository {
	return &StateRepository{collection: collection}
}

// Get fetches the record for key. A missing record yields nil without error.
func (r *StateRepository) Get(ctx context.Context, key StateKey) (*PendingCommand, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("state repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	result := r.collection.FindOne(ctx, stateFilter(key))
	if result == nil {
		return nil, errors.New("find state returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find state %s: %w", key, err)
	}

	var record PendingCommand
	if err := result.Decode(&record); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", key, err)
	}

	return &record, nil
}

// Put writes the record, replacing any previous record with the same key.
func (r *StateRepository) Put(ctx context.Context, record PendingCommand) error {
	if r == nil || r.collection == nil {
		return errors.New("state repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if record.Purpose == "" {
		return errors.New("purpose is required")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	key := record.Key()
	if _, err := r.collection.ReplaceOne(ctx, stateFilter(key), record, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}

	return nil
}

// Delete removes the record for key. Deleting a missing record is not an error.
func (r *StateRepository) Delete(ctx context.Context, key StateKey) error {
	if r == nil || r.collection == nil {
		return errors.New("state repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	if _, err := r.collection.DeleteOne(ctx, stateFilter(key)); err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}

	return nil
}

func stateFilter(key StateKey) bson.M {
	return bson.M{
		"chat_id": key.ChatID,
		"user_id": key.UserID,
		"purpose": key.Purpose,
	}
}

type cacheCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// ReplyCacheRepository persists the content of sent replies in MongoDB.
type ReplyCacheRepository struct {
	collection cacheCollection
}

// NewReplyCacheRepository constructs a ReplyCacheRepository.
func NewReplyCacheRepository(collection cacheCollection) *ReplyCacheRepository {
	return &ReplyCacheRepository{collection: collection}
}

// Record writes the outgoing and incoming records of a sent reply in one
// ordered bulk write. The outgoing record goes first.
func (r *ReplyCacheRepository) Record(ctx context.Context, reply CachedReply) error {
	if r == nil || r.collection == nil {
		return errors.New("reply cache repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if reply.Outgoing.MessageID == 0 {
		return errors.New("outgoing message_id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	outgoing := reply.Outgoing
	outgoing.Direction = DirectionOutgoing
	if outgoing.CachedAt.IsZero() {
		outgoing.CachedAt = now
	}
	incoming := reply.Incoming
	incoming.Direction = DirectionIncoming
	if incoming.CachedAt.IsZero() {
		incoming.CachedAt = now
	}

	writes := []mongo.WriteModel{
		mongo.NewReplaceOneModel().
			SetFilter(messageFilter(outgoing.ChatID, outgoing.MessageID)).
			SetReplacement(outgoing).
			SetUpsert(true),
		mongo.NewReplaceOneModel().
			SetFilter(messageFilter(incoming.ChatID, incoming.MessageID)).
			SetReplacement(incoming).
			SetUpsert(true),
	}

	if _, err := r.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("cache reply: %w", err)
	}

	return nil
}

// Outgoing fetches the cached content of a message the bot sent. A missing
// record yields nil without error.
func (r *ReplyCacheRepository) Outgoing(ctx context.Context, chatID int64, messageID int) (*OutgoingReply, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("reply cache repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	filter := messageFilter(chatID, messageID)
	filter["direction"] = DirectionOutgoing

	result := r.collection.FindOne(ctx, filter)
	if result == nil {
		return nil, errors.New("find cached reply returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find cached reply: %w", err)
	}

	var reply OutgoingReply
	if err := result.Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode cached reply: %w", err)
	}

	return &reply, nil
}

func messageFilter(chatID int64, messageID int) bson.M {
	return bson.M{
		"chat_id":    chatID,
		"message_id": messageID,
	}
}
