// Package memstore keeps conversation state and the reply cache in process
// memory. Contents are lost on restart.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter"

	"bus_eta_bot/internal/domain"
	"bus_eta_bot/internal/store"
)

type messageKey struct {
	chatID    int64
	messageID int
}

// Store implements the state store and reply cache contracts on top of
// bounded otter caches.
type Store struct {
	state otter.Cache[domain.StateKey, domain.PendingCommand]

	// mu makes the outgoing and incoming halves of a reply visible together.
	mu       sync.RWMutex
	outgoing otter.Cache[messageKey, domain.OutgoingReply]
	incoming otter.Cache[messageKey, domain.IncomingLink]

	now func() time.Time
}

// New builds a Store holding at most capacity entries per cache. Entries
// expire after ttl; a zero ttl keeps them until evicted.
func New(capacity int, ttl time.Duration) (*Store, error) {
	if capacity <= 0 {
		return nil, errors.New("capacity must be greater than 0")
	}

	state, err := buildCache[domain.StateKey, domain.PendingCommand](capacity, ttl)
	if err != nil {
		return nil, fmt.Errorf("build state cache: %w", err)
	}
	outgoing, err := buildCache[messageKey, domain.OutgoingReply](capacity, ttl)
	if err != nil {
		return nil, fmt.Errorf("build outgoing cache: %w", err)
	}
	incoming, err := buildCache[messageKey, domain.IncomingLink](capacity, ttl)
	if err != nil {
		return nil, fmt.Errorf("build incoming cache: %w", err)
	}

	return &Store{
		state:    state,
		outgoing: outgoing,
		incoming: incoming,
		now:      time.Now,
	}, nil
}

func buildCache[K comparable, V any](capacity int, ttl time.Duration) (otter.Cache[K, V], error) {
	builder := otter.MustBuilder[K, V](capacity)
	if ttl > 0 {
		return builder.WithTTL(ttl).Build()
	}
	return builder.Build()
}

// Get returns the record for key, or nil when absent.
func (s *Store) Get(ctx context.Context, key domain.StateKey) (*domain.PendingCommand, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	record, ok := s.state.Get(key)
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Put stores record under its key, replacing any previous record.
func (s *Store) Put(ctx context.Context, record domain.PendingCommand) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if record.Purpose == "" {
		return errors.New("purpose is required")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = s.now().UTC()
	}

	s.state.Set(record.Key(), record)
	return nil
}

// Delete removes the record for key.
func (s *Store) Delete(ctx context.Context, key domain.StateKey) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	s.state.Delete(key)
	return nil
}

// Record stores both halves of a sent reply.
func (s *Store) Record(ctx context.Context, reply domain.CachedReply) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if reply.Outgoing.MessageID == 0 {
		return errors.New("outgoing message_id is required")
	}

	now := s.now().UTC()
	outgoing := reply.Outgoing
	outgoing.Direction = domain.DirectionOutgoing
	outgoing.Options = outgoing.Options.Without()
	if outgoing.CachedAt.IsZero() {
		outgoing.CachedAt = now
	}
	incoming := reply.Incoming
	incoming.Direction = domain.DirectionIncoming
	if incoming.CachedAt.IsZero() {
		incoming.CachedAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.outgoing.Set(messageKey{chatID: outgoing.ChatID, messageID: outgoing.MessageID}, outgoing)
	s.incoming.Set(messageKey{chatID: incoming.ChatID, messageID: incoming.MessageID}, incoming)
	return nil
}

// Outgoing returns the cached content of a sent message, or nil when absent.
func (s *Store) Outgoing(ctx context.Context, chatID int64, messageID int) (*domain.OutgoingReply, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	s.mu.RLock()
	reply, ok := s.outgoing.Get(messageKey{chatID: chatID, messageID: messageID})
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	reply.Options = reply.Options.Without()
	return &reply, nil
}

// Snapshot counts pending commands, redial records and cached outgoing
// replies.
func (s *Store) Snapshot(ctx context.Context) (store.Stats, error) {
	if ctx == nil {
		return store.Stats{}, errors.New("context is required")
	}

	var stats store.Stats
	s.state.Range(func(_ domain.StateKey, record domain.PendingCommand) bool {
		switch record.Purpose {
		case domain.PurposeUnfinishedCommand:
			stats.PendingCommands++
		case domain.PurposeRedial:
			stats.RedialRecords++
		}
		return true
	})
	s.outgoing.Range(func(messageKey, domain.OutgoingReply) bool {
		stats.CachedReplies++
		return true
	})

	return stats, nil
}

// Close releases the caches' background resources.
func (s *Store) Close() {
	s.state.Close()
	s.outgoing.Close()
	s.incoming.Close()
}
