// Package history keeps an append-only log of inbound updates.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bus_eta_bot/internal/domain"
	"bus_eta_bot/internal/logging"
)

type historyCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Entry is one logged update.
type Entry struct {
	UpdateID     int64                  `bson:"update_id"`
	Kind         domain.InteractionKind `bson:"kind"`
	ChatID       int64                  `bson:"chat_id"`
	UserID       int64                  `bson:"user_id"`
	MessageID    int                    `bson:"message_id,omitempty"`
	Text         string                 `bson:"text,omitempty"`
	CallbackData string                 `bson:"callback_data,omitempty"`
	ReceivedAt   time.Time              `bson:"received_at"`
}

// NewEntry flattens event into a history entry.
func NewEntry(event domain.Event, receivedAt time.Time) Entry {
	entry := Entry{
		UpdateID:   event.UpdateID,
		Kind:       event.Kind,
		ReceivedAt: receivedAt,
	}

	switch {
	case event.Message != nil:
		entry.ChatID = event.Message.ChatID
		entry.UserID = event.Message.UserID
		entry.MessageID = event.Message.MessageID
		entry.Text = event.Message.Text
	case event.Callback != nil:
		entry.ChatID = event.Callback.ChatID
		entry.UserID = event.Callback.UserID
		entry.MessageID = event.Callback.MessageID
		entry.CallbackData = event.Callback.Data
	}

	return entry
}

// Recorder appends entries to the history collection.
type Recorder struct {
	entries historyCollection
	logger  *logrus.Entry
	now     func() time.Time
}

// NewRecorder constructs a Recorder for the provided history collection.
func NewRecorder(entries historyCollection, logger *logrus.Entry) *Recorder {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Recorder{
		entries: entries,
		logger:  logger,
		now:     time.Now,
	}
}

// Record stores event.
func (r *Recorder) Record(ctx context.Context, event domain.Event) error {
	if r == nil || r.entries == nil {
		return errors.New("history recorder is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if event.Kind == "" {
		return errors.New("event kind is required")
	}

	entry := NewEntry(event, r.now().UTC().Truncate(time.Millisecond))
	if _, err := r.entries.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("record history: %w", err)
	}

	logging.FromContext(ctx, r.logger).WithFields(logging.Fields{
		"event":     "history_recorded",
		"update_id": event.UpdateID,
		"kind":      event.Kind,
	}).Debug("recorded update")

	return nil
}

// Nop discards every event.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, domain.Event) error {
	return nil
}
