package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bus_eta_bot/internal/domain"
)

type fakeHistoryCollection struct {
	t    *testing.T
	docs []bson.M
	err  error
}

func (f *fakeHistoryCollection) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.err != nil {
		return nil, f.err
	}

	raw, err := bson.Marshal(document)
	if err != nil {
		f.t.Fatalf("failed to marshal document: %v", err)
	}

	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		f.t.Fatalf("failed to unmarshal document: %v", err)
	}

	f.docs = append(f.docs, doc)
	return &mongo.InsertOneResult{InsertedID: len(f.docs)}, nil
}

func newTestRecorder(coll *fakeHistoryCollection) *Recorder {
	hookLogger, _ := logtest.NewNullLogger()
	recorder := NewRecorder(coll, logrus.NewEntry(hookLogger))
	recorder.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return recorder
}

func TestRecordMessage(t *testing.T) {
	coll := &fakeHistoryCollection{t: t}
	recorder := newTestRecorder(coll)

	event := domain.Event{
		UpdateID: 10,
		Kind:     domain.KindNewMessage,
		Message: &domain.TextMessage{
			ChatID:    1,
			UserID:    2,
			MessageID: 3,
			Text:      "/eta 96049",
		},
	}

	if err := recorder.Record(context.Background(), event); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	if len(coll.docs) != 1 {
		t.Fatalf("expected one document, got %d", len(coll.docs))
	}
	doc := coll.docs[0]

	if doc["update_id"] != int64(10) || doc["chat_id"] != int64(1) || doc["user_id"] != int64(2) {
		t.Fatalf("unexpected identity fields: %v", doc)
	}
	if doc["kind"] != string(domain.KindNewMessage) || doc["text"] != "/eta 96049" {
		t.Fatalf("unexpected content fields: %v", doc)
	}
	if _, ok := doc["callback_data"]; ok {
		t.Fatalf("expected callback_data to be omitted, got %v", doc)
	}
	if _, ok := doc["received_at"]; !ok {
		t.Fatalf("expected received_at to be set, got %v", doc)
	}
}

func TestRecordCallback(t *testing.T) {
	coll := &fakeHistoryCollection{t: t}
	recorder := newTestRecorder(coll)

	event := domain.Event{
		UpdateID: 11,
		Kind:     domain.KindCallbackQuery,
		Callback: &domain.CallbackQuery{UserID: 2, ChatID: 1, MessageID: 4, HasMessage: true, Data: `{"t":"eta","d":true}`},
	}

	if err := recorder.Record(context.Background(), event); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	doc := coll.docs[0]
	if doc["callback_data"] != `{"t":"eta","d":true}` {
		t.Fatalf("expected callback data, got %v", doc)
	}
	if _, ok := doc["text"]; ok {
		t.Fatalf("expected text to be omitted, got %v", doc)
	}
}

func TestRecordPropagatesErrors(t *testing.T) {
	insertErr := errors.New("insert failed")
	recorder := newTestRecorder(&fakeHistoryCollection{t: t, err: insertErr})

	err := recorder.Record(context.Background(), domain.Event{UpdateID: 1, Kind: domain.KindNewMessage, Message: &domain.TextMessage{}})
	if !errors.Is(err, insertErr) {
		t.Fatalf("expected insert error, got %v", err)
	}
}

func TestRecordValidation(t *testing.T) {
	var nilRecorder *Recorder
	if err := nilRecorder.Record(context.Background(), domain.Event{Kind: domain.KindNewMessage}); err == nil {
		t.Fatalf("expected error from nil recorder")
	}

	recorder := newTestRecorder(&fakeHistoryCollection{t: t})
	if err := recorder.Record(context.Background(), domain.Event{}); err == nil {
		t.Fatalf("expected error for missing kind")
	}
}

func TestNopRecorder(t *testing.T) {
	if err := (Nop{}).Record(context.Background(), domain.Event{}); err != nil {
		t.Fatalf("expected nop recorder to succeed, got %v", err)
	}
}
