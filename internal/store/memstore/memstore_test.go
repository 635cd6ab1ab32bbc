package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"bus_eta_bot/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(100, 0)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStatePutGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := domain.PendingCommand{ChatID: 1, UserID: 2, Purpose: domain.PurposeUnfinishedCommand, Command: domain.CommandEta}
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	found, err := store.Get(ctx, record.Key())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if found == nil || found.Command != domain.CommandEta || found.UpdatedAt.IsZero() {
		t.Fatalf("expected stored record with timestamp, got %+v", found)
	}

	other, err := store.Get(ctx, domain.StateKey{ChatID: 1, UserID: 3, Purpose: domain.PurposeUnfinishedCommand})
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if other != nil {
		t.Fatalf("expected records to be per user, got %+v", other)
	}

	if err := store.Delete(ctx, record.Key()); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	found, err = store.Get(ctx, record.Key())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if found != nil {
		t.Fatalf("expected record to be deleted, got %+v", found)
	}
}

func TestStatePutRequiresPurpose(t *testing.T) {
	store := newTestStore(t)

	if err := store.Put(context.Background(), domain.PendingCommand{ChatID: 1, UserID: 2}); err == nil {
		t.Fatalf("expected error for missing purpose")
	}
}

func TestRecordAndOutgoing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	options := domain.Options{domain.OptionParseMode: "HTML"}
	reply := domain.CachedReply{
		Incoming: domain.IncomingLink{ChatID: 9, MessageID: 1, ReplyChatID: 9, ReplyMessageID: 2},
		Outgoing: domain.OutgoingReply{ChatID: 9, MessageID: 2, Text: "hello", Options: options},
	}

	if err := store.Record(ctx, reply); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	options[domain.OptionParseMode] = "MarkdownV2"

	found, err := store.Outgoing(ctx, 9, 2)
	if err != nil {
		t.Fatalf("Outgoing returned error: %v", err)
	}
	if found == nil || found.Text != "hello" {
		t.Fatalf("expected cached reply, got %+v", found)
	}
	if found.Options[domain.OptionParseMode] != "HTML" {
		t.Fatalf("expected cached options to be isolated from caller, got %v", found.Options)
	}
	if found.Direction != domain.DirectionOutgoing || !found.CachedAt.Equal(fixed) {
		t.Fatalf("expected direction and timestamp to be set, got %+v", found)
	}

	link, ok := store.incoming.Get(messageKey{chatID: 9, messageID: 1})
	if !ok || link.ReplyMessageID != 2 || link.Direction != domain.DirectionIncoming {
		t.Fatalf("expected incoming link, got %+v", link)
	}

	missing, err := store.Outgoing(ctx, 9, 1)
	if err != nil {
		t.Fatalf("Outgoing returned error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected incoming message id not to resolve as outgoing, got %+v", missing)
	}
}

func TestNewValidatesCapacity(t *testing.T) {
	if _, err := New(0, time.Minute); err == nil {
		t.Fatalf("expected error for zero capacity")
	}
}

func TestSnapshotCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := []domain.PendingCommand{
		{ChatID: 1, UserID: 1, Purpose: domain.PurposeUnfinishedCommand, Command: domain.CommandEta},
		{ChatID: 1, UserID: 1, Purpose: domain.PurposeRedial, BusStop: "96049"},
		{ChatID: 1, UserID: 2, Purpose: domain.PurposeRedial, BusStop: "96041"},
	}
	for _, record := range records {
		if err := store.Put(ctx, record); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
	}
	if err := store.Record(ctx, domain.CachedReply{
		Incoming: domain.IncomingLink{ChatID: 1, MessageID: 5},
		Outgoing: domain.OutgoingReply{ChatID: 1, MessageID: 6, Text: "x"},
	}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	stats, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if stats.PendingCommands != 1 || stats.RedialRecords != 2 || stats.CachedReplies != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRecordPublishesBothHalvesTogether(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const replies = 50
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= replies; i++ {
			_ = store.Record(ctx, domain.CachedReply{
				Incoming: domain.IncomingLink{ChatID: 3, MessageID: i, ReplyChatID: 3, ReplyMessageID: i + replies},
				Outgoing: domain.OutgoingReply{ChatID: 3, MessageID: i + replies, Text: "x"},
			})
		}
	}()

	var torn []int
	for round := 0; round < 20; round++ {
		for i := 1; i <= replies; i++ {
			reply, err := store.Outgoing(ctx, 3, i+replies)
			if err != nil {
				t.Fatalf("Outgoing returned error: %v", err)
			}
			if reply == nil {
				continue
			}
			if _, ok := store.incoming.Get(messageKey{chatID: 3, messageID: i}); !ok {
				torn = append(torn, i)
			}
		}
	}
	wg.Wait()

	if len(torn) != 0 {
		t.Fatalf("expected incoming link whenever the reply is visible, missing for %v", torn)
	}
}
