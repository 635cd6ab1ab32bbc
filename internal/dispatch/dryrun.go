package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"bus_eta_bot/internal/domain"
)

// DryRunTransport prints instructions as JSON instead of delivering them.
// Sent messages get sequential ids starting at FirstMessageID.
type DryRunTransport struct {
	out    io.Writer
	mu     sync.Mutex
	nextID int
}

// FirstMessageID is the id assigned to the first dry-run send.
const FirstMessageID = 1

// NewDryRunTransport writes to out.
func NewDryRunTransport(out io.Writer) *DryRunTransport {
	return &DryRunTransport{out: out, nextID: FirstMessageID}
}

type dryRunRecord struct {
	Action      string                   `json:"action"`
	MessageID   int                      `json:"sent_message_id,omitempty"`
	QueryID     string                   `json:"callback_query_id,omitempty"`
	Instruction *domain.ReplyInstruction `json:"instruction,omitempty"`
}

// Send prints instr and returns a fresh message id.
func (t *DryRunTransport) Send(_ context.Context, instr domain.ReplyInstruction) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++

	return id, t.write(dryRunRecord{Action: "send", MessageID: id, Instruction: &instr})
}

// Edit prints instr.
func (t *DryRunTransport) Edit(_ context.Context, instr domain.ReplyInstruction) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.write(dryRunRecord{Action: "edit", Instruction: &instr})
}

// AnswerCallback prints the acknowledged query id.
func (t *DryRunTransport) AnswerCallback(_ context.Context, queryID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.write(dryRunRecord{Action: "answer_callback", QueryID: queryID})
}

func (t *DryRunTransport) write(record dryRunRecord) error {
	encoder := json.NewEncoder(t.out)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(record); err != nil {
		return fmt.Errorf("write dry-run %s: %w", record.Action, err)
	}
	return nil
}
