package domain

import (
	"fmt"
	"time"
)

// Purpose distinguishes the kinds of per-user state records.
type Purpose string

const (
	// PurposeUnfinishedCommand marks a command waiting for more input.
	PurposeUnfinishedCommand Purpose = "unfinished_command"
	// PurposeRedial holds the last successful query for replay.
	PurposeRedial Purpose = "redial"
)

// CommandEta is the command name stored for an unfinished /eta.
const CommandEta = "eta"

// StateKey identifies a single state record.
type StateKey struct {
	ChatID  int64
	UserID  int64
	Purpose Purpose
}

// String renders the key in chatid-userid-purpose form.
func (k StateKey) String() string {
	return fmt.Sprintf("%d-%d-%s", k.ChatID, k.UserID, k.Purpose)
}

// PendingCommand is a per-user state record. Command is set for
// unfinished_command records; BusStop and ServiceNo for redial records.
type PendingCommand struct {
	ChatID    int64     `bson:"chat_id" json:"chat_id"`
	UserID    int64     `bson:"user_id" json:"user_id"`
	Purpose   Purpose   `bson:"purpose" json:"purpose"`
	Command   string    `bson:"command,omitempty" json:"command,omitempty"`
	BusStop   string    `bson:"bus_stop,omitempty" json:"bus_stop,omitempty"`
	ServiceNo string    `bson:"svc_no,omitempty" json:"svc_no,omitempty"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Key returns the record's identity.
func (p PendingCommand) Key() StateKey {
	return StateKey{ChatID: p.ChatID, UserID: p.UserID, Purpose: p.Purpose}
}
