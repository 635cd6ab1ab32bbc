package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Method names the Bot API call a reply instruction maps to.
type Method string

const (
	MethodSendMessage     Method = "sendMessage"
	MethodEditMessageText Method = "editMessageText"
)

// Recognised rendering options.
const (
	OptionParseMode             = "parse_mode"
	OptionReplyMarkup           = "reply_markup"
	OptionDisableWebPagePreview = "disable_web_page_preview"
	OptionDisableNotification   = "disable_notification"
)

var knownOptions = map[string]struct{}{
	OptionParseMode:             {},
	OptionReplyMarkup:           {},
	OptionDisableWebPagePreview: {},
	OptionDisableNotification:   {},
}

// Options is a flat set of rendering directives. reply_markup holds the
// JSON-encoded keyboard.
type Options map[string]string

// Validate rejects option names the transport does not understand.
func (o Options) Validate() error {
	unknown := make([]string, 0)
	for name := range o {
		if _, ok := knownOptions[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	sort.Strings(unknown)
	return fmt.Errorf("%w: %s", ErrInvalidOption, strings.Join(unknown, ", "))
}

// Without returns a copy of o with the named options removed.
func (o Options) Without(names ...string) Options {
	out := make(Options, len(o))
	for name, value := range o {
		out[name] = value
	}
	for _, name := range names {
		delete(out, name)
	}
	return out
}

// ReplyInstruction is a single outbound call. TargetMessageID is set only for
// edits.
type ReplyInstruction struct {
	Method          Method  `json:"method"`
	ChatID          int64   `json:"chat_id"`
	TargetMessageID int     `json:"message_id,omitempty"`
	Text            string  `json:"text"`
	Options         Options `json:"options,omitempty"`
}

// IsEdit reports whether the instruction edits an existing message.
func (r ReplyInstruction) IsEdit() bool {
	return r.Method == MethodEditMessageText
}

// NewSend builds a sendMessage instruction.
func NewSend(chatID int64, text string, options Options) *ReplyInstruction {
	return &ReplyInstruction{
		Method:  MethodSendMessage,
		ChatID:  chatID,
		Text:    text,
		Options: options,
	}
}

// NewEdit builds an editMessageText instruction.
func NewEdit(chatID int64, messageID int, text string, options Options) *ReplyInstruction {
	return &ReplyInstruction{
		Method:          MethodEditMessageText,
		ChatID:          chatID,
		TargetMessageID: messageID,
		Text:            text,
		Options:         options,
	}
}

// Direction tags cached reply records.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// IncomingLink ties a user's message to the bot's reply.
type IncomingLink struct {
	ChatID         int64     `bson:"chat_id" json:"chat_id"`
	MessageID      int       `bson:"message_id" json:"message_id"`
	Direction      Direction `bson:"direction" json:"direction"`
	ReplyChatID    int64     `bson:"reply_chat_id" json:"reply_chat_id"`
	ReplyMessageID int       `bson:"reply_message_id" json:"reply_message_id"`
	CachedAt       time.Time `bson:"cached_at" json:"cached_at"`
}

// OutgoingReply is the exact content the bot sent into a message slot.
type OutgoingReply struct {
	ChatID    int64     `bson:"chat_id" json:"chat_id"`
	MessageID int       `bson:"message_id" json:"message_id"`
	Direction Direction `bson:"direction" json:"direction"`
	Text      string    `bson:"text" json:"text"`
	Options   Options   `bson:"options,omitempty" json:"options,omitempty"`
	CachedAt  time.Time `bson:"cached_at" json:"cached_at"`
}

// CachedReply is the pair written after every successful send.
type CachedReply struct {
	Incoming IncomingLink
	Outgoing OutgoingReply
}
