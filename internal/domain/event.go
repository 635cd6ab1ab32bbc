package domain

// InteractionKind is the closed set of inbound update types the bot handles.
type InteractionKind string

const (
	KindNewMessage    InteractionKind = "message"
	KindEditedMessage InteractionKind = "edited_message"
	KindCallbackQuery InteractionKind = "callback_query"
)

// EntityTypeBotCommand marks a span of message text that is a bot command.
const EntityTypeBotCommand = "bot_command"

// Chat types as reported by Telegram.
const (
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
)

// Entity is an annotated span of message text. Offset and Length count UTF-16
// code units.
type Entity struct {
	Type   string
	Offset int
	Length int
}

// TextMessage is the payload of a new or edited text message.
type TextMessage struct {
	ChatID    int64
	UserID    int64
	MessageID int
	ChatType  string
	Text      string
	Entities  []Entity
}

// IsGroup reports whether the message came from a shared chat.
func (m TextMessage) IsGroup() bool {
	return m.ChatType == ChatTypeGroup || m.ChatType == ChatTypeSupergroup
}

// CallbackQuery is a button press on an inline keyboard.
type CallbackQuery struct {
	QueryID    string
	UserID     int64
	HasMessage bool
	ChatID     int64
	MessageID  int
	Data       string
}

// Event is a classified inbound update. Exactly one of Message or Callback is
// set, depending on Kind.
type Event struct {
	UpdateID int64
	Kind     InteractionKind
	Message  *TextMessage
	Callback *CallbackQuery
}

// ParsedRequest is a tokenised and sanitised text message.
type ParsedRequest struct {
	Kind       InteractionKind
	Command    string
	HasCommand bool
	Args       string
	ChatID     int64
	UserID     int64
	MessageID  int
	IsGroup    bool
}
