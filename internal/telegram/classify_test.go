package telegram

import (
	"errors"
	"testing"

	"bus_eta_bot/internal/domain"
)

func TestClassifyNewMessage(t *testing.T) {
	raw := []byte(`{
		"update_id": 1001,
		"message": {
			"message_id": 5,
			"date": 1700000000,
			"from": {"id": 42, "is_bot": false, "first_name": "A"},
			"chat": {"id": -100, "type": "supergroup"},
			"text": "/eta 96049",
			"entities": [{"type": "bot_command", "offset": 0, "length": 4}]
		}
	}`)

	event, err := Classify(raw)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}

	if event.UpdateID != 1001 || event.Kind != domain.KindNewMessage {
		t.Fatalf("unexpected event header: %+v", event)
	}
	msg := event.Message
	if msg == nil {
		t.Fatalf("expected message payload")
	}
	if msg.ChatID != -100 || msg.UserID != 42 || msg.MessageID != 5 || msg.Text != "/eta 96049" {
		t.Fatalf("unexpected message payload: %+v", msg)
	}
	if !msg.IsGroup() {
		t.Fatalf("expected supergroup to count as group")
	}
	if len(msg.Entities) != 1 || msg.Entities[0].Type != domain.EntityTypeBotCommand || msg.Entities[0].Length != 4 {
		t.Fatalf("unexpected entities: %+v", msg.Entities)
	}
}

func TestClassifyEditedMessage(t *testing.T) {
	raw := []byte(`{
		"update_id": 2,
		"edited_message": {
			"message_id": 6,
			"date": 1700000000,
			"edit_date": 1700000100,
			"from": {"id": 1, "is_bot": false, "first_name": "A"},
			"chat": {"id": 1, "type": "private"},
			"text": "96049"
		}
	}`)

	event, err := Classify(raw)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if event.Kind != domain.KindEditedMessage || event.Message == nil || event.Message.IsGroup() {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestClassifyCallbackQuery(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantMessage bool
		wantChat    int64
		wantMsgID   int
	}{
		{
			name: "accessible message",
			raw: `{"update_id": 3, "callback_query": {
				"id": "q1", "from": {"id": 7, "is_bot": false, "first_name": "A"},
				"message": {"message_id": 50, "date": 1700000000, "chat": {"id": 70, "type": "private"}, "text": "Etas"},
				"chat_instance": "ci", "data": "{\"t\":\"eta\",\"d\":true}"
			}}`,
			wantMessage: true,
			wantChat:    70,
			wantMsgID:   50,
		},
		{
			name: "inaccessible message",
			raw: `{"update_id": 4, "callback_query": {
				"id": "q2", "from": {"id": 7, "is_bot": false, "first_name": "A"},
				"message": {"message_id": 51, "date": 0, "chat": {"id": 71, "type": "private"}},
				"chat_instance": "ci", "data": "x"
			}}`,
			wantMessage: true,
			wantChat:    71,
			wantMsgID:   51,
		},
		{
			name: "inline message without attachment",
			raw: `{"update_id": 5, "callback_query": {
				"id": "q3", "from": {"id": 7, "is_bot": false, "first_name": "A"},
				"inline_message_id": "abc", "chat_instance": "ci", "data": "x"
			}}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			event, err := Classify([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Classify returned error: %v", err)
			}
			if event.Kind != domain.KindCallbackQuery || event.Callback == nil {
				t.Fatalf("expected callback event, got %+v", event)
			}
			cb := event.Callback
			if cb.HasMessage != tt.wantMessage || cb.ChatID != tt.wantChat || cb.MessageID != tt.wantMsgID {
				t.Fatalf("unexpected callback: %+v", cb)
			}
			if cb.UserID != 7 || cb.QueryID == "" {
				t.Fatalf("expected sender and query id, got %+v", cb)
			}
		})
	}
}

func TestClassifyRejectsMalformedEvents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `update`},
		{name: "missing update id", raw: `{"message": {"message_id": 1, "date": 1, "chat": {"id": 1, "type": "private"}, "text": "hi"}}`},
		{name: "message without text", raw: `{"update_id": 1, "message": {"message_id": 1, "date": 1, "chat": {"id": 1, "type": "private"}, "sticker": {}}}`},
		{name: "edited message without text", raw: `{"update_id": 1, "edited_message": {"message_id": 1, "date": 1, "chat": {"id": 1, "type": "private"}}}`},
		{name: "unhandled update", raw: `{"update_id": 1, "poll": {"id": "p"}}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify([]byte(tt.raw))
			if !errors.Is(err, domain.ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name        string
		msg         domain.TextMessage
		wantCommand string
		wantHas     bool
		wantArgs    string
	}{
		{
			name:     "no command entity",
			msg:      domain.TextMessage{Text: "  96049   @BusEtaBot\t 12 "},
			wantArgs: "96049 12",
		},
		{
			name: "leading slash without entity is not a command",
			msg:  domain.TextMessage{Text: "/eta 96049"},
			// Without a bot_command entity the whole text is arguments.
			wantArgs: "/eta 96049",
		},
		{
			name: "command with mention",
			msg: domain.TextMessage{
				Text:     "/eta@BusEtaBot   96049  12",
				Entities: []domain.Entity{{Type: domain.EntityTypeBotCommand, Offset: 0, Length: 14}},
			},
			wantCommand: "/eta",
			wantHas:     true,
			wantArgs:    "96049 12",
		},
		{
			name: "command without args",
			msg: domain.TextMessage{
				Text:     "/eta",
				Entities: []domain.Entity{{Type: domain.EntityTypeBotCommand, Offset: 0, Length: 4}},
			},
			wantCommand: "/eta",
			wantHas:     true,
		},
		{
			name: "offsets count utf16 units",
			msg: domain.TextMessage{
				Text:     "🚌 /eta 96049",
				Entities: []domain.Entity{{Type: domain.EntityTypeBotCommand, Offset: 3, Length: 4}},
			},
			wantCommand: "/eta",
			wantHas:     true,
			wantArgs:    "96049",
		},
		{
			name: "first command entity wins",
			msg: domain.TextMessage{
				Text: "@someone hi /redial then /eta 1",
				Entities: []domain.Entity{
					{Type: "mention", Offset: 0, Length: 8},
					{Type: domain.EntityTypeBotCommand, Offset: 12, Length: 7},
					{Type: domain.EntityTypeBotCommand, Offset: 25, Length: 4},
				},
			},
			wantCommand: "/redial",
			wantHas:     true,
			wantArgs:    "then /eta 1",
		},
		{
			name: "out of range entity is clamped",
			msg: domain.TextMessage{
				Text:     "/eta",
				Entities: []domain.Entity{{Type: domain.EntityTypeBotCommand, Offset: 0, Length: 40}},
			},
			wantCommand: "/eta",
			wantHas:     true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := ParseRequest(domain.KindNewMessage, tt.msg)
			if req.HasCommand != tt.wantHas || req.Command != tt.wantCommand || req.Args != tt.wantArgs {
				t.Fatalf("ParseRequest() = {command:%q has:%v args:%q}, want {command:%q has:%v args:%q}",
					req.Command, req.HasCommand, req.Args, tt.wantCommand, tt.wantHas, tt.wantArgs)
			}
		})
	}
}

func TestParseRequestCopiesIdentity(t *testing.T) {
	msg := domain.TextMessage{ChatID: -5, UserID: 9, MessageID: 3, ChatType: domain.ChatTypeGroup, Text: "hi"}

	req := ParseRequest(domain.KindEditedMessage, msg)
	if req.Kind != domain.KindEditedMessage || req.ChatID != -5 || req.UserID != 9 || req.MessageID != 3 || !req.IsGroup {
		t.Fatalf("unexpected parsed request: %+v", req)
	}
}

func TestSanitise(t *testing.T) {
	tests := map[string]string{
		"":                        "",
		"   ":                     "",
		"a  b":                    "a b",
		"@bot":                    "",
		"hello@bot world":         "hello world",
		"  line\none \t two  ":    "line one two",
		"/eta@Bus_Eta_Bot2 96049": "/eta 96049",
	}

	for input, want := range tests {
		if got := Sanitise(input); got != want {
			t.Fatalf("Sanitise(%q) = %q, want %q", input, got, want)
		}
	}
}
