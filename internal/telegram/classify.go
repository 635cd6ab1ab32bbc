package telegram

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"

	"bus_eta_bot/internal/domain"
)

var mentionPattern = regexp.MustCompile(`@\w+`)

// Classify decodes a raw webhook body into an Event. Bodies that are not
// JSON, lack update_id, carry a message without text, or contain none of the
// handled update types yield domain.ErrMalformedEvent.
func Classify(raw []byte) (domain.Event, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return domain.Event{}, fmt.Errorf("%w: decode update: %v", domain.ErrMalformedEvent, err)
	}
	if _, ok := top["update_id"]; !ok {
		return domain.Event{}, fmt.Errorf("%w: update_id is missing", domain.ErrMalformedEvent)
	}

	var update models.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return domain.Event{}, fmt.Errorf("%w: decode update: %v", domain.ErrMalformedEvent, err)
	}

	event := domain.Event{UpdateID: update.ID}

	switch {
	case update.Message != nil:
		msg, err := textMessage(top[string(domain.KindNewMessage)], update.Message)
		if err != nil {
			return domain.Event{}, err
		}
		event.Kind = domain.KindNewMessage
		event.Message = msg
	case update.EditedMessage != nil:
		msg, err := textMessage(top[string(domain.KindEditedMessage)], update.EditedMessage)
		if err != nil {
			return domain.Event{}, err
		}
		event.Kind = domain.KindEditedMessage
		event.Message = msg
	case update.CallbackQuery != nil:
		event.Kind = domain.KindCallbackQuery
		event.Callback = callbackQuery(update.CallbackQuery)
	default:
		return domain.Event{}, fmt.Errorf("%w: no message, edited_message or callback_query", domain.ErrMalformedEvent)
	}

	return event, nil
}

func textMessage(raw json.RawMessage, msg *models.Message) (*domain.TextMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: decode message: %v", domain.ErrMalformedEvent, err)
	}
	if _, ok := fields["text"]; !ok {
		return nil, fmt.Errorf("%w: message text is missing", domain.ErrMalformedEvent)
	}

	entities := make([]domain.Entity, 0, len(msg.Entities))
	for _, entity := range msg.Entities {
		entities = append(entities, domain.Entity{
			Type:   string(entity.Type),
			Offset: entity.Offset,
			Length: entity.Length,
		})
	}

	return &domain.TextMessage{
		ChatID:    chatID(&msg.Chat),
		UserID:    userID(msg.From),
		MessageID: msg.ID,
		ChatType:  string(msg.Chat.Type),
		Text:      msg.Text,
		Entities:  entities,
	}, nil
}

func callbackQuery(query *models.CallbackQuery) *domain.CallbackQuery {
	out := &domain.CallbackQuery{
		QueryID: query.ID,
		UserID:  userID(&query.From),
		Data:    query.Data,
	}

	switch query.Message.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if query.Message.Message != nil {
			out.HasMessage = true
			out.ChatID = chatID(&query.Message.Message.Chat)
			out.MessageID = query.Message.Message.ID
		}
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if query.Message.InaccessibleMessage != nil {
			out.HasMessage = true
			out.ChatID = chatID(&query.Message.InaccessibleMessage.Chat)
			out.MessageID = query.Message.InaccessibleMessage.MessageID
		}
	}

	return out
}

// ParseRequest tokenises and sanitises a text message. The first bot_command
// entity supplies the command and everything after it becomes the arguments.
// Without such an entity the whole text is the arguments.
func ParseRequest(kind domain.InteractionKind, msg domain.TextMessage) domain.ParsedRequest {
	req := domain.ParsedRequest{
		Kind:      kind,
		ChatID:    msg.ChatID,
		UserID:    msg.UserID,
		MessageID: msg.MessageID,
		IsGroup:   msg.IsGroup(),
	}

	command, args, found := tokenise(msg.Text, msg.Entities)
	req.HasCommand = found
	if found {
		req.Command = Sanitise(command)
	}
	req.Args = Sanitise(args)

	return req
}

func tokenise(text string, entities []domain.Entity) (command, args string, found bool) {
	for _, entity := range entities {
		if entity.Type != domain.EntityTypeBotCommand {
			continue
		}

		units := utf16.Encode([]rune(text))
		start := clamp(entity.Offset, 0, len(units))
		end := clamp(entity.Offset+entity.Length, start, len(units))

		return string(utf16.Decode(units[start:end])), string(utf16.Decode(units[end:])), true
	}

	return "", text, false
}

// Sanitise strips @mentions, collapses whitespace runs to a single space and
// trims the result.
func Sanitise(s string) string {
	return strings.Join(strings.Fields(mentionPattern.ReplaceAllString(s, "")), " ")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
