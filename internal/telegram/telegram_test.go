package telegram

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"bus_eta_bot/internal/config"
	"bus_eta_bot/internal/domain"
)

type fakeBot struct {
	sent     []*bot.SendMessageParams
	edited   []*bot.EditMessageTextParams
	answered []*bot.AnswerCallbackQueryParams

	nextMessageID int
	sendErr       error
	editErr       error
	answerErr     error
}

func (f *fakeBot) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.sent = append(f.sent, params)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &models.Message{ID: f.nextMessageID}, nil
}

func (f *fakeBot) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	f.edited = append(f.edited, params)
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &models.Message{ID: params.MessageID}, nil
}

func (f *fakeBot) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.answered = append(f.answered, params)
	if f.answerErr != nil {
		return false, f.answerErr
	}
	return true, nil
}

func newTestClient(b *fakeBot) *Client {
	logger, _ := logtest.NewNullLogger()
	return &Client{bot: b, logger: logrus.NewEntry(logger)}
}

func TestNewClientCreatesBot(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	var gotToken string
	var gotOptions []bot.Option
	b := &fakeBot{}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		gotToken = token
		gotOptions = options
		return b, nil
	}

	cfg := config.Config{TelegramToken: "token-123"}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := NewClient(cfg, logrus.NewEntry(logger))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if client == nil || client.bot == nil {
		t.Fatalf("expected client and bot to be initialized")
	}

	if gotToken != cfg.TelegramToken {
		t.Fatalf("expected token %q, got %q", cfg.TelegramToken, gotToken)
	}

	if len(gotOptions) != 2 {
		t.Fatalf("expected 2 bot options (skip getMe, error handler), got %d", len(gotOptions))
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(config.Config{TelegramToken: "  "}, nil); err == nil {
		t.Fatalf("expected error for blank token")
	}
}

func TestNewClientPropagatesBotError(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	expected := errors.New("boom")
	createBot = func(string, ...bot.Option) (botAPI, error) {
		return nil, expected
	}

	_, err := NewClient(config.Config{TelegramToken: "token"}, nil)
	if !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func TestSendTranslatesOptions(t *testing.T) {
	b := &fakeBot{nextMessageID: 77}
	client := newTestClient(b)

	instr := domain.NewSend(42, "<pre>hi</pre>", domain.Options{
		domain.OptionParseMode:             "HTML",
		domain.OptionReplyMarkup:           `{"inline_keyboard":[[{"text":"Refresh","callback_data":"{\"t\":\"eta\"}"}]]}`,
		domain.OptionDisableWebPagePreview: "true",
		domain.OptionDisableNotification:   "true",
	})

	messageID, err := client.Send(context.Background(), *instr)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if messageID != 77 {
		t.Fatalf("expected message id 77, got %d", messageID)
	}

	if len(b.sent) != 1 {
		t.Fatalf("expected one send call, got %d", len(b.sent))
	}
	params := b.sent[0]
	if params.ChatID != int64(42) || params.Text != "<pre>hi</pre>" {
		t.Fatalf("unexpected send params: %+v", params)
	}
	if params.ParseMode != models.ParseModeHTML {
		t.Fatalf("expected HTML parse mode, got %q", params.ParseMode)
	}
	if !params.DisableNotification {
		t.Fatalf("expected notifications disabled")
	}
	if params.LinkPreviewOptions == nil || params.LinkPreviewOptions.IsDisabled == nil || !*params.LinkPreviewOptions.IsDisabled {
		t.Fatalf("expected link preview disabled, got %+v", params.LinkPreviewOptions)
	}

	markup, ok := params.ReplyMarkup.(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard markup, got %T", params.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 1 || markup.InlineKeyboard[0][0].CallbackData != `{"t":"eta"}` {
		t.Fatalf("unexpected keyboard: %+v", markup.InlineKeyboard)
	}
}

func TestSendWithoutOptionsLeavesMarkupUnset(t *testing.T) {
	b := &fakeBot{nextMessageID: 1}
	client := newTestClient(b)

	if _, err := client.Send(context.Background(), *domain.NewSend(1, "plain", nil)); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	params := b.sent[0]
	if params.ReplyMarkup != nil || params.ParseMode != "" || params.LinkPreviewOptions != nil {
		t.Fatalf("expected no rendering options, got %+v", params)
	}
}

func TestSendWrapsDeliveryErrors(t *testing.T) {
	b := &fakeBot{sendErr: errors.New("forbidden: bot was blocked by the user")}
	client := newTestClient(b)

	_, err := client.Send(context.Background(), *domain.NewSend(1, "hi", nil))
	if !errors.Is(err, domain.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestSendRejectsInvalidOptions(t *testing.T) {
	b := &fakeBot{}
	client := newTestClient(b)

	cases := []domain.Options{
		{"colour": "blue"},
		{domain.OptionReplyMarkup: "{not json"},
		{domain.OptionDisableNotification: "maybe"},
	}

	for _, options := range cases {
		_, err := client.Send(context.Background(), *domain.NewSend(1, "hi", options))
		if !errors.Is(err, domain.ErrInvalidOption) {
			t.Fatalf("expected ErrInvalidOption for %v, got %v", options, err)
		}
	}

	if len(b.sent) != 0 {
		t.Fatalf("expected no send calls for invalid options, got %d", len(b.sent))
	}
}

func TestEditTargetsMessage(t *testing.T) {
	b := &fakeBot{}
	client := newTestClient(b)

	instr := domain.NewEdit(5, 9, "updated", domain.Options{domain.OptionParseMode: "HTML"})
	if err := client.Edit(context.Background(), *instr); err != nil {
		t.Fatalf("Edit returned error: %v", err)
	}

	if len(b.edited) != 1 {
		t.Fatalf("expected one edit call, got %d", len(b.edited))
	}
	params := b.edited[0]
	if params.ChatID != int64(5) || params.MessageID != 9 || params.Text != "updated" {
		t.Fatalf("unexpected edit params: %+v", params)
	}
	if params.ReplyMarkup != nil {
		t.Fatalf("expected keyboard to be removed, got %+v", params.ReplyMarkup)
	}
}

func TestEditTreatsNotModifiedAsSuccess(t *testing.T) {
	b := &fakeBot{editErr: errors.New("bad request, Bad Request: message is not modified: specified new message content and reply markup are exactly the same")}
	hookLogger, hook := logtest.NewNullLogger()
	hookLogger.SetLevel(logrus.DebugLevel)
	client := &Client{bot: b, logger: logrus.NewEntry(hookLogger)}

	if err := client.Edit(context.Background(), *domain.NewEdit(1, 2, "same", nil)); err != nil {
		t.Fatalf("expected unchanged edit to succeed, got %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "telegram_edit_unchanged" {
		t.Fatalf("expected unchanged edit to be logged, got %+v", entry)
	}
}

func TestEditWrapsDeliveryErrors(t *testing.T) {
	b := &fakeBot{editErr: errors.New("bad request, Bad Request: message to edit not found")}
	client := newTestClient(b)

	err := client.Edit(context.Background(), *domain.NewEdit(1, 2, "text", nil))
	if !errors.Is(err, domain.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestAnswerCallback(t *testing.T) {
	b := &fakeBot{}
	client := newTestClient(b)

	if err := client.AnswerCallback(context.Background(), "query-1"); err != nil {
		t.Fatalf("AnswerCallback returned error: %v", err)
	}
	if len(b.answered) != 1 || b.answered[0].CallbackQueryID != "query-1" {
		t.Fatalf("unexpected answer calls: %+v", b.answered)
	}

	if err := client.AnswerCallback(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty query id")
	}

	b.answerErr = errors.New("query is too old")
	if err := client.AnswerCallback(context.Background(), "query-2"); !errors.Is(err, domain.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestNilClientReturnsErrors(t *testing.T) {
	var client *Client

	if _, err := client.Send(context.Background(), domain.ReplyInstruction{}); err == nil {
		t.Fatalf("expected error from nil client send")
	}
	if err := client.Edit(context.Background(), domain.ReplyInstruction{}); err == nil {
		t.Fatalf("expected error from nil client edit")
	}
	if err := client.AnswerCallback(context.Background(), "id"); err == nil {
		t.Fatalf("expected error from nil client answer")
	}
}

func TestErrorHandlerLogs(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	handler := errorHandler(logrus.NewEntry(hookLogger))

	handler(nil)
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("expected nil error to be ignored")
	}

	handler(errors.New("network down"))
	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "telegram_error" {
		t.Fatalf("expected telegram_error log entry, got %+v", entry)
	}
}
