// Package telegram decodes inbound Telegram updates and delivers reply
// instructions through the Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"bus_eta_bot/internal/config"
	"bus_eta_bot/internal/domain"
	"bus_eta_bot/internal/logging"
)

type botAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

var createBot = func(token string, options ...bot.Option) (botAPI, error) {
	return bot.New(token, options...)
}

const notModifiedDescription = "message is not modified"

// Client delivers reply instructions to Telegram.
type Client struct {
	bot    botAPI
	logger *logrus.Entry
}

// NewClient initializes the Telegram Bot API client. Updates arrive through
// the webhook, so the client never polls.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithSkipGetMe(),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	return &Client{
		bot:    tgBot,
		logger: logger,
	}, nil
}

// Send delivers a sendMessage instruction and returns the id of the new
// message.
func (c *Client) Send(ctx context.Context, instr domain.ReplyInstruction) (int, error) {
	if c == nil || c.bot == nil {
		return 0, errors.New("telegram client is not initialized")
	}

	render, err := renderOptions(instr.Options)
	if err != nil {
		return 0, err
	}

	msg, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:              instr.ChatID,
		Text:                instr.Text,
		ParseMode:           render.parseMode,
		LinkPreviewOptions:  render.linkPreview,
		DisableNotification: render.disableNotification,
		ReplyMarkup:         render.markup,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: send message to chat %d: %v", domain.ErrDelivery, instr.ChatID, err)
	}
	if msg == nil {
		return 0, fmt.Errorf("%w: send message to chat %d returned no message", domain.ErrDelivery, instr.ChatID)
	}

	c.logger.WithFields(logging.Fields{
		"event":      "telegram_send",
		"chat_id":    instr.ChatID,
		"message_id": msg.ID,
	}).Debug("message sent")

	return msg.ID, nil
}

// Edit delivers an editMessageText instruction. An edit that leaves the
// message unchanged counts as delivered.
func (c *Client) Edit(ctx context.Context, instr domain.ReplyInstruction) error {
	if c == nil || c.bot == nil {
		return errors.New("telegram client is not initialized")
	}

	render, err := renderOptions(instr.Options)
	if err != nil {
		return err
	}

	_, err = c.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:             instr.ChatID,
		MessageID:          instr.TargetMessageID,
		Text:               instr.Text,
		ParseMode:          render.parseMode,
		LinkPreviewOptions: render.linkPreview,
		ReplyMarkup:        render.markup,
	})
	if err != nil {
		if strings.Contains(err.Error(), notModifiedDescription) {
			c.logger.WithFields(logging.Fields{
				"event":      "telegram_edit_unchanged",
				"chat_id":    instr.ChatID,
				"message_id": instr.TargetMessageID,
			}).Debug("message already up to date")
			return nil
		}
		return fmt.Errorf("%w: edit message %d in chat %d: %v", domain.ErrDelivery, instr.TargetMessageID, instr.ChatID, err)
	}

	c.logger.WithFields(logging.Fields{
		"event":      "telegram_edit",
		"chat_id":    instr.ChatID,
		"message_id": instr.TargetMessageID,
	}).Debug("message edited")

	return nil
}

// AnswerCallback acknowledges a button press so the client stops showing a
// progress indicator.
func (c *Client) AnswerCallback(ctx context.Context, queryID string) error {
	if c == nil || c.bot == nil {
		return errors.New("telegram client is not initialized")
	}
	if queryID == "" {
		return errors.New("callback query id is required")
	}

	if _, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: queryID}); err != nil {
		return fmt.Errorf("%w: answer callback query %s: %v", domain.ErrDelivery, queryID, err)
	}

	return nil
}

type renderedOptions struct {
	parseMode           models.ParseMode
	linkPreview         *models.LinkPreviewOptions
	disableNotification bool
	markup              models.ReplyMarkup
}

func renderOptions(options domain.Options) (renderedOptions, error) {
	var out renderedOptions
	if err := options.Validate(); err != nil {
		return out, err
	}

	if mode, ok := options[domain.OptionParseMode]; ok {
		out.parseMode = models.ParseMode(mode)
	}

	if raw, ok := options[domain.OptionReplyMarkup]; ok && raw != "" {
		var markup models.InlineKeyboardMarkup
		if err := json.Unmarshal([]byte(raw), &markup); err != nil {
			return out, fmt.Errorf("%w: %s: %v", domain.ErrInvalidOption, domain.OptionReplyMarkup, err)
		}
		out.markup = &markup
	}

	if raw, ok := options[domain.OptionDisableWebPagePreview]; ok {
		disabled, err := strconv.ParseBool(raw)
		if err != nil {
			return out, fmt.Errorf("%w: %s: %v", domain.ErrInvalidOption, domain.OptionDisableWebPagePreview, err)
		}
		if disabled {
			out.linkPreview = &models.LinkPreviewOptions{IsDisabled: bot.True()}
		}
	}

	if raw, ok := options[domain.OptionDisableNotification]; ok {
		disabled, err := strconv.ParseBool(raw)
		if err != nil {
			return out, fmt.Errorf("%w: %s: %v", domain.ErrInvalidOption, domain.OptionDisableNotification, err)
		}
		out.disableNotification = disabled
	}

	return out, nil
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram client error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}
