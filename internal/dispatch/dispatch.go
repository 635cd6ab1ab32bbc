// Package dispatch runs one inbound update through classification, command
// or callback handling, delivery and reply caching.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bus_eta_bot/internal/domain"
	"bus_eta_bot/internal/logging"
	"bus_eta_bot/internal/telegram"
)

// Executor handles text messages.
type Executor interface {
	Execute(ctx context.Context, req domain.ParsedRequest) (*domain.ReplyInstruction, error)
}

// Resolver handles inline keyboard presses.
type Resolver interface {
	Resolve(ctx context.Context, query domain.CallbackQuery) (*domain.ReplyInstruction, error)
}

// Transport delivers reply instructions.
type Transport interface {
	Send(ctx context.Context, instr domain.ReplyInstruction) (int, error)
	Edit(ctx context.Context, instr domain.ReplyInstruction) error
	AnswerCallback(ctx context.Context, queryID string) error
}

// ReplyCache stores what was sent so it can be restored later.
type ReplyCache interface {
	Record(ctx context.Context, reply domain.CachedReply) error
}

// HistoryRecorder logs inbound updates.
type HistoryRecorder interface {
	Record(ctx context.Context, event domain.Event) error
}

// Result describes a completed invocation.
type Result struct {
	InvocationID  string
	UpdateID      int64
	Kind          domain.InteractionKind
	Instruction   *domain.ReplyInstruction
	SentMessageID int
}

// Dispatcher wires the pipeline for a single update.
type Dispatcher struct {
	executor  Executor
	resolver  Resolver
	transport Transport
	cache     ReplyCache
	history   HistoryRecorder
	logger    *logrus.Entry
	newID     func() string
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithHistory records every classified update before it is handled.
func WithHistory(history HistoryRecorder) Option {
	return func(d *Dispatcher) {
		if history != nil {
			d.history = history
		}
	}
}

// New constructs a Dispatcher.
func New(executor Executor, resolver Resolver, transport Transport, cache ReplyCache, logger *logrus.Entry, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = logging.Logger()
	}

	d := &Dispatcher{
		executor:  executor,
		resolver:  resolver,
		transport: transport,
		cache:     cache,
		logger:    logger,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch handles the raw update body. Malformed bodies yield
// domain.ErrMalformedEvent; failures after classification are returned
// wrapped. A nil Instruction in the result means no reply was due.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) (Result, error) {
	if d == nil || d.executor == nil || d.resolver == nil || d.transport == nil || d.cache == nil {
		return Result{}, errors.New("dispatcher is not initialized")
	}
	if ctx == nil {
		return Result{}, errors.New("context is required")
	}

	result := Result{InvocationID: d.newID()}
	logger := logging.FromContext(ctx, d.logger).WithFields(logging.Context{InvocationID: result.InvocationID}.Fields())
	ctx = logging.IntoContext(ctx, logger)

	event, err := telegram.Classify(raw)
	if err != nil {
		logger.WithField("event", "update_rejected").WithError(err).Warn("rejected malformed update")
		return result, err
	}
	result.UpdateID = event.UpdateID
	result.Kind = event.Kind

	logger = logger.WithFields(eventContext(event).Fields()).WithFields(logging.Fields{
		"update_id":   event.UpdateID,
		"update_type": event.Kind,
	})
	ctx = logging.IntoContext(ctx, logger)
	logger.WithField("event", "update_received").Info("update received")

	if d.history != nil {
		if err := d.history.Record(ctx, event); err != nil {
			logger.WithField("event", "history_failed").WithError(err).Warn("failed to record update history")
		}
	}

	switch event.Kind {
	case domain.KindNewMessage, domain.KindEditedMessage:
		return d.handleMessage(ctx, logger, result, event)
	case domain.KindCallbackQuery:
		return d.handleCallback(ctx, logger, result, event)
	default:
		return result, fmt.Errorf("%w: %s", domain.ErrUnsupportedInteraction, event.Kind)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, logger *logrus.Entry, result Result, event domain.Event) (Result, error) {
	req := telegram.ParseRequest(event.Kind, *event.Message)

	instr, err := d.executor.Execute(ctx, req)
	if err != nil {
		return result, fmt.Errorf("execute %s: %w", describe(req), err)
	}
	result.Instruction = instr
	if instr == nil {
		logger.WithField("event", "reply_skipped").Debug("no reply for update")
		return result, nil
	}

	messageID, err := d.emit(ctx, instr)
	if err != nil {
		return result, err
	}
	result.SentMessageID = messageID

	if !instr.IsEdit() {
		d.cacheReply(ctx, logger, req.ChatID, req.MessageID, instr, messageID)
	}

	return result, nil
}

func (d *Dispatcher) handleCallback(ctx context.Context, logger *logrus.Entry, result Result, event domain.Event) (Result, error) {
	query := *event.Callback
	defer d.answer(ctx, logger, query.QueryID)

	instr, err := d.resolver.Resolve(ctx, query)
	if err != nil {
		return result, fmt.Errorf("resolve callback: %w", err)
	}
	result.Instruction = instr
	if instr == nil {
		logger.WithField("event", "reply_skipped").Debug("nothing to edit for callback")
		return result, nil
	}

	messageID, err := d.emit(ctx, instr)
	if err != nil {
		return result, err
	}
	result.SentMessageID = messageID

	return result, nil
}

func (d *Dispatcher) emit(ctx context.Context, instr *domain.ReplyInstruction) (int, error) {
	if err := instr.Options.Validate(); err != nil {
		return 0, err
	}

	if instr.IsEdit() {
		if err := d.transport.Edit(ctx, *instr); err != nil {
			return 0, err
		}
		return instr.TargetMessageID, nil
	}

	messageID, err := d.transport.Send(ctx, *instr)
	if err != nil {
		return 0, err
	}
	return messageID, nil
}

func (d *Dispatcher) cacheReply(ctx context.Context, logger *logrus.Entry, chatID int64, incomingID int, instr *domain.ReplyInstruction, outgoingID int) {
	reply := domain.CachedReply{
		Incoming: domain.IncomingLink{
			ChatID:         chatID,
			MessageID:      incomingID,
			ReplyChatID:    instr.ChatID,
			ReplyMessageID: outgoingID,
		},
		Outgoing: domain.OutgoingReply{
			ChatID:    instr.ChatID,
			MessageID: outgoingID,
			Text:      instr.Text,
			Options:   instr.Options,
		},
	}

	if err := d.cache.Record(ctx, reply); err != nil {
		logger.WithFields(logging.Fields{
			"event":      "reply_cache_failed",
			"chat_id":    instr.ChatID,
			"message_id": outgoingID,
		}).WithError(err).Error("failed to cache reply")
	}
}

func (d *Dispatcher) answer(ctx context.Context, logger *logrus.Entry, queryID string) {
	if queryID == "" {
		return
	}
	if err := d.transport.AnswerCallback(ctx, queryID); err != nil {
		logger.WithField("event", "callback_answer_failed").WithError(err).Warn("failed to answer callback query")
	}
}

func describe(req domain.ParsedRequest) string {
	if req.HasCommand {
		return "command " + req.Command
	}
	return "continuation"
}

func eventContext(event domain.Event) logging.Context {
	switch {
	case event.Message != nil:
		return logging.Context{
			UserID:    event.Message.UserID,
			ChatID:    event.Message.ChatID,
			MessageID: event.Message.MessageID,
		}
	case event.Callback != nil:
		return logging.Context{
			UserID:    event.Callback.UserID,
			ChatID:    event.Callback.ChatID,
			MessageID: event.Callback.MessageID,
		}
	default:
		return logging.Context{}
	}
}
