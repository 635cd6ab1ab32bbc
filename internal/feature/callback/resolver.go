// Package callback resolves inline keyboard presses into message edits.
package callback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bus_eta_bot/internal/datamall"
	"bus_eta_bot/internal/domain"
	"bus_eta_bot/internal/eta"
	"bus_eta_bot/internal/logging"
)

// ReplyCache looks up what the bot previously sent.
type ReplyCache interface {
	Outgoing(ctx context.Context, chatID int64, messageID int) (*domain.OutgoingReply, error)
}

// ArrivalFetcher retrieves bus arrivals for a stop.
type ArrivalFetcher interface {
	FetchEtas(ctx context.Context, busStop, service string) (datamall.ArrivalDocument, error)
}

// Resolver maps Refresh and Done presses to edits of the message carrying
// the keyboard.
type Resolver struct {
	cache   ReplyCache
	fetcher ArrivalFetcher
	logger  *logrus.Entry
	now     func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(cache ReplyCache, fetcher ArrivalFetcher, logger *logrus.Entry) *Resolver {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Resolver{
		cache:   cache,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve returns the edit for query, or nil when there is nothing to edit.
func (r *Resolver) Resolve(ctx context.Context, query domain.CallbackQuery) (*domain.ReplyInstruction, error) {
	if r == nil || r.cache == nil || r.fetcher == nil {
		return nil, errors.New("callback resolver is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	logger := logging.FromContext(ctx, r.logger).WithFields(logging.Context{
		ChatID:    query.ChatID,
		MessageID: query.MessageID,
		UserID:    query.UserID,
	}.Fields())

	if !query.HasMessage {
		logger.WithField("event", "callback_detached").Debug("callback has no message to edit")
		return nil, nil
	}

	payload, err := eta.DecodePayload(query.Data)
	if err != nil {
		return nil, err
	}

	if payload.Type != eta.PayloadTypeEta {
		logger.WithFields(logging.Fields{
			"event":        "callback_unknown",
			"payload_type": payload.Type,
		}).Warn("ignoring callback with unknown type")
		return nil, nil
	}

	if payload.Done {
		return r.done(ctx, logger, query)
	}
	return r.refresh(ctx, logger, query, payload)
}

func (r *Resolver) done(ctx context.Context, logger *logrus.Entry, query domain.CallbackQuery) (*domain.ReplyInstruction, error) {
	cached, err := r.cache.Outgoing(ctx, query.ChatID, query.MessageID)
	if err != nil {
		return nil, fmt.Errorf("load cached reply: %w", err)
	}
	if cached == nil {
		return nil, fmt.Errorf("%w: chat %d message %d", domain.ErrCacheMiss, query.ChatID, query.MessageID)
	}

	logger.WithField("event", "callback_done").Info("restoring cached reply")

	return domain.NewEdit(query.ChatID, query.MessageID, cached.Text, cached.Options.Without(domain.OptionReplyMarkup)), nil
}

func (r *Resolver) refresh(ctx context.Context, logger *logrus.Entry, query domain.CallbackQuery, payload eta.Payload) (*domain.ReplyInstruction, error) {
	doc, err := r.fetcher.FetchEtas(ctx, payload.BusStop, payload.ServiceNo)
	if err != nil {
		return nil, fmt.Errorf("fetch etas: %w", err)
	}

	rendered, err := eta.Render(payload.BusStop, payload.ServiceNo, doc, r.now())
	if err != nil {
		return nil, err
	}

	logger.WithFields(logging.Fields{
		"event":      "callback_refresh",
		"bus_stop":   payload.BusStop,
		"service_no": payload.ServiceNo,
	}).Info("refreshing etas")

	return domain.NewEdit(query.ChatID, query.MessageID, rendered.Text, rendered.Options), nil
}
