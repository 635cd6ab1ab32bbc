// Package command executes text commands and carries unfinished commands
// over to the user's next message.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bus_eta_bot/internal/datamall"
	"bus_eta_bot/internal/domain"
	"bus_eta_bot/internal/eta"
	"bus_eta_bot/internal/logging"
)

// Recognised commands.
const (
	CommandEta        = "/eta"
	CommandRedial     = "/redial"
	CommandFavourites = "/favourites"
	CommandSave       = "/save"
	CommandDelete     = "/delete"
)

// StateStore persists per-user conversation state.
type StateStore interface {
	Get(ctx context.Context, key domain.StateKey) (*domain.PendingCommand, error)
	Put(ctx context.Context, record domain.PendingCommand) error
	Delete(ctx context.Context, key domain.StateKey) error
}

// ArrivalFetcher retrieves bus arrivals for a stop.
type ArrivalFetcher interface {
	FetchEtas(ctx context.Context, busStop, service string) (datamall.ArrivalDocument, error)
}

// Executor turns parsed requests into reply instructions.
type Executor struct {
	state   StateStore
	fetcher ArrivalFetcher
	logger  *logrus.Entry
	now     func() time.Time
}

// NewExecutor constructs an Executor.
func NewExecutor(state StateStore, fetcher ArrivalFetcher, logger *logrus.Entry) *Executor {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Executor{
		state:   state,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
}

// Execute runs req and returns the reply to send, or nil when the request
// warrants no reply.
func (e *Executor) Execute(ctx context.Context, req domain.ParsedRequest) (*domain.ReplyInstruction, error) {
	if e == nil || e.state == nil || e.fetcher == nil {
		return nil, errors.New("command executor is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	if req.Kind == domain.KindEditedMessage {
		return nil, fmt.Errorf("%w: edited messages", domain.ErrUnsupportedInteraction)
	}

	if !req.HasCommand {
		return e.continuePending(ctx, req)
	}

	switch req.Command {
	case CommandEta:
		if req.Args == "" {
			return e.promptEta(ctx, req)
		}
		busStop, service := parseEtaArgs(req.Args)
		return e.eta(ctx, req, busStop, service)
	case CommandRedial:
		return e.redial(ctx, req)
	case CommandFavourites, CommandSave, CommandDelete:
		e.log(ctx, req).WithFields(logging.Fields{
			"event":   "command_placeholder",
			"command": req.Command,
		}).Debug("command not available yet")
		return nil, nil
	default:
		return e.invalid(ctx, req), nil
	}
}

func (e *Executor) promptEta(ctx context.Context, req domain.ParsedRequest) (*domain.ReplyInstruction, error) {
	logger := e.log(ctx, req)

	if req.IsGroup {
		logger.WithField("event", "command_prompt_skipped").Debug("two-part queries are not offered in groups")
		return nil, nil
	}

	record := domain.PendingCommand{
		ChatID:  req.ChatID,
		UserID:  req.UserID,
		Purpose: domain.PurposeUnfinishedCommand,
		Command: domain.CommandEta,
	}
	if err := e.state.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("save pending command: %w", err)
	}

	logger.WithField("event", "command_pending").Info("waiting for bus stop")

	return domain.NewSend(req.ChatID, domain.MsgSendBusStop, nil), nil
}

func (e *Executor) continuePending(ctx context.Context, req domain.ParsedRequest) (*domain.ReplyInstruction, error) {
	key := domain.StateKey{ChatID: req.ChatID, UserID: req.UserID, Purpose: domain.PurposeUnfinishedCommand}

	record, err := e.state.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load pending command: %w", err)
	}
	if record == nil {
		return e.invalid(ctx, req), nil
	}

	logger := e.log(ctx, req).WithField("command", record.Command)

	switch record.Command {
	case domain.CommandEta:
		if req.Args == "" {
			logger.WithField("event", "command_pending").Debug("continuation was empty, prompting again")
			return domain.NewSend(req.ChatID, domain.MsgSendBusStop, nil), nil
		}

		busStop, service := parseEtaArgs(req.Args)
		reply, execErr := e.eta(ctx, req, busStop, service)

		var deleteErr error
		if err := e.state.Delete(ctx, key); err != nil {
			deleteErr = fmt.Errorf("delete pending command: %w", err)
		}

		if err := errors.Join(execErr, deleteErr); err != nil {
			return nil, err
		}

		logger.WithField("event", "command_resumed").Info("pending command completed")
		return reply, nil
	default:
		logger.WithField("event", "command_pending_unknown").Warn("discarding unknown pending command")
		if err := e.state.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("delete pending command: %w", err)
		}
		return e.invalid(ctx, req), nil
	}
}

func (e *Executor) redial(ctx context.Context, req domain.ParsedRequest) (*domain.ReplyInstruction, error) {
	key := domain.StateKey{ChatID: req.ChatID, UserID: req.UserID, Purpose: domain.PurposeRedial}

	record, err := e.state.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load redial: %w", err)
	}
	if record == nil || record.BusStop == "" {
		// The user is not told why.
		return e.invalid(ctx, req), nil
	}

	return e.eta(ctx, req, record.BusStop, record.ServiceNo)
}

func (e *Executor) eta(ctx context.Context, req domain.ParsedRequest, busStop, service string) (*domain.ReplyInstruction, error) {
	doc, err := e.fetcher.FetchEtas(ctx, busStop, service)
	if err != nil {
		return nil, fmt.Errorf("fetch etas: %w", err)
	}

	rendered, err := eta.Render(busStop, service, doc, e.now())
	if err != nil {
		return nil, err
	}

	if rendered.HasServices {
		record := domain.PendingCommand{
			ChatID:    req.ChatID,
			UserID:    req.UserID,
			Purpose:   domain.PurposeRedial,
			BusStop:   busStop,
			ServiceNo: service,
		}
		if err := e.state.Put(ctx, record); err != nil {
			return nil, fmt.Errorf("save redial: %w", err)
		}
	}

	e.log(ctx, req).WithFields(logging.Fields{
		"event":      "command_eta",
		"bus_stop":   busStop,
		"service_no": service,
		"services":   len(doc.Services),
	}).Info("etas rendered")

	return domain.NewSend(req.ChatID, rendered.Text, rendered.Options), nil
}

func (e *Executor) invalid(ctx context.Context, req domain.ParsedRequest) *domain.ReplyInstruction {
	logger := e.log(ctx, req).WithFields(logging.Fields{
		"event":   "command_invalid",
		"command": req.Command,
	})

	if req.IsGroup {
		logger.Debug("ignoring unrecognised request in group")
		return nil
	}

	logger.Info("unrecognised request")
	return domain.NewSend(req.ChatID, domain.MsgInvalidRequest, nil)
}

func (e *Executor) log(ctx context.Context, req domain.ParsedRequest) *logrus.Entry {
	return logging.FromContext(ctx, e.logger).WithFields(logging.Context{
		ChatID:    req.ChatID,
		UserID:    req.UserID,
		MessageID: req.MessageID,
	}.Fields())
}

// parseEtaArgs splits arguments into a stop code and an optional service.
func parseEtaArgs(args string) (busStop, service string) {
	parts := strings.Split(args, " ")
	busStop = parts[0]
	if len(parts) > 1 {
		service = parts[1]
	}
	return busStop, service
}
