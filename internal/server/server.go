// Package server exposes the Telegram webhook together with health and stats
// endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"bus_eta_bot/internal/dispatch"
	"bus_eta_bot/internal/domain"
	"bus_eta_bot/internal/logging"
	"bus_eta_bot/internal/store"
)

const (
	mongoPingTimeout  = 2 * time.Second
	statsTimeout      = 5 * time.Second
	readHeaderTimeout = 2 * time.Second
	maxUpdateBytes    = 1 << 20
	listenPrefix      = ":"
)

// MongoChecker defines the subset of MongoDB client behavior required for health.
type MongoChecker interface {
	Ping(ctx context.Context) error
}

// Dispatcher handles one webhook update.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) (dispatch.Result, error)
}

// StatsProvider reports persisted state counts.
type StatsProvider interface {
	Snapshot(ctx context.Context) (store.Stats, error)
}

// Deps are the collaborators behind the HTTP endpoints. MongoChecker and
// Stats are optional.
type Deps struct {
	Dispatcher   Dispatcher
	MongoChecker MongoChecker
	Stats        StatsProvider
}

// Server hosts the webhook and diagnostics endpoints and owns the underlying
// HTTP server.
type Server struct {
	server       *http.Server
	logger       *logrus.Entry
	dispatcher   Dispatcher
	mongoChecker MongoChecker
	stats        StatsProvider
}

type healthResponse struct {
	Status string `json:"status"`
	Mongo  string `json:"mongo,omitempty"`
}

type webhookResponse struct {
	Status       string `json:"status"`
	InvocationID string `json:"invocation_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewServer constructs a server that accepts POST updates on webhookPath and
// exposes GET /healthz and GET /statsz on the provided port.
func NewServer(port int, webhookPath string, deps Deps, logger *logrus.Entry) (*Server, error) {
	if deps.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if webhookPath == "" || webhookPath[0] != '/' {
		return nil, fmt.Errorf("webhook path %q must start with /", webhookPath)
	}
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:       logger,
		dispatcher:   deps.Dispatcher,
		mongoChecker: deps.MongoChecker,
		stats:        deps.Stats,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/statsz", srv.handleStats)
	mux.HandleFunc(webhookPath, srv.handleWebhook)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", listenPrefix, port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv, nil
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "http_listen",
		"addr":  s.server.Addr,
	}).Info("starting http server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "http_stopped").Info("http server stopped")
			return nil
		}

		return fmt.Errorf("http server listen: %w", err)
	}

	s.logger.WithField("event", "http_stopped").Info("http server stopped")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, s.logger, http.StatusMethodNotAllowed, webhookResponse{Status: "error", Error: "method not allowed"})
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpdateBytes))
	if err != nil {
		s.logger.WithField("event", "webhook_read_error").WithError(err).Warn("failed to read update body")
		writeJSON(w, s.logger, http.StatusBadRequest, webhookResponse{Status: "error", Error: "unreadable body"})
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), raw)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrMalformedEvent) {
			status = http.StatusBadRequest
		}

		s.logger.WithFields(logging.Fields{
			"event":         "webhook_failed",
			"invocation_id": result.InvocationID,
			"status":        status,
		}).WithError(err).Error("update handling failed")

		writeJSON(w, s.logger, status, webhookResponse{Status: "error", InvocationID: result.InvocationID, Error: err.Error()})
		return
	}

	writeJSON(w, s.logger, http.StatusOK, webhookResponse{Status: "ok", InvocationID: result.InvocationID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if s.mongoChecker != nil {
		pingCtx, cancel := context.WithTimeout(r.Context(), mongoPingTimeout)
		err := s.mongoChecker.Ping(pingCtx)
		cancel()

		if err != nil {
			resp.Status = "degraded"
			resp.Mongo = "error"
			s.logger.WithFields(logging.Fields{
				"event": "health_mongo_error",
			}).WithError(err).Warn("mongo ping failed during health check")
		}
	}

	writeJSON(w, s.logger, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeJSON(w, s.logger, http.StatusServiceUnavailable, webhookResponse{Status: "error", Error: "stats unavailable"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()

	snapshot, err := s.stats.Snapshot(ctx)
	if err != nil {
		s.logger.WithField("event", "stats_error").WithError(err).Warn("failed to collect stats")
		writeJSON(w, s.logger, http.StatusInternalServerError, webhookResponse{Status: "error", Error: "stats failed"})
		return
	}

	writeJSON(w, s.logger, http.StatusOK, snapshot)
}

func writeJSON(w http.ResponseWriter, logger *logrus.Entry, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithField("event", "http_write_error").WithError(err).Error("failed to encode response")
	}
}
