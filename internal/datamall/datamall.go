// Package datamall queries the LTA Datamall bus arrival service.
package datamall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bus_eta_bot/internal/config"
	"bus_eta_bot/internal/logging"
)

const (
	busArrivalEndpoint = "BusArrival"
	defaultTimeout     = 10 * time.Second
	maxErrorBody       = 512
)

// StatusNotInOperation is reported for services not running at the moment.
const StatusNotInOperation = "Not In Operation"

// ArrivalDocument is the BusArrival response body.
type ArrivalDocument struct {
	Metadata  string           `json:"odata.metadata,omitempty"`
	BusStopID string           `json:"BusStopID"`
	Services  []ServiceArrival `json:"Services"`
}

// ServiceArrival lists the next three buses of one service.
type ServiceArrival struct {
	ServiceNo      string      `json:"ServiceNo"`
	Status         string      `json:"Status,omitempty"`
	Operator       string      `json:"Operator"`
	NextBus        ArrivingBus `json:"NextBus"`
	SubsequentBus  ArrivingBus `json:"SubsequentBus"`
	SubsequentBus3 ArrivingBus `json:"SubsequentBus3"`
}

// ArrivingBus describes one incoming bus. EstimatedArrival is an ISO-8601
// timestamp, or empty when unknown.
type ArrivingBus struct {
	EstimatedArrival string `json:"EstimatedArrival"`
	Latitude         string `json:"Latitude,omitempty"`
	Longitude        string `json:"Longitude,omitempty"`
	VisitNumber      string `json:"VisitNumber,omitempty"`
	Load             string `json:"Load,omitempty"`
	Feature          string `json:"Feature,omitempty"`
}

// InOperation reports whether the service is running.
func (s ServiceArrival) InOperation() bool {
	return s.Status != StatusNotInOperation
}

// Client fetches arrival data over HTTP.
type Client struct {
	endpoint   string
	accountKey string
	userID     string
	http       *http.Client
	logger     *logrus.Entry
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// NewClient builds a Client from the Datamall settings in cfg.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.DatamallAccountKey) == "" {
		return nil, errors.New("datamall account key is required")
	}

	base := strings.TrimSpace(cfg.DatamallURL)
	if base == "" {
		base = config.DefaultDatamallURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse datamall url: %w", err)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		endpoint:   base + busArrivalEndpoint,
		accountKey: cfg.DatamallAccountKey,
		userID:     cfg.DatamallUserID,
		http:       &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// FetchEtas returns arrivals at busStop, restricted to service when it is
// not empty.
func (c *Client) FetchEtas(ctx context.Context, busStop, service string) (ArrivalDocument, error) {
	if c == nil || c.http == nil {
		return ArrivalDocument{}, errors.New("datamall client is not initialized")
	}
	if ctx == nil {
		return ArrivalDocument{}, errors.New("context is required")
	}

	query := url.Values{}
	query.Set("BusStopID", busStop)
	if service != "" {
		query.Set("ServiceNo", service)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return ArrivalDocument{}, fmt.Errorf("build bus arrival request: %w", err)
	}
	req.Header.Set("AccountKey", c.accountKey)
	if c.userID != "" {
		req.Header.Set("UniqueUserId", c.userID)
	}
	req.Header.Set("accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return ArrivalDocument{}, fmt.Errorf("fetch bus arrivals for %s: %w", busStop, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return ArrivalDocument{}, fmt.Errorf("fetch bus arrivals for %s: unexpected status %d: %s", busStop, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc ArrivalDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return ArrivalDocument{}, fmt.Errorf("decode bus arrivals for %s: %w", busStop, err)
	}

	c.logger.WithFields(logging.Fields{
		"event":       "datamall_fetch",
		"bus_stop":    busStop,
		"service_no":  service,
		"services":    len(doc.Services),
		"duration_ms": time.Since(started).Milliseconds(),
	}).Debug("bus arrivals fetched")

	return doc, nil
}
