// Package logging provides structured logging setup for the bot.
package logging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bus_eta_bot/internal/config"
)

const serviceName = "bus-eta-bot"

var baseLogger *logrus.Entry

// Context captures common optional fields to attach to log entries.
type Context struct {
	InvocationID string
	UserID       int64
	ChatID       int64
	MessageID    int
	Event        string
}

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Setup configures the global logger using the provided runtime configuration.
// It applies environment-specific formatting, log level, and default fields.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatterForEnv(cfg.AppEnv))

	baseLogger = logger.WithFields(logrus.Fields{
		"service": serviceName,
		"env":     cfg.AppEnv,
	})

	return baseLogger, nil
}

// Logger returns the configured base logger, initializing a default one if Setup
// has not been called (useful for early boot errors).
func Logger() *logrus.Entry {
	return ensureLogger()
}

// WithContext returns a logger entry enriched with contextual fields when
// provided. Fields are omitted when zero-valued.
func WithContext(ctx Context) *logrus.Entry {
	return logWithFields(ctx.Fields())
}

// Fields returns the non-zero fields of c, for enriching an existing entry.
func (c Context) Fields() logrus.Fields {
	fields := logrus.Fields{}

	if strings.TrimSpace(c.InvocationID) != "" {
		fields["invocation_id"] = c.InvocationID
	}
	if c.UserID != 0 {
		fields["user_id"] = c.UserID
	}
	if c.ChatID != 0 {
		fields["chat_id"] = c.ChatID
	}
	if c.MessageID != 0 {
		fields["message_id"] = c.MessageID
	}
	if strings.TrimSpace(c.Event) != "" {
		fields["event"] = strings.TrimSpace(c.Event)
	}

	return fields
}

type entryKey struct{}

// IntoContext attaches entry to ctx so downstream components log with the
// same invocation fields.
func IntoContext(ctx context.Context, entry *logrus.Entry) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if entry == nil {
		return ctx
	}

	return context.WithValue(ctx, entryKey{}, entry)
}

// FromContext returns the entry attached to ctx, or fallback when there is
// none. A nil fallback resolves to the base logger.
func FromContext(ctx context.Context, fallback *logrus.Entry) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(entryKey{}).(*logrus.Entry); ok && entry != nil {
			return entry
		}
	}
	if fallback != nil {
		return fallback
	}

	return ensureLogger()
}

// Info logs an informational message with optional structured fields.
func Info(msg string, fields logrus.Fields) {
	logWithFields(fields).Info(msg)
}

// Warn logs a warning message with optional structured fields.
func Warn(msg string, fields logrus.Fields) {
	logWithFields(fields).Warn(msg)
}

// Error logs an error message with optional structured fields.
func Error(msg string, fields logrus.Fields) {
	logWithFields(fields).Error(msg)
}

func logWithFields(fields logrus.Fields) *logrus.Entry {
	entry := ensureLogger()
	if len(fields) == 0 {
		return entry
	}

	return entry.WithFields(fields)
}

func ensureLogger() *logrus.Entry {
	if baseLogger != nil {
		return baseLogger
	}

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(formatterForEnv(config.DefaultAppEnv))

	baseLogger = logger.WithFields(logrus.Fields{
		"service": serviceName,
		"env":     config.DefaultAppEnv,
	})

	return baseLogger
}

func formatterForEnv(appEnv string) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}

	if appEnv == config.EnvDevelopment {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}

	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}

func parseLevel(value string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", value, err)
	}

	return level, nil
}

// resetLogger clears the cached logger; used in tests.
func resetLogger() {
	baseLogger = nil
}
