package infrastructure

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/architeacher/mq-gateway/internal/config"
	"github.com/architeacher/mq-gateway/pkg/gateway"
)

// Logger adapts zerolog to the gateway logging interface.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger builds a zerolog-backed logger from the logging configuration.
func NewLogger(cfg config.LoggingConfig) Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return Logger{logger: logger.Level(level).With().Timestamp().Logger()}
}

// Info returns an info-level log event.
func (l Logger) Info() gateway.LogEvent { return logEvent{event: l.logger.Info()} }

// Error returns an error-level log event.
func (l Logger) Error() gateway.LogEvent { return logEvent{event: l.logger.Error()} }

// Debug returns a debug-level log event.
func (l Logger) Debug() gateway.LogEvent { return logEvent{event: l.logger.Debug()} }

type logEvent struct {
	event *zerolog.Event
}

func (e logEvent) Msg(msg string) { e.event.Msg(msg) }

func (e logEvent) Err(err error) gateway.LogEvent {
	return logEvent{event: e.event.Err(err)}
}

func (e logEvent) Str(key, value string) gateway.LogEvent {
	return logEvent{event: e.event.Str(key, value)}
}
