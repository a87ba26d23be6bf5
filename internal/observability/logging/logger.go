// Package logging configures the process-wide zerolog logger and hands out
// loggers tagged with assistant context (session, query, component).
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceName tags every record written by the default configuration.
const ServiceName = "voice-search-assistant"

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // empty keeps the current zerolog field format
	Service    string
	NoColor    bool // console format only
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
		Service:    ServiceName,
	}
}

// Init installs the global logger on stdout.
func Init(cfg Config) {
	InitWriter(cfg, os.Stdout)
}

// InitWriter installs the global logger on w. The terminal front-end
// points this at a file before it takes over the screen.
func InitWriter(cfg Config, w io.Writer) {
	log.Logger = New(cfg, w)
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
}

// New builds a logger for cfg without touching the global one.
func New(cfg Config, w io.Writer) zerolog.Logger {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	out := w
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05.000",
			NoColor:    cfg.NoColor,
		}
	}

	c := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Caller()
	if cfg.Service != "" {
		c = c.Str("service", cfg.Service)
	}
	return c.Logger()
}

// ParseLevel maps a configured level name to zerolog, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func WithSession(sessionID string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionID).
		Logger()
}

// ForSession tags a per-session component such as the recognizer or the
// WebSocket stream.
func ForSession(component, sessionID string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Str("sessionId", sessionID).
		Logger()
}

// WithQuery tags a submission.
func WithQuery(sessionID, query string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionID).
		Str("query", query).
		Logger()
}

func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
