package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so call sites keep the fluent event API.
type Logger struct {
	zerolog.Logger
}

// Config for logger construction.
type Config struct {
	Level       string
	Environment string
	ServiceName string
	Version     string
}

// New builds a service logger. JSON output everywhere except development,
// where a console writer is used.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	var l zerolog.Logger
	if cfg.Environment == "development" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		l = zerolog.New(os.Stdout)
	}

	l = l.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Logger()

	return &Logger{Logger: l}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
