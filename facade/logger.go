// File: facade/logger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Structured logging setup shared by every component of a Context.

package facade

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvLogLevel overrides the configured log level when set.
const EnvLogLevel = "HIOLOAD_MQ_LOG_LEVEL"

// LogConfig selects level and encoding of the Context logger.
type LogConfig struct {
	Level  string // trace, debug, info, warn, error, disabled
	Format string // console or json
	Output io.Writer
}

// NewLogger builds a zerolog logger from cfg and the environment.
func NewLogger(cfg LogConfig) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	level := zerolog.InfoLevel
	if lvl, ok := parseLevel(cfg.Level); ok {
		level = lvl
	}
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}

	var w io.Writer = out
	if !strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", "hioload-mq").Logger()
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "off", "disabled", "none":
		return zerolog.Disabled, true
	}
	return zerolog.InfoLevel, false
}
