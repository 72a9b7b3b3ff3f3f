// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the structured logger shared by the daemon and the
// executor, built on log/slog.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the slog handler used for output.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Standard field keys, used consistently across daemon and executor logs.
const (
	WorkflowIDKey = "workflow_id"
	StepIDKey     = "step_id"
	StepTypeKey   = "step_type"
	ProviderKey   = "provider"
	DurationKey   = "duration_ms"
	ComponentKey  = "component"
	PIDKey        = "pid"
	ExitCodeKey   = "exit_code"
	StateKey      = "state"
)

// Config holds logger construction parameters.
type Config struct {
	Level  string // debug, info, warn, error
	Format Format
	Output io.Writer
}

// DefaultConfig returns the default logging configuration: info level,
// JSON output to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// FromEnv builds a Config from ARGO_LOG_LEVEL / ARGO_LOG_FORMAT, falling
// back to DefaultConfig for anything unset or unrecognized.
func FromEnv() Config {
	cfg := DefaultConfig()
	if lvl := os.Getenv("ARGO_LOG_LEVEL"); lvl != "" {
		cfg.Level = lvl
	}
	if fmtVal := strings.ToLower(os.Getenv("ARGO_LOG_FORMAT")); fmtVal == string(FormatText) {
		cfg.Format = FormatText
	}
	return cfg
}

func levelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New constructs a slog.Logger from cfg.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: levelFromString(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == FormatText {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}

// WithComponent returns a logger that tags every record with the given
// component name (e.g. "daemon", "executor", "registry").
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String(ComponentKey, component))
}

// Error returns a slog attribute carrying err, suitable as a trailing
// argument to any slog call: logger.Error("failed", log.Error(err)).
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
