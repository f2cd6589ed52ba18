// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "BINSCHEMA_LOG_LEVEL"
	EnvLogNoColor = "BINSCHEMA_LOG_NOCOLOR"
)

type envOverrides struct {
	level      zerolog.Level
	levelSet   bool
	noColor    bool
	noColorSet bool
}

var (
	envOnce sync.Once
	env     envOverrides
)

func loadEnvOverrides() envOverrides {
	envOnce.Do(func() {
		env.level, env.levelSet = parseLevel(os.Getenv(EnvLogLevel))
		env.noColor, env.noColorSet = parseBool(os.Getenv(EnvLogNoColor))
	})
	return env
}

// NewLogger builds an engine logger writing to w (stderr when nil). format is
// "console" or "json". The environment can override the level and colors.
func NewLogger(w io.Writer, lvl zerolog.Level, format string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	ov := loadEnvOverrides()
	if ov.levelSet {
		lvl = ov.level
	}

	out := w
	if format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    ov.noColorSet && ov.noColor,
		}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("component", "schema").Logger()
}

// sessionLogger tags a top-level call so nested traces can be correlated.
func sessionLogger(cfg Config, op string) Config {
	if cfg.Logger == nil || cfg.Logger.GetLevel() > zerolog.DebugLevel {
		return cfg
	}
	l := cfg.Logger.With().Str("session", uuid.NewString()).Str("op", op).Logger()
	cfg.Logger = &l
	return cfg
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
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
