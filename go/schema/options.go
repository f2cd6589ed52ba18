// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
)

// Options are engine defaults, usually loaded from a TOML file.
type Options struct {
	Endian    Endian
	MaxCount  int
	LogLevel  string
	LogFormat string
}

type fileOptions struct {
	Endian    string `toml:"endian"`
	MaxCount  int    `toml:"max_count"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// DefaultOptions are used for every key the file leaves out.
func DefaultOptions() Options {
	return Options{
		Endian:    Unspecified,
		MaxCount:  DefaultMaxCount,
		LogLevel:  "disabled",
		LogFormat: "console",
	}
}

// LoadOptions reads a TOML options file.
func LoadOptions(path string) (Options, error) {
	var raw fileOptions
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Options{}, fmt.Errorf("load options: %w", err)
	}
	return raw.apply(meta, DefaultOptions())
}

// DecodeOptions parses TOML options from a string.
func DecodeOptions(data string) (Options, error) {
	var raw fileOptions
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Options{}, fmt.Errorf("decode options: %w", err)
	}
	return raw.apply(meta, DefaultOptions())
}

func (raw fileOptions) apply(meta toml.MetaData, opts Options) (Options, error) {
	if meta.IsDefined("endian") {
		e, err := ParseEndian(raw.Endian)
		if err != nil {
			return Options{}, fmt.Errorf("parse endian: %w", err)
		}
		opts.Endian = e
	}

	if meta.IsDefined("max_count") {
		if raw.MaxCount <= 0 {
			return Options{}, fmt.Errorf("max_count must be positive, got %d", raw.MaxCount)
		}
		opts.MaxCount = raw.MaxCount
	}

	if meta.IsDefined("log_level") {
		if _, ok := parseLevel(raw.LogLevel); !ok {
			return Options{}, fmt.Errorf("unknown log_level: %q", raw.LogLevel)
		}
		opts.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("log_format") {
		switch f := strings.ToLower(strings.TrimSpace(raw.LogFormat)); f {
		case "console", "json":
			opts.LogFormat = f
		default:
			return Options{}, fmt.Errorf("unknown log_format: %q", raw.LogFormat)
		}
	}

	return opts, nil
}

// Config builds a top-level configuration. Log output goes to w.
func (o Options) Config(w io.Writer) Config {
	lvl, _ := parseLevel(o.LogLevel)
	logger := NewLogger(w, lvl, o.LogFormat)
	return Config{
		Endian:   o.Endian,
		MaxCount: o.MaxCount,
		Logger:   &logger,
	}
}
