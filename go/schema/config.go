// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
	"reflect"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxCount bounds count repetition when Config.MaxCount is zero.
	DefaultMaxCount = 1 << 24
	// DefaultMaxDepth bounds nested reads when Config.MaxDepth is zero.
	DefaultMaxDepth = 256
)

// Args is the argument bag passed to a type. Keys are the names of the
// callee's imports.
type Args map[string]any

// Config is the per-call configuration. It is passed by value; nested calls
// derive their own copy.
type Config struct {
	// Endian is the inherited byte order.
	Endian Endian
	// Args binds the target type's imports.
	Args Args
	// StartOffset, when set, is where a top-level call seeks before it
	// starts.
	StartOffset *int64
	// Offset is the base that pointer targets are relative to.
	Offset int64
	// MaxCount caps count repetition. Zero means DefaultMaxCount.
	MaxCount int
	// MaxDepth caps how deeply types and pointer targets may nest. Zero
	// means DefaultMaxDepth.
	MaxDepth int
	// Logger receives debug traces. Nil disables logging.
	Logger *zerolog.Logger

	depth int
}

// At returns a StartOffset value.
func At(pos int64) *int64 { return &pos }

func (c Config) maxCount() int {
	if c.MaxCount <= 0 {
		return DefaultMaxCount
	}
	return c.MaxCount
}

func (c Config) maxDepth() int {
	if c.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return c.MaxDepth
}

// enter descends one nesting level. Self-referencing types and pointer
// cycles stop here with an IOError instead of exhausting the stack.
func (c Config) enter(r *Reader) (Config, error) {
	if c.depth >= c.maxDepth() {
		pos, _ := r.Pos()
		return c, &IOError{Pos: pos, Err: fmt.Errorf("depth %d: %w", c.depth, ErrDepthExceeded)}
	}
	c.depth++
	return c, nil
}

var nopLogger = zerolog.Nop()

func (c Config) log() *zerolog.Logger {
	if c.Logger == nil {
		return &nopLogger
	}
	return c.Logger
}

// derive is the configuration handed to a nested read or write.
func (c Config) derive(endian Endian, args Args) Config {
	c.Endian = endian
	c.Args = args
	c.StartOffset = nil
	return c
}

// ArgKind constrains the value bound to an import.
type ArgKind int

const (
	AnyArg ArgKind = iota
	IntArg
	FloatArg
	StringArg
	BoolArg
	BytesArg
)

func (k ArgKind) String() string {
	switch k {
	case IntArg:
		return "int"
	case FloatArg:
		return "float"
	case StringArg:
		return "string"
	case BoolArg:
		return "bool"
	case BytesArg:
		return "bytes"
	}
	return "any"
}

// Import declares one argument a type expects.
type Import struct {
	Name string
	Kind ArgKind
}

// Importer is implemented by types that declare an import contract.
type Importer interface {
	Imports() []Import
}

func (k ArgKind) accepts(v any) bool {
	if k == AnyArg {
		return true
	}
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return k == IntArg || k == FloatArg
	case reflect.Float32, reflect.Float64:
		return k == FloatArg
	case reflect.String:
		return k == StringArg
	case reflect.Bool:
		return k == BoolArg
	case reflect.Slice:
		_, ok := v.([]byte)
		return ok && k == BytesArg
	}
	return false
}

// checkArgs validates a bag against an import contract.
func checkArgs(typeName string, imports []Import, args Args) error {
	for _, im := range imports {
		v, ok := args[im.Name]
		if !ok {
			return contractf("%s: missing argument %q", typeName, im.Name)
		}
		if !im.Kind.accepts(v) {
			return contractf("%s: argument %q wants %s, got %T", typeName, im.Name, im.Kind, v)
		}
	}
	return nil
}

func importNames(imports []Import) []string {
	names := make([]string, len(imports))
	for i, im := range imports {
		names[i] = im.Name
	}
	return names
}
