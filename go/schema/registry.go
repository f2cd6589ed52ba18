// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
	"sync"
)

// Registry provides thread-safe type management with hot-swap. Schema
// documents parsed through a registry can refer to its types by name.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]Type
	versions map[string]uint64
	cfg      Config
}

// NewRegistry creates a new registry. cfg is used by Decode.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		types:    make(map[string]Type),
		versions: make(map[string]uint64),
		cfg:      cfg,
	}
}

// Register adds or replaces a type and returns its new version.
func (r *Registry) Register(name string, t Type) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types[name] = t
	r.versions[name]++
	r.cfg.log().Debug().Str("type", name).Uint64("version", r.versions[name]).Msg("registered")
	return r.versions[name]
}

// RegisterSchema parses a schema document and registers its root under the
// document name. Its local types are registered as name.type.
func (r *Registry) RegisterSchema(data string) (*Schema, uint64, error) {
	// Parse new schema BEFORE acquiring write lock
	s, err := parseSchema(data, r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for tn, t := range s.Types {
		key := s.Name + "." + tn
		r.types[key] = t
		r.versions[key]++
	}
	r.types[s.Name] = s.Root
	r.versions[s.Name]++
	return s, r.versions[s.Name], nil
}

// Lookup retrieves a type by name. Thread-safe for concurrent reads.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Version returns the current version of a type, zero when unknown.
func (r *Registry) Version(name string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.versions[name]
}

// Names returns every registered name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	return names
}

// Decode decodes data using the named type. The type may be swapped
// concurrently; the call uses whichever version it looked up.
func (r *Registry) Decode(name string, data []byte) (any, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("type '%s' not found", name)
	}
	return Unmarshal(data, t, r.cfg)
}
