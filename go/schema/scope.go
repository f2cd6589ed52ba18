// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

// Scope is what an expression can see: the siblings materialized so far in
// the record under construction and the arguments bound to the type.
type Scope struct {
	rec      *Record
	declared map[string]int
	args     Args
}

func newScope(rec *Record, declared map[string]int, args Args) *Scope {
	return &Scope{rec: rec, declared: declared, args: args}
}

// Get returns a sibling value or argument. A sibling that is declared but
// not materialized yet is an ordering violation.
func (s *Scope) Get(name string) (any, error) {
	if v, ok := s.rec.Get(name); ok {
		return v, nil
	}
	if _, ok := s.declared[name]; ok {
		return nil, contractf("%s: field %q referenced before it is parsed", s.rec.Type, name)
	}
	if v, ok := s.args[name]; ok {
		return v, nil
	}
	return nil, contractf("%s: unknown name %q", s.rec.Type, name)
}

// Int is Get followed by an integer conversion.
func (s *Scope) Int(name string) (int64, error) {
	v, err := s.Get(name)
	if err != nil {
		return 0, err
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, contractf("%s: %q is %T, not an integer", s.rec.Type, name, v)
	}
	return n, nil
}

// Arg returns a bound argument.
func (s *Scope) Arg(name string) (any, bool) {
	v, ok := s.args[name]
	return v, ok
}

// Record is the record under construction.
func (s *Scope) Record() *Record { return s.rec }

func (s *Scope) activation() map[string]any {
	act := make(map[string]any, len(s.args)+s.rec.Len())
	for k, v := range s.args {
		act[k] = toCEL(v)
	}
	for _, k := range s.rec.Keys() {
		v, _ := s.rec.Get(k)
		act[k] = toCEL(v)
	}
	return act
}
