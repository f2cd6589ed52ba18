// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"bytes"

	"github.com/Velocidex/ordereddict"
	"github.com/goccy/go-json"
)

// Record is the in-memory value of a struct or enum variant. Fields keep
// declaration order.
type Record struct {
	Type    string
	Variant string
	fields  *ordereddict.Dict
}

// NewRecord returns an empty record for the named type.
func NewRecord(typeName string) *Record {
	return &Record{Type: typeName, fields: ordereddict.NewDict()}
}

// NewVariant returns an empty record for one arm of an enum.
func NewVariant(typeName, variant string) *Record {
	r := NewRecord(typeName)
	r.Variant = variant
	return r
}

// Set stores a field value and returns r for chaining.
func (r *Record) Set(name string, v any) *Record {
	r.fields.Set(name, v)
	return r
}

// Get returns a field value. Absent fields are stored as nil and still
// report ok.
func (r *Record) Get(name string) (any, bool) {
	return r.fields.Get(name)
}

// Keys returns field names in order.
func (r *Record) Keys() []string { return r.fields.Keys() }

// Len is the number of stored fields.
func (r *Record) Len() int { return r.fields.Len() }

// Map returns a plain copy of the fields. Nested records are converted too.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, r.Len())
	for _, k := range r.Keys() {
		v, _ := r.Get(k)
		out[k] = plain(v)
	}
	return out
}

func plain(v any) any {
	switch x := v.(type) {
	case *Record:
		return x.Map()
	case *PtrValue:
		if !x.Resolved {
			return x.Offset
		}
		return plain(x.Value)
	case []any:
		out := make([]any, len(x))
		for i, ev := range x {
			out[i] = plain(ev)
		}
		return out
	}
	return v
}

// MarshalJSON writes fields in declaration order. A variant record carries
// its arm name under "$variant".
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writeKey := func(k string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		return nil
	}
	if r.Variant != "" {
		if err := writeKey("$variant"); err != nil {
			return nil, err
		}
		vb, _ := json.Marshal(r.Variant)
		buf.Write(vb)
	}
	for _, k := range r.Keys() {
		if err := writeKey(k); err != nil {
			return nil, err
		}
		v, _ := r.Get(k)
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// asRecord accepts the value forms a struct writer understands.
func asRecord(typeName string, v any) (*Record, error) {
	switch x := v.(type) {
	case *Record:
		return x, nil
	case map[string]any:
		r := NewRecord(typeName)
		for k, fv := range x {
			if k == "$variant" {
				r.Variant, _ = fv.(string)
				continue
			}
			r.Set(k, fv)
		}
		return r, nil
	case nil:
		return nil, contractf("%s: cannot write nil", typeName)
	}
	return nil, contractf("%s: cannot write %T as a record", typeName, v)
}
