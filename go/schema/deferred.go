// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

// AfterParser is implemented by values that finish their parse in a second
// step, after the surrounding scope has been read. Pointers use it to read
// their target.
type AfterParser interface {
	AfterParse(r *Reader, cfg Config) error
}

// deferredEntry refers to a record slot by field index. The value is held
// directly so the registry never points back into the frame.
type deferredEntry struct {
	index int
	field *Field
	value any
	cfg   Config
}

type deferredRegistry struct {
	entries []deferredEntry
}

func (d *deferredRegistry) add(index int, fd *Field, v any, cfg Config) {
	d.entries = append(d.entries, deferredEntry{index: index, field: fd, value: v, cfg: cfg})
}

// run resolves every registered value in declaration order. By now all
// siblings are materialized, so offset expressions may reference any of
// them.
func (d *deferredRegistry) run(f *readFrame) error {
	for _, e := range d.entries {
		f.log.Debug().Str("type", f.rec.Type).Str("field", e.field.name).Int("index", e.index).
			Msg("deferred postprocess")
		if err := postprocess(e.field, e.value, f.r, e.cfg, f.scope); err != nil {
			return err
		}
	}
	d.entries = nil
	return nil
}

func needsPostprocess(v any) bool {
	switch x := v.(type) {
	case AfterParser:
		return true
	case []any:
		for _, e := range x {
			if needsPostprocess(e) {
				return true
			}
		}
	}
	return false
}

// postprocess evaluates the field's pointer base and runs the hooks of v.
func postprocess(fd *Field, v any, r *Reader, cfg Config, s *Scope) error {
	if fd.offset != nil {
		off, err := fd.offset.evalInt(s)
		if err != nil {
			return err
		}
		cfg.Offset = off
	}
	return afterParse(v, r, cfg)
}

func afterParse(v any, r *Reader, cfg Config) error {
	switch x := v.(type) {
	case AfterParser:
		return x.AfterParse(r, cfg)
	case []any:
		for _, e := range x {
			if err := afterParse(e, r, cfg); err != nil {
				return err
			}
		}
	}
	return nil
}
