// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Pointer is an offset of type Width followed at another position by a value
// of type Target. The offset is relative to Config.Offset.
type Pointer struct {
	Width  Type
	Target Type
}

func Ptr8(target Type) *Pointer  { return &Pointer{Width: U8, Target: target} }
func Ptr16(target Type) *Pointer { return &Pointer{Width: U16, Target: target} }
func Ptr32(target Type) *Pointer { return &Pointer{Width: U32, Target: target} }
func Ptr64(target Type) *Pointer { return &Pointer{Width: U64, Target: target} }

func (p *Pointer) String() string { return fmt.Sprintf("ptr<%v,%v>", p.Width, p.Target) }

// Imports forwards the target's contract; arguments passed to a pointer
// field reach the target.
func (p *Pointer) Imports() []Import {
	im, _ := importsOf(p.Target)
	return im
}

// Read reads only the offset. The target is read by AfterParse.
func (p *Pointer) Read(r *Reader, cfg Config) (any, error) {
	v, err := p.Width.Read(r, cfg)
	if err != nil {
		return nil, err
	}
	off, ok := toInt64(v)
	if !ok {
		return nil, contractf("pointer width %v decoded %T", p.Width, v)
	}
	return &PtrValue{Offset: off, target: p.Target}, nil
}

// Write emits a zero placeholder and queues the target. The writer appends
// queued targets at the end of the stream and patches the placeholders.
func (p *Pointer) Write(w *Writer, cfg Config, v any) error {
	pos, err := w.Pos()
	if err != nil {
		return err
	}
	var value any
	switch x := v.(type) {
	case nil:
		return p.Width.Write(w, cfg, 0)
	case *PtrValue:
		if x == nil || (!x.Resolved && x.Value == nil) {
			return p.Width.Write(w, cfg, 0)
		}
		value = x.Value
	default:
		value = v
	}
	if err := p.Width.Write(w, cfg, 0); err != nil {
		return err
	}
	w.pending = append(w.pending, pendingTarget{at: pos, ptr: p, value: value, cfg: cfg})
	return nil
}

// PtrValue is a parsed pointer. Value holds the target once resolved.
type PtrValue struct {
	Offset   int64
	Value    any
	Resolved bool
	target   Type
}

// AfterParse reads the target at Config.Offset+Offset and returns to where
// the cursor was.
func (p *PtrValue) AfterParse(r *Reader, cfg Config) error {
	if p.Resolved {
		return nil
	}
	if p.target == nil {
		return contractf("pointer at offset %d has no target type", p.Offset)
	}
	cfg, err := cfg.enter(r)
	if err != nil {
		return err
	}
	back, err := r.Pos()
	if err != nil {
		return err
	}
	if err := r.Seek(cfg.Offset + p.Offset); err != nil {
		return err
	}
	v, err := p.target.Read(r, cfg)
	if err != nil {
		return err
	}
	if err := afterParse(v, r, cfg); err != nil {
		return err
	}
	p.Value, p.Resolved = v, true
	return r.Seek(back)
}

func (p *PtrValue) MarshalJSON() ([]byte, error) {
	if p.Resolved {
		return json.Marshal(p.Value)
	}
	return json.Marshal(p.Offset)
}

// pendingTarget is a pointer whose target has not been written yet.
type pendingTarget struct {
	at    int64
	ptr   *Pointer
	value any
	cfg   Config
}

// finish is the second write pass. Targets go at the end of the stream in
// queue order; targets that contain pointers queue further work.
func (w *Writer) finish() error {
	for len(w.pending) > 0 {
		pt := w.pending[0]
		w.pending = w.pending[1:]

		if err := w.SeekFrom(0, io.SeekEnd); err != nil {
			return err
		}
		pos, err := w.Pos()
		if err != nil {
			return err
		}
		if err := pt.ptr.Target.Write(w, pt.cfg, pt.value); err != nil {
			return err
		}
		if err := w.Seek(pt.at); err != nil {
			return err
		}
		if err := pt.ptr.Width.Write(w, pt.cfg, pos-pt.cfg.Offset); err != nil {
			return err
		}
	}
	return w.SeekFrom(0, io.SeekEnd)
}
