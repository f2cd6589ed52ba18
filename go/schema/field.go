// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import "bytes"

// Timing selects when a field's postprocessing hook runs.
type Timing int

const (
	// Deferred hooks run after every inline field of the scope and see the
	// whole record.
	Deferred Timing = iota
	// Inline hooks run as soon as the field is produced and see only earlier
	// siblings.
	Inline
)

// ParseFunc replaces a field's own parse. Positional args arrive in
// cfg.Args as "arg0", "arg1" and so on.
type ParseFunc func(r *Reader, cfg Config) (any, error)

// WriteFunc replaces a field's own write.
type WriteFunc func(w *Writer, cfg Config, v any) error

// MapFunc converts a parsed value, or the inverse on write.
type MapFunc func(v any) (any, error)

// Field is one field directive. Build it with F and the chained setters; it
// is copied when the owning type is built.
type Field struct {
	name        string
	typ         Type
	endian      endianOverride
	magic       *Magic
	cond        *Expression
	dflt        bool
	timing      Timing
	offset      *Expression
	offsetAfter bool
	padBefore   int64
	padAfter    int64
	alignBefore int64
	alignAfter  int64
	padSizeTo   int64
	seek        *seekSpec
	count       *Expression
	mapFn       MapFunc
	unmapFn     MapFunc
	parseFn     ParseFunc
	writeFn     WriteFunc
	calc        *Expression
	try         bool
	restore     bool
	args        []*Expression
	asserts     []*Assert
}

type seekSpec struct {
	off    int64
	whence int
}

// F starts a field directive. typ may be nil for calc and custom parser
// fields.
func F(name string, typ Type) *Field {
	return &Field{name: name, typ: typ}
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

func (f *Field) Big() *Field    { f.endian = endianOverride{fixed: Big}; return f }
func (f *Field) Little() *Field { f.endian = endianOverride{fixed: Little}; return f }
func (f *Field) Native() *Field { f.endian = endianOverride{fixed: Native}; return f }

// Endian sets a fixed byte order. Unspecified clears the override.
func (f *Field) Endian(e Endian) *Field { f.endian = endianOverride{fixed: e}; return f }

// IsBig reads big endian when cond holds and little endian otherwise.
func (f *Field) IsBig(cond *Expression) *Field {
	f.endian = endianOverride{guard: cond, when: Big}
	return f
}

// IsLittle reads little endian when cond holds and big endian otherwise.
func (f *Field) IsLittle(cond *Expression) *Field {
	f.endian = endianOverride{guard: cond, when: Little}
	return f
}

func (f *Field) Magic(m *Magic) *Field { f.magic = m; return f }

// If makes the field conditional. A false condition stores nil.
func (f *Field) If(cond *Expression) *Field { f.cond = cond; return f }

// Default stores the zero value without touching the stream.
func (f *Field) Default() *Field { f.dflt = true; return f }

// Ignore is an alias for Default.
func (f *Field) Ignore() *Field { return f.Default() }

// Now runs the postprocessing hook inline.
func (f *Field) Now() *Field { f.timing = Inline; return f }

// DerefNow is an alias for Now.
func (f *Field) DerefNow() *Field { return f.Now() }

// PostprocessNow is an alias for Now.
func (f *Field) PostprocessNow() *Field { return f.Now() }

// Deferred restores the default timing.
func (f *Field) Deferred() *Field { f.timing = Deferred; return f }

// Offset sets the base pointer targets are relative to. It may only
// reference earlier siblings.
func (f *Field) Offset(e *Expression) *Field {
	f.offset, f.offsetAfter = e, false
	return f
}

// OffsetAfter is Offset evaluated in the deferred phase, so it may reference
// any sibling. The field must keep deferred timing.
func (f *Field) OffsetAfter(e *Expression) *Field {
	f.offset, f.offsetAfter = e, true
	return f
}

func (f *Field) PadBefore(n int64) *Field   { f.padBefore = n; return f }
func (f *Field) PadAfter(n int64) *Field    { f.padAfter = n; return f }
func (f *Field) AlignBefore(n int64) *Field { f.alignBefore = n; return f }
func (f *Field) AlignAfter(n int64) *Field  { f.alignAfter = n; return f }

// PadSizeTo skips forward until the field spans at least n bytes.
func (f *Field) PadSizeTo(n int64) *Field { f.padSizeTo = n; return f }

// SeekBefore seeks with io.Seeker semantics before anything else.
func (f *Field) SeekBefore(off int64, whence int) *Field {
	f.seek = &seekSpec{off: off, whence: whence}
	return f
}

// Count repeats the field's type n times into a []any.
func (f *Field) Count(n *Expression) *Field { f.count = n; return f }

// Map converts the parsed value. Writes store the value unchanged.
func (f *Field) Map(fn MapFunc) *Field { f.mapFn, f.unmapFn = fn, nil; return f }

// MapBoth converts on read and applies inverse before writing.
func (f *Field) MapBoth(fn, inverse MapFunc) *Field {
	f.mapFn, f.unmapFn = fn, inverse
	return f
}

func (f *Field) ParseWith(fn ParseFunc) *Field { f.parseFn = fn; return f }
func (f *Field) WriteWith(fn WriteFunc) *Field { f.writeFn = fn; return f }

// Calc computes the value from siblings and arguments. Nothing is read or
// written.
func (f *Field) Calc(e *Expression) *Field { f.calc = e; return f }

// Try stores nil instead of failing, rewinding to where the field started.
func (f *Field) Try() *Field { f.try = true; return f }

// RestorePosition seeks back to where the field started once it is done.
func (f *Field) RestorePosition() *Field { f.restore = true; return f }

// Args binds the positional arguments of the field's type imports.
func (f *Field) Args(args ...*Expression) *Field { f.args = args; return f }

// Assert adds a check that runs after the whole scope is parsed.
func (f *Field) Assert(cond *Expression, message string, payload *Expression) *Field {
	f.asserts = append(f.asserts, &Assert{cond: cond, message: message, payload: payload})
	return f
}

func (f *Field) clone() *Field {
	c := *f
	c.args = append([]*Expression(nil), f.args...)
	c.asserts = make([]*Assert, len(f.asserts))
	for i, a := range f.asserts {
		ca := *a
		c.asserts[i] = &ca
	}
	return &c
}

// Assert is a named condition with an optional payload surfaced in
// AssertError.
type Assert struct {
	cond    *Expression
	message string
	payload *Expression
}

func (a *Assert) bind(names []string) error {
	cond, err := a.cond.bind(names)
	if err != nil {
		return err
	}
	payload, err := a.payload.bind(names)
	if err != nil {
		return err
	}
	a.cond, a.payload = cond, payload
	return nil
}

func (a *Assert) check(pos int64, s *Scope) error {
	ok, err := a.cond.evalBool(s)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	msg := a.message
	if msg == "" {
		msg = a.cond.String()
	}
	ae := &AssertError{Pos: pos, Message: msg}
	if a.payload != nil {
		if ae.Payload, err = a.payload.Eval(s); err != nil {
			return err
		}
	}
	return ae
}

// Magic is a constant that must appear in the stream. Typed magic values
// are encoded with the resolved byte order.
type Magic struct {
	raw []byte
	typ Type
	val any
}

// MagicBytes is a raw byte sequence.
func MagicBytes(b []byte) *Magic { return &Magic{raw: b} }

// MagicString is the bytes of s.
func MagicString(s string) *Magic { return &Magic{raw: []byte(s)} }

// MagicOf is v encoded as typ.
func MagicOf(typ Type, v any) *Magic { return &Magic{typ: typ, val: v} }

func (m *Magic) bytes(endian Endian) ([]byte, error) {
	if m.typ == nil {
		return m.raw, nil
	}
	var buf Buffer
	if err := m.typ.Write(NewWriter(&buf), Config{Endian: endian}, m.val); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Magic) check(r *Reader, endian Endian) error {
	pos, err := r.Pos()
	if err != nil {
		return err
	}
	want, err := m.bytes(endian)
	if err != nil {
		return err
	}
	got, err := r.ReadBytes(len(want))
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return &BadMagicError{Pos: pos, Expected: want, Found: got}
	}
	return nil
}

func (m *Magic) write(w *Writer, endian Endian) error {
	b, err := m.bytes(endian)
	if err != nil {
		return err
	}
	return w.Write(b)
}

func alignPad(pos, n int64) int64 {
	if n <= 1 {
		return 0
	}
	if rem := pos % n; rem != 0 {
		return n - rem
	}
	return 0
}
