// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/rs/zerolog"
)

// =============================================================================
// DECODING
// =============================================================================

// readFrame is the state of one scope being parsed. Every nested type gets
// its own frame, so position bookkeeping never crosses scopes.
type readFrame struct {
	l          *layout
	r          *Reader
	cfg        Config
	typeEndian Endian
	varEndian  Endian
	rec        *Record
	scope      *Scope
	deferred   deferredRegistry
	log        *zerolog.Logger
}

// read parses a struct body or a variant body. typeEndian and varEndian are
// the type and variant levels of the byte order precedence chain.
func (l *layout) read(r *Reader, cfg Config, typeName string, typeEndian, varEndian Endian, variant string) (*Record, error) {
	if err := checkArgs(typeName, l.imports, cfg.Args); err != nil {
		return nil, err
	}
	cfg, err := cfg.enter(r)
	if err != nil {
		return nil, err
	}
	rec := NewRecord(typeName)
	rec.Variant = variant
	f := &readFrame{
		l:          l,
		r:          r,
		cfg:        cfg,
		typeEndian: typeEndian,
		varEndian:  varEndian,
		rec:        rec,
		scope:      newScope(rec, l.declared, cfg.Args),
		log:        cfg.log(),
	}

	if l.magic != nil {
		endian, _ := resolveEndian(endianOverride{}, nil, varEndian, typeEndian, cfg.Endian)
		if err := l.magic.check(r, endian); err != nil {
			return nil, err
		}
	}

	for _, fd := range l.fields {
		if err := f.readField(fd); err != nil {
			return nil, err
		}
	}
	if err := f.deferred.run(f); err != nil {
		return nil, err
	}
	if err := f.assertions(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (f *readFrame) readField(fd *Field) error {
	r := f.r
	start, err := r.Pos()
	if err != nil {
		return err
	}

	if fd.seek != nil {
		if err := r.SeekFrom(fd.seek.off, fd.seek.whence); err != nil {
			return err
		}
	}
	if fd.alignBefore > 1 {
		pos, err := r.Pos()
		if err != nil {
			return err
		}
		if err := r.Skip(alignPad(pos, fd.alignBefore)); err != nil {
			return err
		}
	}
	if fd.padBefore > 0 {
		if err := r.Skip(fd.padBefore); err != nil {
			return err
		}
	}

	endian, err := resolveEndian(fd.endian, f.scope, f.varEndian, f.typeEndian, f.cfg.Endian)
	if err != nil {
		return err
	}

	if fd.cond != nil {
		ok, err := fd.cond.evalBool(f.scope)
		if err != nil {
			return err
		}
		if !ok {
			f.rec.Set(fd.name, nil)
			return f.restore(fd, start)
		}
	}

	if fd.magic != nil {
		if err := fd.magic.check(r, endian); err != nil {
			return err
		}
	}

	f.log.Debug().Str("type", f.rec.Type).Str("field", fd.name).Int64("pos", start).
		Stringer("endian", endian).Msg("read field")

	v, child, err := f.produce(fd, endian)
	if err != nil {
		if !fd.try || errors.Is(err, ErrContract) {
			return err
		}
		f.log.Debug().Str("type", f.rec.Type).Str("field", fd.name).Err(err).
			Msg("try field failed, rewinding")
		if err := r.Seek(start); err != nil {
			return err
		}
		f.rec.Set(fd.name, nil)
		return f.restore(fd, start)
	}

	f.rec.Set(fd.name, v)
	if fd.timing == Deferred && needsPostprocess(v) {
		f.deferred.add(f.l.declared[fd.name], fd, v, child)
	}
	return f.restore(fd, start)
}

// produce runs the value producing steps of a field: default, calc, custom
// parser, count or nested parse, then map, trailing padding and inline
// postprocessing. A try field rewinds when any of them fails.
func (f *readFrame) produce(fd *Field, endian Endian) (any, Config, error) {
	r := f.r
	fieldStart, err := r.Pos()
	if err != nil {
		return nil, Config{}, err
	}

	args, err := evalArgs(fd, f.scope)
	if err != nil {
		return nil, Config{}, err
	}
	child := f.cfg.derive(endian, args)

	var v any
	switch {
	case fd.dflt:
		v = zeroValue(fd.typ)
	case fd.calc != nil:
		v, err = fd.calc.Eval(f.scope)
	case fd.parseFn != nil:
		v, err = fd.parseFn(r, child)
	case fd.count != nil:
		v, err = f.readCount(fd, child)
	default:
		v, err = fd.typ.Read(r, child)
	}
	if err != nil {
		return nil, Config{}, err
	}

	if fd.mapFn != nil {
		if v, err = fd.mapFn(v); err != nil {
			return nil, Config{}, err
		}
	}

	if err := f.trailingPad(fd, fieldStart); err != nil {
		return nil, Config{}, err
	}

	if fd.timing == Inline && needsPostprocess(v) {
		if err := postprocess(fd, v, r, child, f.scope); err != nil {
			return nil, Config{}, err
		}
	}
	return v, child, nil
}

func (f *readFrame) readCount(fd *Field, child Config) ([]any, error) {
	r := f.r
	n, err := fd.count.evalInt(f.scope)
	if err != nil {
		return nil, err
	}
	pos, err := r.Pos()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, &IOError{Pos: pos, Err: fmt.Errorf("count %d: %w", n, ErrNegativeCount)}
	}
	if n > int64(child.maxCount()) {
		return nil, &IOError{Pos: pos, Err: fmt.Errorf("count %d: %w", n, ErrCountTooLarge)}
	}
	rem, err := r.Remaining()
	if err != nil {
		return nil, err
	}
	if size, ok := fixedSize(fd.typ); ok && n*int64(size) > rem {
		return nil, &IOError{Pos: pos, Err: fmt.Errorf("count %d of %d bytes with %d remaining: %w",
			n, size, rem, io.ErrUnexpectedEOF)}
	}

	capacity := n
	if capacity > rem {
		capacity = rem
	}
	out := make([]any, 0, capacity)
	for i := int64(0); i < n; i++ {
		v, err := fd.typ.Read(r, child)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *readFrame) trailingPad(fd *Field, fieldStart int64) error {
	r := f.r
	if fd.padSizeTo > 0 {
		pos, err := r.Pos()
		if err != nil {
			return err
		}
		if used := pos - fieldStart; used < fd.padSizeTo {
			if err := r.Seek(fieldStart + fd.padSizeTo); err != nil {
				return err
			}
		}
	}
	if fd.alignAfter > 1 {
		pos, err := r.Pos()
		if err != nil {
			return err
		}
		if err := r.Skip(alignPad(pos, fd.alignAfter)); err != nil {
			return err
		}
	}
	if fd.padAfter > 0 {
		return r.Skip(fd.padAfter)
	}
	return nil
}

func (f *readFrame) restore(fd *Field, start int64) error {
	if !fd.restore {
		return nil
	}
	return f.r.Seek(start)
}

// assertions runs field level assertions in field order, then type level
// ones in declaration order, stopping at the first failure.
func (f *readFrame) assertions() error {
	for _, fd := range f.l.fields {
		for _, a := range fd.asserts {
			if err := f.assert(a); err != nil {
				return err
			}
		}
	}
	for _, a := range f.l.asserts {
		if err := f.assert(a); err != nil {
			return err
		}
	}
	return nil
}

func (f *readFrame) assert(a *Assert) error {
	pos, err := f.r.Pos()
	if err != nil {
		return err
	}
	return a.check(pos, f.scope)
}

// evalArgs evaluates a field's positional arguments and names them after
// the imports of the field's type.
func evalArgs(fd *Field, s *Scope) (Args, error) {
	if len(fd.args) == 0 {
		return nil, nil
	}
	var names []string
	if fd.parseFn != nil || fd.typ == nil {
		names = make([]string, len(fd.args))
		for i := range fd.args {
			names[i] = fmt.Sprintf("arg%d", i)
		}
	} else {
		imports, _ := importsOf(fd.typ)
		if len(imports) != len(fd.args) {
			return nil, contractf("%s.%s: %d args passed to %d imports of %v",
				s.rec.Type, fd.name, len(fd.args), len(imports), fd.typ)
		}
		names = importNames(imports)
	}
	args := make(Args, len(fd.args))
	for i, e := range fd.args {
		v, err := e.Eval(s)
		if err != nil {
			return nil, err
		}
		args[names[i]] = v
	}
	return args, nil
}

// fixedSize is the encoded size of types whose size never depends on data.
func fixedSize(t Type) (int, bool) {
	switch x := t.(type) {
	case Int[uint8], Int[int8], boolean:
		return 1, true
	case Int[uint16], Int[int16], half:
		return 2, true
	case Int[uint32], Int[int32], Float[float32]:
		return 4, true
	case Int[uint64], Int[int64], Float[float64]:
		return 8, true
	case sized:
		return x.n, true
	case rawBytes:
		return int(x), true
	}
	return 0, false
}

// =============================================================================
// ENCODING
// =============================================================================

type writeFrame struct {
	l          *layout
	w          *Writer
	cfg        Config
	typeEndian Endian
	varEndian  Endian
	rec        *Record
	scope      *Scope
}

func (l *layout) write(w *Writer, cfg Config, rec *Record, typeEndian, varEndian Endian) error {
	if err := checkArgs(rec.Type, l.imports, cfg.Args); err != nil {
		return err
	}
	f := &writeFrame{
		l:          l,
		w:          w,
		cfg:        cfg,
		typeEndian: typeEndian,
		varEndian:  varEndian,
		rec:        rec,
		scope:      newScope(rec, l.declared, cfg.Args),
	}

	if l.magic != nil {
		endian, _ := resolveEndian(endianOverride{}, nil, varEndian, typeEndian, cfg.Endian)
		if err := l.magic.write(w, endian); err != nil {
			return err
		}
	}
	for _, fd := range l.fields {
		if err := f.writeField(fd); err != nil {
			return err
		}
	}
	return nil
}

func (f *writeFrame) writeField(fd *Field) error {
	w := f.w
	start, err := w.Pos()
	if err != nil {
		return err
	}

	if fd.seek != nil {
		if err := w.SeekFrom(fd.seek.off, fd.seek.whence); err != nil {
			return err
		}
	}
	if err := w.Align(fd.alignBefore); err != nil {
		return err
	}
	if err := w.Pad(fd.padBefore); err != nil {
		return err
	}
	fieldStart, err := w.Pos()
	if err != nil {
		return err
	}

	endian, err := resolveEndian(fd.endian, f.scope, f.varEndian, f.typeEndian, f.cfg.Endian)
	if err != nil {
		return err
	}

	if fd.cond != nil {
		ok, err := fd.cond.evalBool(f.scope)
		if err != nil {
			return err
		}
		if !ok {
			return f.restore(fd, start)
		}
	}

	if fd.magic != nil {
		if err := fd.magic.write(w, endian); err != nil {
			return err
		}
	}

	v, _ := f.rec.Get(fd.name)
	if fd.try && v == nil {
		return f.restore(fd, start)
	}

	if !fd.dflt && fd.calc == nil {
		if err := f.emit(fd, endian, v); err != nil {
			return err
		}
	}

	if fd.padSizeTo > 0 {
		pos, err := w.Pos()
		if err != nil {
			return err
		}
		if err := w.Pad(fd.padSizeTo - (pos - fieldStart)); err != nil {
			return err
		}
	}
	if err := w.Align(fd.alignAfter); err != nil {
		return err
	}
	if err := w.Pad(fd.padAfter); err != nil {
		return err
	}
	return f.restore(fd, start)
}

func (f *writeFrame) emit(fd *Field, endian Endian, v any) error {
	var err error
	if fd.unmapFn != nil {
		if v, err = fd.unmapFn(v); err != nil {
			return err
		}
	}
	args, err := evalArgs(fd, f.scope)
	if err != nil {
		return err
	}
	child := f.cfg.derive(endian, args)
	if fd.offset != nil {
		if child.Offset, err = fd.offset.evalInt(f.scope); err != nil {
			return err
		}
	}

	writeOne := func(ev any) error {
		if fd.writeFn != nil {
			return fd.writeFn(f.w, child, ev)
		}
		if fd.typ == nil {
			return contractf("%s.%s: custom parser without a writer", f.rec.Type, fd.name)
		}
		return fd.typ.Write(f.w, child, ev)
	}

	if fd.count == nil {
		return writeOne(v)
	}
	if fd.writeFn != nil {
		return fd.writeFn(f.w, child, v)
	}
	elems, err := asSlice(v)
	if err != nil {
		return contractf("%s.%s: %v", f.rec.Type, fd.name, err)
	}
	for _, ev := range elems {
		if err := writeOne(ev); err != nil {
			return err
		}
	}
	return nil
}

func (f *writeFrame) restore(fd *Field, start int64) error {
	if !fd.restore {
		return nil
	}
	return f.w.Seek(start)
}

// asSlice accepts []any and any other slice or array kind.
func asSlice(v any) ([]any, error) {
	if s, ok := v.([]any); ok {
		return s, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("counted field holds %T, not a sequence", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
