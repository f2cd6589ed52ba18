// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import "fmt"

// StructBuilder collects the directives of a struct type or of one enum
// variant.
type StructBuilder struct {
	name    string
	endian  Endian
	magic   *Magic
	fields  []*Field
	asserts []*Assert
	imports []Import
}

// NewStruct starts a struct type.
func NewStruct(name string) *StructBuilder {
	return &StructBuilder{name: name}
}

func (b *StructBuilder) Endian(e Endian) *StructBuilder { b.endian = e; return b }
func (b *StructBuilder) Big() *StructBuilder            { return b.Endian(Big) }
func (b *StructBuilder) Little() *StructBuilder         { return b.Endian(Little) }
func (b *StructBuilder) Magic(m *Magic) *StructBuilder  { b.magic = m; return b }

// Import declares an argument the type expects.
func (b *StructBuilder) Import(name string, kind ArgKind) *StructBuilder {
	b.imports = append(b.imports, Import{Name: name, Kind: kind})
	return b
}

// Field appends fields in declaration order.
func (b *StructBuilder) Field(fields ...*Field) *StructBuilder {
	b.fields = append(b.fields, fields...)
	return b
}

// Assert adds a type level assertion. Type level assertions see every field.
func (b *StructBuilder) Assert(cond *Expression, message string, payload *Expression) *StructBuilder {
	b.asserts = append(b.asserts, &Assert{cond: cond, message: message, payload: payload})
	return b
}

// Build validates the directives and compiles their expressions.
func (b *StructBuilder) Build() (*Struct, error) {
	l, err := b.compile(nil)
	if err != nil {
		return nil, err
	}
	return &Struct{layout: l}, nil
}

// Struct is a built struct type.
type Struct struct {
	*layout
}

// Name returns the type name.
func (s *Struct) Name() string { return s.name }

// Imports returns the import contract.
func (s *Struct) Imports() []Import { return s.imports }

// Fields returns the field names in declaration order.
func (s *Struct) Fields() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.name
	}
	return names
}

func (s *Struct) String() string { return s.name }

func (s *Struct) Read(r *Reader, cfg Config) (any, error) {
	return s.read(r, cfg, s.name, s.endian, Unspecified, "")
}

func (s *Struct) Write(w *Writer, cfg Config, v any) error {
	rec, err := asRecord(s.name, v)
	if err != nil {
		return err
	}
	return s.write(w, cfg, rec, s.endian, Unspecified)
}

func (s *Struct) zero() *Record {
	rec := NewRecord(s.name)
	for _, f := range s.fields {
		rec.Set(f.name, zeroValue(f.typ))
	}
	return rec
}

// Must panics on a build error. It suits package level type definitions.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// layout is a compiled field list: a struct body or an enum variant body.
type layout struct {
	name     string
	endian   Endian
	magic    *Magic
	fields   []*Field
	asserts  []*Assert
	imports  []Import
	declared map[string]int
}

// compile checks names and argument contracts and binds every CEL
// expression to the names visible where it is evaluated. outer are imports
// inherited from an enclosing enum.
func (b *StructBuilder) compile(outer []Import) (*layout, error) {
	l := &layout{
		name:     b.name,
		endian:   b.endian,
		magic:    b.magic,
		imports:  append(append([]Import(nil), outer...), b.imports...),
		declared: make(map[string]int, len(b.fields)),
	}

	taken := make(map[string]bool)
	for _, im := range l.imports {
		if im.Name == "" || taken[im.Name] {
			return nil, contractf("%s: bad or duplicate import %q", b.name, im.Name)
		}
		taken[im.Name] = true
	}
	all := importNames(l.imports)
	for i, f := range b.fields {
		if f == nil || f.name == "" {
			return nil, contractf("%s: field %d has no name", b.name, i)
		}
		if taken[f.name] {
			return nil, contractf("%s: duplicate name %q", b.name, f.name)
		}
		taken[f.name] = true
		l.declared[f.name] = i
		all = append(all, f.name)
	}

	visible := importNames(l.imports)
	for _, src := range b.fields {
		f := src.clone()
		if err := f.validate(b.name); err != nil {
			return nil, err
		}
		if err := f.bind(b.name, visible, all); err != nil {
			return nil, err
		}
		l.fields = append(l.fields, f)
		visible = append(visible, f.name)
	}

	for _, src := range b.asserts {
		a := *src
		if a.cond == nil {
			return nil, contractf("%s: assertion without condition", b.name)
		}
		if err := a.bind(all); err != nil {
			return nil, contractf("%s: assertion %q: %v", b.name, a.cond, err)
		}
		l.asserts = append(l.asserts, &a)
	}
	return l, nil
}

func (f *Field) validate(typeName string) error {
	where := fmt.Sprintf("%s.%s", typeName, f.name)
	produced := f.dflt || f.calc != nil || f.parseFn != nil
	if f.typ == nil && !produced {
		return contractf("%s: no type, calc or custom parser", where)
	}
	if f.count != nil && f.parseFn != nil {
		return contractf("%s: count cannot repeat a custom parser", where)
	}
	if f.count != nil && f.typ == nil {
		return contractf("%s: count needs an element type", where)
	}
	if f.offsetAfter && f.timing == Inline {
		return contractf("%s: offset_after needs deferred postprocessing", where)
	}
	for _, a := range f.asserts {
		if a.cond == nil {
			return contractf("%s: assertion without condition", where)
		}
	}
	if f.parseFn != nil || f.typ == nil {
		return nil
	}
	want, known := importsOf(f.typ)
	if known && len(f.args) != len(want) {
		return contractf("%s: %d args passed to %d imports of %v", where, len(f.args), len(want), f.typ)
	}
	return nil
}

// importsOf reports the import contract of t, and whether it is known yet.
// Types still under construction report unknown.
func importsOf(t Type) ([]Import, bool) {
	if lt, ok := t.(*lazyType); ok && !lt.ready() {
		return nil, false
	}
	if im, ok := t.(Importer); ok {
		return im.Imports(), true
	}
	return nil, true
}

// bind compiles the field's expressions. visible holds imports and earlier
// siblings; all holds every name in the scope.
func (f *Field) bind(typeName string, visible, all []string) error {
	bindOne := func(what string, e **Expression, names []string) error {
		bound, err := (*e).bind(names)
		if err != nil {
			return contractf("%s.%s: %s %q: %v", typeName, f.name, what, *e, err)
		}
		*e = bound
		return nil
	}

	if err := bindOne("condition", &f.cond, visible); err != nil {
		return err
	}
	if err := bindOne("endian guard", &f.endian.guard, visible); err != nil {
		return err
	}
	if err := bindOne("calc", &f.calc, visible); err != nil {
		return err
	}
	if err := bindOne("count", &f.count, visible); err != nil {
		return err
	}
	for i := range f.args {
		if err := bindOne("argument", &f.args[i], visible); err != nil {
			return err
		}
	}
	offsetNames := visible
	if f.offsetAfter {
		offsetNames = all
	}
	if err := bindOne("offset", &f.offset, offsetNames); err != nil {
		return err
	}
	for _, a := range f.asserts {
		if err := bindOne("assertion", &a.cond, all); err != nil {
			return err
		}
		if err := bindOne("assertion payload", &a.payload, all); err != nil {
			return err
		}
	}
	return nil
}
