// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"fmt"
)

// Mode selects how an enum reports total failure.
type Mode int

const (
	// FirstMatch returns the first variant that parses. On total failure the
	// last error that is not a magic mismatch is returned.
	FirstMatch Mode = iota
	// CollectAll returns EnumErrors with one entry per variant.
	CollectAll
)

func (m Mode) String() string {
	if m == CollectAll {
		return "collect_all"
	}
	return "first_match"
}

// EnumBuilder collects the variants of a tagged union.
type EnumBuilder struct {
	name     string
	endian   Endian
	magic    *Magic
	mode     Mode
	imports  []Import
	variants []*StructBuilder
}

func NewEnum(name string) *EnumBuilder { return &EnumBuilder{name: name} }

func (b *EnumBuilder) Endian(e Endian) *EnumBuilder { b.endian = e; return b }
func (b *EnumBuilder) Big() *EnumBuilder            { return b.Endian(Big) }
func (b *EnumBuilder) Little() *EnumBuilder         { return b.Endian(Little) }
func (b *EnumBuilder) Magic(m *Magic) *EnumBuilder  { b.magic = m; return b }
func (b *EnumBuilder) Mode(m Mode) *EnumBuilder     { b.mode = m; return b }

// ReturnAllErrors is Mode(CollectAll).
func (b *EnumBuilder) ReturnAllErrors() *EnumBuilder { return b.Mode(CollectAll) }

// Import declares an argument shared by every variant.
func (b *EnumBuilder) Import(name string, kind ArgKind) *EnumBuilder {
	b.imports = append(b.imports, Import{Name: name, Kind: kind})
	return b
}

// Variant appends a variant. The builder's name, endian and magic are the
// variant's name, endian and discriminant.
func (b *EnumBuilder) Variant(v ...*StructBuilder) *EnumBuilder {
	b.variants = append(b.variants, v...)
	return b
}

func (b *EnumBuilder) Build() (*Enum, error) {
	if len(b.variants) == 0 {
		return nil, contractf("%s: enum without variants", b.name)
	}
	e := &Enum{
		name:    b.name,
		endian:  b.endian,
		magic:   b.magic,
		mode:    b.mode,
		imports: append([]Import(nil), b.imports...),
		byName:  make(map[string]*layout, len(b.variants)),
	}
	for _, vb := range b.variants {
		if vb == nil || vb.name == "" {
			return nil, contractf("%s: variant without a name", b.name)
		}
		if _, dup := e.byName[vb.name]; dup {
			return nil, contractf("%s: duplicate variant %q", b.name, vb.name)
		}
		l, err := vb.compile(b.imports)
		if err != nil {
			return nil, fmt.Errorf("%s::%s: %w", b.name, vb.name, err)
		}
		e.variants = append(e.variants, l)
		e.byName[vb.name] = l
	}
	return e, nil
}

// Enum is a built tagged union. The variant table is fixed at Build.
type Enum struct {
	name     string
	endian   Endian
	magic    *Magic
	mode     Mode
	imports  []Import
	variants []*layout
	byName   map[string]*layout
}

func (e *Enum) Name() string      { return e.name }
func (e *Enum) String() string    { return e.name }
func (e *Enum) Imports() []Import { return e.imports }
func (e *Enum) Mode() Mode        { return e.mode }

// Variants returns the variant names in declaration order.
func (e *Enum) Variants() []string {
	names := make([]string, len(e.variants))
	for i, v := range e.variants {
		names[i] = v.name
	}
	return names
}

func (e *Enum) Read(r *Reader, cfg Config) (any, error) {
	if err := checkArgs(e.name, e.imports, cfg.Args); err != nil {
		return nil, err
	}
	start, err := r.Pos()
	if err != nil {
		return nil, err
	}
	if e.magic != nil {
		endian, _ := resolveEndian(endianOverride{}, nil, e.endian, cfg.Endian)
		if err := e.magic.check(r, endian); err != nil {
			if serr := r.Seek(start); serr != nil {
				return nil, serr
			}
			return nil, err
		}
	}
	body, err := r.Pos()
	if err != nil {
		return nil, err
	}

	log := cfg.log()
	errs := make([]VariantError, 0, len(e.variants))
	for _, v := range e.variants {
		if err := r.Seek(body); err != nil {
			return nil, err
		}
		rec, err := v.read(r, cfg, e.name, e.endian, v.endian, v.name)
		if err == nil {
			log.Debug().Str("type", e.name).Str("variant", v.name).Msg("variant matched")
			return rec, nil
		}
		log.Debug().Str("type", e.name).Str("variant", v.name).Err(err).Msg("variant failed")
		if !isDataError(err) {
			return nil, err
		}
		errs = append(errs, VariantError{Variant: v.name, Err: err})
	}

	if err := r.Seek(start); err != nil {
		return nil, err
	}
	if e.mode == CollectAll {
		return nil, &EnumErrors{Pos: start, Errors: errs}
	}
	for i := len(errs) - 1; i >= 0; i-- {
		if !errors.Is(errs[i].Err, ErrBadMagic) {
			return nil, errs[i].Err
		}
	}
	return nil, &NoVariantError{Pos: start, Errors: errs}
}

// Write dispatches on Record.Variant. A record without a variant name is
// accepted only by a single variant enum.
func (e *Enum) Write(w *Writer, cfg Config, v any) error {
	rec, err := asRecord(e.name, v)
	if err != nil {
		return err
	}
	var l *layout
	switch {
	case rec.Variant != "":
		l = e.byName[rec.Variant]
		if l == nil {
			return contractf("%s: unknown variant %q", e.name, rec.Variant)
		}
	case len(e.variants) == 1:
		l = e.variants[0]
	default:
		return contractf("%s: record does not name a variant", e.name)
	}
	if err := checkArgs(e.name, e.imports, cfg.Args); err != nil {
		return err
	}
	if e.magic != nil {
		endian, _ := resolveEndian(endianOverride{}, nil, e.endian, cfg.Endian)
		if err := e.magic.write(w, endian); err != nil {
			return err
		}
	}
	return l.write(w, cfg, rec, e.endian, l.endian)
}
