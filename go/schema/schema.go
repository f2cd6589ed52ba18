// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package schema reads and writes binary data described by declarative
// layouts. Layouts are built in Go with NewStruct and NewEnum, or loaded
// from YAML and JSON schema documents with ParseSchema.
package schema

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// SchemaDef is a schema document.
type SchemaDef struct {
	Name        string              `json:"name,omitempty" yaml:"name,omitempty"`
	Version     int                 `json:"version,omitempty" yaml:"version,omitempty"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Types       map[string]*TypeDef `json:"types,omitempty" yaml:"types,omitempty"`
	TypeDef     `yaml:",inline"`
}

// TypeDef describes a struct (fields) or an enum (variants).
type TypeDef struct {
	Endian     string       `json:"endian,omitempty" yaml:"endian,omitempty"`
	Magic      string       `json:"magic,omitempty" yaml:"magic,omitempty"`
	MagicHex   string       `json:"magic_hex,omitempty" yaml:"magic_hex,omitempty"`
	MagicType  string       `json:"magic_type,omitempty" yaml:"magic_type,omitempty"`
	MagicValue any          `json:"magic_value,omitempty" yaml:"magic_value,omitempty"`
	Imports    []ImportDef  `json:"imports,omitempty" yaml:"imports,omitempty"`
	Fields     []FieldDef   `json:"fields,omitempty" yaml:"fields,omitempty"`
	Variants   []VariantDef `json:"variants,omitempty" yaml:"variants,omitempty"`
	Mode       string       `json:"mode,omitempty" yaml:"mode,omitempty"`
	Asserts    []AssertDef  `json:"asserts,omitempty" yaml:"asserts,omitempty"`
}

// VariantDef is one arm of an enum.
type VariantDef struct {
	Name    string `json:"name" yaml:"name"`
	TypeDef `yaml:",inline"`
}

// ImportDef declares a type argument. Kind is any, int, float, string, bool
// or bytes.
type ImportDef struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// AssertDef is a CEL condition with an optional message and payload.
type AssertDef struct {
	Cond    string `json:"cond" yaml:"cond"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Payload string `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// FieldDef mirrors the Field builder. Expressions are CEL source.
type FieldDef struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Length   int    `json:"length,omitempty" yaml:"length,omitempty"`
	Target   string `json:"target,omitempty" yaml:"target,omitempty"`
	Endian   string `json:"endian,omitempty" yaml:"endian,omitempty"`
	IsBig    string `json:"is_big,omitempty" yaml:"is_big,omitempty"`
	IsLittle string `json:"is_little,omitempty" yaml:"is_little,omitempty"`
	Magic    string `json:"magic,omitempty" yaml:"magic,omitempty"`
	MagicHex string `json:"magic_hex,omitempty" yaml:"magic_hex,omitempty"`

	If          string   `json:"if,omitempty" yaml:"if,omitempty"`
	Default     bool     `json:"default,omitempty" yaml:"default,omitempty"`
	Calc        string   `json:"calc,omitempty" yaml:"calc,omitempty"`
	Count       any      `json:"count,omitempty" yaml:"count,omitempty"`
	Offset      string   `json:"offset,omitempty" yaml:"offset,omitempty"`
	OffsetAfter string   `json:"offset_after,omitempty" yaml:"offset_after,omitempty"`
	Postprocess string   `json:"postprocess,omitempty" yaml:"postprocess,omitempty"`
	Args        []string `json:"args,omitempty" yaml:"args,omitempty"`

	PadBefore   int64  `json:"pad_before,omitempty" yaml:"pad_before,omitempty"`
	PadAfter    int64  `json:"pad_after,omitempty" yaml:"pad_after,omitempty"`
	AlignBefore int64  `json:"align_before,omitempty" yaml:"align_before,omitempty"`
	AlignAfter  int64  `json:"align_after,omitempty" yaml:"align_after,omitempty"`
	PadSizeTo   int64  `json:"pad_size_to,omitempty" yaml:"pad_size_to,omitempty"`
	SeekBefore  *int64 `json:"seek_before,omitempty" yaml:"seek_before,omitempty"`
	SeekWhence  string `json:"seek_whence,omitempty" yaml:"seek_whence,omitempty"`

	Try             bool `json:"try,omitempty" yaml:"try,omitempty"`
	RestorePosition bool `json:"restore_position,omitempty" yaml:"restore_position,omitempty"`

	Add       *float64       `json:"add,omitempty" yaml:"add,omitempty"`
	Mult      *float64       `json:"mult,omitempty" yaml:"mult,omitempty"`
	Div       *float64       `json:"div,omitempty" yaml:"div,omitempty"`
	ModOrder  []string       `json:"-" yaml:"-"` // YAML key order for add/mult/div
	Transform []Transform    `json:"transform,omitempty" yaml:"transform,omitempty"`
	Lookup    map[int]string `json:"lookup,omitempty" yaml:"lookup,omitempty"`

	Asserts []AssertDef `json:"asserts,omitempty" yaml:"asserts,omitempty"`
}

// Transform represents a single transformation stage.
type Transform struct {
	Add  *float64 `json:"add,omitempty" yaml:"add,omitempty"`
	Sub  *float64 `json:"sub,omitempty" yaml:"sub,omitempty"`
	Mult *float64 `json:"mult,omitempty" yaml:"mult,omitempty"`
	Div  *float64 `json:"div,omitempty" yaml:"div,omitempty"`
}

// UnmarshalYAML records the key order of the add/mult/div shortcuts, which
// are applied in the order they are written.
func (f *FieldDef) UnmarshalYAML(node *yaml.Node) error {
	type plain FieldDef
	if err := node.Decode((*plain)(f)); err != nil {
		return err
	}
	f.ModOrder = extractModOrder(node)
	return nil
}

// extractModOrder extracts the YAML key order of modifier keys (add, mult, div)
// from a yaml.Node mapping node.
func extractModOrder(node *yaml.Node) []string {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	var order []string
	for i := 0; i < len(node.Content)-1; i += 2 {
		key := node.Content[i].Value
		if key == "add" || key == "mult" || key == "div" {
			order = append(order, key)
		}
	}
	return order
}

// Schema is a compiled schema document.
type Schema struct {
	Name    string
	Version int
	Root    Type
	Types   map[string]Type
	// Config is used by Decode and Encode.
	Config Config
}

// ParseSchema parses a schema from YAML or JSON string.
func ParseSchema(data string) (*Schema, error) {
	return parseSchema(data, nil)
}

func parseSchema(data string, reg *Registry) (*Schema, error) {
	var def SchemaDef
	if strings.HasPrefix(strings.TrimSpace(data), "{") {
		if err := json.Unmarshal([]byte(data), &def); err != nil {
			return nil, fmt.Errorf("failed to parse schema: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(data), &def); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return def.Compile(reg)
}

// Compile builds the document's types. Type names not defined locally are
// looked up in reg, which may be nil.
func (d *SchemaDef) Compile(reg *Registry) (*Schema, error) {
	name := d.Name
	if name == "" {
		name = "root"
	}
	c := &compiler{reg: reg, local: make(map[string]*lazyType, len(d.Types))}
	for tn := range d.Types {
		c.local[tn] = &lazyType{name: tn}
	}

	// Sorted so build errors are reproducible.
	names := make([]string, 0, len(d.Types))
	for tn := range d.Types {
		names = append(names, tn)
	}
	sort.Strings(names)

	s := &Schema{Name: name, Version: d.Version, Types: make(map[string]Type, len(names))}
	for _, tn := range names {
		td := d.Types[tn]
		if td == nil {
			return nil, fmt.Errorf("type %q: empty definition", tn)
		}
		t, err := c.typeDef(tn, td)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", tn, err)
		}
		c.local[tn].t = t
		s.Types[tn] = t
	}

	root, err := c.typeDef(name, &d.TypeDef)
	if err != nil {
		return nil, fmt.Errorf("schema %q: %w", name, err)
	}
	s.Root = root
	return s, nil
}

// Decode parses data with the root type.
func (s *Schema) Decode(data []byte) (*Record, error) {
	v, err := Unmarshal(data, s.Root, s.Config)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(*Record)
	if !ok {
		return nil, fmt.Errorf("schema %q: root decoded to %T", s.Name, v)
	}
	return rec, nil
}

// Encode serializes a *Record or a map[string]any with the root type.
func (s *Schema) Encode(v any) ([]byte, error) {
	return Marshal(s.Root, s.Config, v)
}

type compiler struct {
	reg   *Registry
	local map[string]*lazyType
}

func (c *compiler) typeDef(name string, td *TypeDef) (Type, error) {
	endian, err := ParseEndian(td.Endian)
	if err != nil {
		return nil, err
	}
	magic, err := c.magic(td.Magic, td.MagicHex, td.MagicType, td.MagicValue)
	if err != nil {
		return nil, err
	}
	imports, err := importDefs(td.Imports)
	if err != nil {
		return nil, err
	}

	if len(td.Variants) == 0 {
		b, err := c.structBody(NewStruct(name), td)
		if err != nil {
			return nil, err
		}
		b.Endian(endian).Magic(magic)
		b.imports = imports
		return b.Build()
	}

	if len(td.Fields) > 0 {
		return nil, fmt.Errorf("both fields and variants given")
	}
	eb := NewEnum(name).Endian(endian).Magic(magic)
	eb.imports = imports
	switch strings.ToLower(td.Mode) {
	case "", "first_match", "first":
	case "collect_all", "return_all_errors", "all":
		eb.ReturnAllErrors()
	default:
		return nil, fmt.Errorf("unknown mode %q", td.Mode)
	}
	for _, vd := range td.Variants {
		if len(vd.Variants) > 0 {
			return nil, fmt.Errorf("variant %q: nested variants", vd.Name)
		}
		ve, err := ParseEndian(vd.Endian)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", vd.Name, err)
		}
		vm, err := c.magic(vd.Magic, vd.MagicHex, vd.MagicType, vd.MagicValue)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", vd.Name, err)
		}
		vb, err := c.structBody(NewStruct(vd.Name), &vd.TypeDef)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", vd.Name, err)
		}
		eb.Variant(vb.Endian(ve).Magic(vm))
	}
	return eb.Build()
}

func (c *compiler) structBody(b *StructBuilder, td *TypeDef) (*StructBuilder, error) {
	for i := range td.Fields {
		f, err := c.field(&td.Fields[i])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", td.Fields[i].Name, err)
		}
		b.Field(f)
	}
	for _, ad := range td.Asserts {
		cond, payload := assertExprs(ad)
		b.Assert(cond, ad.Message, payload)
	}
	return b, nil
}

func (c *compiler) field(fd *FieldDef) (*Field, error) {
	var typ Type
	if fd.Type != "" {
		t, err := c.resolve(fd.Type, fd.Length, fd.Target)
		if err != nil {
			return nil, err
		}
		typ = t
	}
	f := F(fd.Name, typ)

	e, err := ParseEndian(fd.Endian)
	if err != nil {
		return nil, err
	}
	f.Endian(e)
	switch {
	case fd.IsBig != "":
		f.IsBig(Expr(fd.IsBig))
	case fd.IsLittle != "":
		f.IsLittle(Expr(fd.IsLittle))
	}

	if m, err := c.magic(fd.Magic, fd.MagicHex, "", nil); err != nil {
		return nil, err
	} else if m != nil {
		f.Magic(m)
	}
	if fd.If != "" {
		f.If(Expr(fd.If))
	}
	if fd.Default {
		f.Default()
	}
	if fd.Calc != "" {
		f.Calc(Expr(fd.Calc))
	}
	if fd.Count != nil {
		ce, err := countExpr(fd.Count)
		if err != nil {
			return nil, err
		}
		f.Count(ce)
	}
	if fd.Offset != "" {
		f.Offset(Expr(fd.Offset))
	}
	if fd.OffsetAfter != "" {
		f.OffsetAfter(Expr(fd.OffsetAfter))
	}
	switch strings.ToLower(fd.Postprocess) {
	case "", "deferred":
	case "now", "inline":
		f.Now()
	default:
		return nil, fmt.Errorf("unknown postprocess %q", fd.Postprocess)
	}
	for _, a := range fd.Args {
		f.args = append(f.args, Expr(a))
	}

	f.PadBefore(fd.PadBefore).PadAfter(fd.PadAfter).
		AlignBefore(fd.AlignBefore).AlignAfter(fd.AlignAfter).PadSizeTo(fd.PadSizeTo)
	if fd.SeekBefore != nil {
		whence, err := parseWhence(fd.SeekWhence)
		if err != nil {
			return nil, err
		}
		f.SeekBefore(*fd.SeekBefore, whence)
	}
	if fd.Try {
		f.Try()
	}
	if fd.RestorePosition {
		f.RestorePosition()
	}

	if fn, inv := fd.valueMap(); fn != nil {
		f.MapBoth(fn, inv)
	}
	for _, ad := range fd.Asserts {
		cond, payload := assertExprs(ad)
		f.Assert(cond, ad.Message, payload)
	}
	return f, nil
}

// resolve maps a type name onto a built-in type, a local type or a
// registered one.
func (c *compiler) resolve(name string, length int, target string) (Type, error) {
	switch strings.ToLower(name) {
	case "u8", "uint8", "byte":
		return U8, nil
	case "u16", "uint16":
		return U16, nil
	case "u24", "uint24":
		return UintN(3), nil
	case "u32", "uint32":
		return U32, nil
	case "u64", "uint64":
		return U64, nil
	case "s8", "i8", "int8":
		return I8, nil
	case "s16", "i16", "int16":
		return I16, nil
	case "s24", "i24", "int24":
		return SintN(3), nil
	case "s32", "i32", "int32":
		return I32, nil
	case "s64", "i64", "int64":
		return I64, nil
	case "f16":
		return F16, nil
	case "f32", "float":
		return F32, nil
	case "f64", "double":
		return F64, nil
	case "bool":
		return Bool, nil
	case "bytes":
		if length <= 0 {
			return nil, fmt.Errorf("bytes needs a positive length")
		}
		return Bytes(length), nil
	case "null_string", "strz", "cstring":
		return NullString, nil
	case "ptr8", "ptr16", "ptr32", "ptr64":
		if target == "" {
			return nil, fmt.Errorf("%s needs a target", name)
		}
		t, err := c.resolve(target, length, "")
		if err != nil {
			return nil, fmt.Errorf("pointer target: %w", err)
		}
		switch strings.ToLower(name) {
		case "ptr8":
			return Ptr8(t), nil
		case "ptr16":
			return Ptr16(t), nil
		case "ptr32":
			return Ptr32(t), nil
		}
		return Ptr64(t), nil
	}
	if lt, ok := c.local[name]; ok {
		return lt, nil
	}
	if c.reg != nil {
		if t, ok := c.reg.Lookup(name); ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unknown type %q", name)
}

func (c *compiler) magic(text, hexText, typeName string, value any) (*Magic, error) {
	switch {
	case typeName != "":
		t, err := c.resolve(typeName, 0, "")
		if err != nil {
			return nil, fmt.Errorf("magic: %w", err)
		}
		return MagicOf(t, value), nil
	case hexText != "":
		b, err := hex.DecodeString(strings.ReplaceAll(hexText, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("magic_hex: %w", err)
		}
		return MagicBytes(b), nil
	case text != "":
		return MagicString(text), nil
	}
	return nil, nil
}

func importDefs(defs []ImportDef) ([]Import, error) {
	out := make([]Import, 0, len(defs))
	for _, d := range defs {
		k, err := parseArgKind(d.Kind)
		if err != nil {
			return nil, fmt.Errorf("import %q: %w", d.Name, err)
		}
		out = append(out, Import{Name: d.Name, Kind: k})
	}
	return out, nil
}

func parseArgKind(s string) (ArgKind, error) {
	switch strings.ToLower(s) {
	case "", "any":
		return AnyArg, nil
	case "int":
		return IntArg, nil
	case "float":
		return FloatArg, nil
	case "string":
		return StringArg, nil
	case "bool":
		return BoolArg, nil
	case "bytes":
		return BytesArg, nil
	}
	return AnyArg, fmt.Errorf("unknown kind %q", s)
}

func parseWhence(s string) (int, error) {
	switch strings.ToLower(s) {
	case "", "start":
		return io.SeekStart, nil
	case "current":
		return io.SeekCurrent, nil
	case "end":
		return io.SeekEnd, nil
	}
	return 0, fmt.Errorf("unknown seek_whence %q", s)
}

// countExpr accepts a literal count or CEL source. JSON numbers arrive as
// float64.
func countExpr(v any) (*Expression, error) {
	switch x := v.(type) {
	case string:
		return Expr(x), nil
	case float64:
		return Const(int64(x)), nil
	}
	if n, ok := toInt64(v); ok {
		return Const(n), nil
	}
	return nil, fmt.Errorf("count must be a number or an expression, got %T", v)
}

func assertExprs(ad AssertDef) (*Expression, *Expression) {
	var cond, payload *Expression
	if ad.Cond != "" {
		cond = Expr(ad.Cond)
	}
	if ad.Payload != "" {
		payload = Expr(ad.Payload)
	}
	return cond, payload
}

// valueMap turns the transform and lookup keys into a map function and its
// inverse. Transforms run before the lookup on read and after the reverse
// lookup on write.
func (fd *FieldDef) valueMap() (MapFunc, MapFunc) {
	stages := fd.stages()
	if len(stages) == 0 && fd.Lookup == nil {
		return nil, nil
	}
	lookup := fd.Lookup

	fn := func(v any) (any, error) {
		if len(stages) > 0 {
			if num, ok := toFloat64(v); ok {
				for _, st := range stages {
					num = st.apply(num)
				}
				v = num
			}
		}
		if lookup != nil {
			if n, ok := toInt64(v); ok {
				if s, found := lookup[int(n)]; found {
					return s, nil
				}
			}
		}
		return v, nil
	}

	inv := func(v any) (any, error) {
		if s, ok := v.(string); ok && lookup != nil {
			found := false
			for k, name := range lookup {
				if name == s {
					v, found = float64(k), true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("value %q not in lookup", s)
			}
		}
		if len(stages) > 0 {
			if num, ok := toFloat64(v); ok {
				for i := len(stages) - 1; i >= 0; i-- {
					num = stages[i].reverse(num)
				}
				v = num
			}
		}
		return v, nil
	}
	return fn, inv
}

// stages normalizes the top-level shortcuts into transform stages, one
// stage per shortcut in key order.
func (fd *FieldDef) stages() []Transform {
	if len(fd.Transform) > 0 {
		return fd.Transform
	}
	order := fd.ModOrder
	if len(order) == 0 {
		// Fallback for fields without ModOrder (e.g. from JSON)
		order = []string{"add", "mult", "div"}
	}
	var out []Transform
	for _, key := range order {
		switch key {
		case "add":
			if fd.Add != nil {
				out = append(out, Transform{Add: fd.Add})
			}
		case "mult":
			if fd.Mult != nil {
				out = append(out, Transform{Mult: fd.Mult})
			}
		case "div":
			if fd.Div != nil {
				out = append(out, Transform{Div: fd.Div})
			}
		}
	}
	return out
}

func (t Transform) apply(v float64) float64 {
	if t.Add != nil {
		v += *t.Add
	}
	if t.Sub != nil {
		v -= *t.Sub
	}
	if t.Mult != nil {
		v *= *t.Mult
	}
	if t.Div != nil && *t.Div != 0 {
		v /= *t.Div
	}
	return v
}

func (t Transform) reverse(v float64) float64 {
	if t.Div != nil && *t.Div != 0 {
		v *= *t.Div
	}
	if t.Mult != nil && *t.Mult != 0 {
		v /= *t.Mult
	}
	if t.Sub != nil {
		v += *t.Sub
	}
	if t.Add != nil {
		v -= *t.Add
	}
	return v
}

// lazyType stands in for a document type that may not be built yet, which
// lets types refer to each other and to themselves through pointers.
type lazyType struct {
	name string
	t    Type
}

func (l *lazyType) ready() bool    { return l.t != nil }
func (l *lazyType) get() Type      { return l.t }
func (l *lazyType) String() string { return l.name }

func (l *lazyType) Imports() []Import {
	if im, ok := l.t.(Importer); ok {
		return im.Imports()
	}
	return nil
}

func (l *lazyType) Read(r *Reader, cfg Config) (any, error) {
	if l.t == nil {
		return nil, contractf("type %q used before it was built", l.name)
	}
	return l.t.Read(r, cfg)
}

func (l *lazyType) Write(w *Writer, cfg Config, v any) error {
	if l.t == nil {
		return contractf("type %q used before it was built", l.name)
	}
	return l.t.Write(w, cfg, v)
}
