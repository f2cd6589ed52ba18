// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func threeVariants(b *EnumBuilder) *Enum {
	return Must(b.Variant(
		NewStruct("A").Magic(MagicString("A")),
		NewStruct("B").Magic(MagicString("B")),
		NewStruct("C").Field(F("x", U32)),
	).Build())
}

func TestEnumFirstMatch(t *testing.T) {
	e := Must(NewEnum("Cmd").Variant(
		NewStruct("Ping").Magic(MagicBytes([]byte{0x01})),
		NewStruct("Data").Magic(MagicBytes([]byte{0x02})).Field(F("v", U8)),
		NewStruct("Raw").Field(F("b", U8)),
	).Build())

	tests := []struct {
		name    string
		data    []byte
		variant string
		fields  map[string]any
	}{
		{"unit variant", []byte{0x01}, "Ping", map[string]any{}},
		{"data variant", []byte{0x02, 0x07}, "Data", map[string]any{"v": uint8(7)}},
		{"fallback", []byte{0x09}, "Raw", map[string]any{"b": uint8(9)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := unmarshalRecord(t, tt.data, e, Config{})
			require.Equal(t, "Cmd", rec.Type)
			require.Equal(t, tt.variant, rec.Variant)
			require.Equal(t, tt.fields, rec.Map())
		})
	}
}

func TestEnumCollectAll(t *testing.T) {
	e := threeVariants(NewEnum("E").ReturnAllErrors())
	require.Equal(t, CollectAll, e.Mode())

	r := NewBytesReader([]byte("Z"))
	_, err := Read(r, e, Config{})

	var ee *EnumErrors
	require.ErrorAs(t, err, &ee)
	require.ErrorIs(t, err, ErrEnumErrors)
	require.Len(t, ee.Errors, 3)
	require.Equal(t, "A", ee.Errors[0].Variant)
	require.Equal(t, "B", ee.Errors[1].Variant)
	require.Equal(t, "C", ee.Errors[2].Variant)
	require.ErrorIs(t, ee.Errors[0].Err, ErrBadMagic)
	require.ErrorIs(t, ee.Errors[1].Err, ErrBadMagic)
	require.ErrorIs(t, ee.Errors[2].Err, ErrIO)

	pos, _ := r.Pos()
	require.Equal(t, int64(0), pos)
}

func TestEnumFirstMatchReturnsDistinguishingError(t *testing.T) {
	e := threeVariants(NewEnum("E"))

	_, err := Unmarshal([]byte("Z"), e, Config{})
	require.ErrorIs(t, err, ErrIO)
	require.False(t, errors.Is(err, ErrNoVariantMatch))
}

func TestEnumNoVariantMatch(t *testing.T) {
	e := Must(NewEnum("E").Variant(
		NewStruct("A").Magic(MagicString("A")),
		NewStruct("B").Magic(MagicString("B")),
	).Build())

	_, err := Unmarshal([]byte("Z"), e, Config{})
	var nv *NoVariantError
	require.ErrorAs(t, err, &nv)
	require.ErrorIs(t, err, ErrNoVariantMatch)
	require.Len(t, nv.Errors, 2)
}

func TestEnumAssertSelectsVariant(t *testing.T) {
	e := Must(NewEnum("E").Variant(
		NewStruct("Small").Field(F("v", U8)).Assert(Expr("v < 10"), "too big", nil),
		NewStruct("Large").Field(F("v", U8)),
	).Build())

	rec := unmarshalRecord(t, []byte{3}, e, Config{})
	require.Equal(t, "Small", rec.Variant)

	rec = unmarshalRecord(t, []byte{30}, e, Config{})
	require.Equal(t, "Large", rec.Variant)
}

func TestEnumContractErrorAbortsTrials(t *testing.T) {
	e := Must(NewEnum("E").Variant(
		NewStruct("Broken").Field(
			F("a", nil).Calc(ExprFunc(func(s *Scope) (any, error) { return s.Get("b") })),
			F("b", U8),
		),
		NewStruct("Fine").Field(F("b", U8)),
	).Build())

	_, err := Unmarshal([]byte{1}, e, Config{})
	require.ErrorIs(t, err, ErrContract)
}

func TestEnumMagicReadOnce(t *testing.T) {
	e := Must(NewEnum("E").Magic(MagicString("EN")).Variant(
		NewStruct("One").Magic(MagicBytes([]byte{1})),
		NewStruct("Two").Magic(MagicBytes([]byte{2})).Field(F("v", U8)),
	).Build())

	rec := unmarshalRecord(t, []byte{'E', 'N', 2, 5}, e, Config{})
	require.Equal(t, "Two", rec.Variant)

	r := NewBytesReader([]byte{'X', 'N', 2, 5})
	_, err := Read(r, e, Config{})
	var bm *BadMagicError
	require.ErrorAs(t, err, &bm)
	require.Equal(t, int64(0), bm.Pos)

	pos, err := r.Pos()
	require.NoError(t, err)
	require.Equal(t, int64(0), pos)
}

func TestEnumImports(t *testing.T) {
	e := Must(NewEnum("E").Import("wide", BoolArg).Variant(
		NewStruct("Wide").Field(F("v", U16)).Assert(Expr("wide"), "narrow", nil),
		NewStruct("Narrow").Field(F("v", U8)),
	).Build())

	rec := unmarshalRecord(t, []byte{1, 2}, e, Config{Endian: Big, Args: Args{"wide": true}})
	require.Equal(t, "Wide", rec.Variant)
	require.Equal(t, uint16(0x0102), field(t, rec, "v"))

	rec = unmarshalRecord(t, []byte{1, 2}, e, Config{Args: Args{"wide": false}})
	require.Equal(t, "Narrow", rec.Variant)

	_, err := Unmarshal([]byte{1, 2}, e, Config{})
	require.ErrorIs(t, err, ErrContract)
}

func TestEnumWrite(t *testing.T) {
	e := Must(NewEnum("Cmd").Magic(MagicString("C")).Variant(
		NewStruct("Ping").Magic(MagicBytes([]byte{0x01})),
		NewStruct("Data").Magic(MagicBytes([]byte{0x02})).Field(F("v", U16)),
	).Build())

	tests := []struct {
		name string
		rec  any
		want []byte
	}{
		{"unit", NewVariant("Cmd", "Ping"), []byte{'C', 0x01}},
		{"data", NewVariant("Cmd", "Data").Set("v", 0x0102), []byte{'C', 0x02, 0x01, 0x02}},
		{"map", map[string]any{"$variant": "Data", "v": 3}, []byte{'C', 0x02, 0x00, 0x03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Marshal(e, Config{Endian: Big}, tt.rec)
			require.NoError(t, err)
			require.Equal(t, tt.want, out)
		})
	}

	_, err := Marshal(e, Config{}, NewVariant("Cmd", "Nope"))
	require.ErrorIs(t, err, ErrContract)

	_, err = Marshal(e, Config{}, NewRecord("Cmd"))
	require.ErrorIs(t, err, ErrContract)
}

func TestEnumRoundTrip(t *testing.T) {
	e := Must(NewEnum("Shape").Little().Variant(
		NewStruct("Circle").Magic(MagicBytes([]byte{'c'})).Field(F("r", U16)),
		NewStruct("Rect").Magic(MagicBytes([]byte{'r'})).Field(F("w", U16), F("h", U16)),
	).Build())

	for _, data := range [][]byte{
		{'c', 0x05, 0x00},
		{'r', 0x02, 0x00, 0x03, 0x00},
	} {
		v, err := Unmarshal(data, e, Config{})
		require.NoError(t, err)
		out, err := Marshal(e, Config{}, v)
		require.NoError(t, err)
		require.Equal(t, data, out)
	}
}

func TestEnumBuildContract(t *testing.T) {
	_, err := NewEnum("E").Build()
	require.ErrorIs(t, err, ErrContract)

	_, err = NewEnum("E").Variant(NewStruct("A"), NewStruct("A")).Build()
	require.ErrorIs(t, err, ErrContract)

	_, err = NewEnum("E").Variant(NewStruct("A").Field(F("a", U8).If(Expr("later"))), NewStruct("B")).Build()
	require.ErrorIs(t, err, ErrContract)
}
