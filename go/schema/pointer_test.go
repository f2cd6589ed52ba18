// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func ptrValue(t *testing.T, rec *Record, name string) *PtrValue {
	t.Helper()
	p, ok := field(t, rec, name).(*PtrValue)
	require.Truef(t, ok, "%s is not a pointer", name)
	return p
}

func TestPointerDeref(t *testing.T) {
	tests := []struct {
		name string
		ptr  *Field
	}{
		{"deferred", F("p", Ptr8(U8))},
		{"inline", F("p", Ptr8(U8)).DerefNow()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ := Must(NewStruct("S").Field(tt.ptr, F("x", U8)).Build())
			rec := unmarshalRecord(t, []byte{2, 9, 0x55}, typ, Config{})

			p := ptrValue(t, rec, "p")
			require.True(t, p.Resolved)
			require.Equal(t, int64(2), p.Offset)
			require.Equal(t, uint8(0x55), p.Value)
			require.Equal(t, uint8(9), field(t, rec, "x"))
		})
	}
}

func TestPointerOffsetAfter(t *testing.T) {
	typ := Must(NewStruct("S").Big().Field(
		F("p", Ptr8(U16)).OffsetAfter(Expr("base")),
		F("base", U8),
	).Build())

	rec := unmarshalRecord(t, []byte{1, 2, 0xAA, 0x12, 0x34}, typ, Config{})
	require.Equal(t, uint16(0x1234), ptrValue(t, rec, "p").Value)
}

func TestPointerOffsetAfterRejectsInline(t *testing.T) {
	_, err := NewStruct("S").Field(
		F("p", Ptr8(U8)).OffsetAfter(Expr("base")).Now(),
		F("base", U8),
	).Build()
	require.ErrorIs(t, err, ErrContract)

	// Plain Offset cannot look ahead.
	_, err = NewStruct("S").Field(
		F("p", Ptr8(U8)).Offset(Expr("base")),
		F("base", U8),
	).Build()
	require.ErrorIs(t, err, ErrContract)
}

func TestPointerOffsetBase(t *testing.T) {
	typ := Must(NewStruct("S").Field(
		F("base", U8),
		F("p", Ptr8(U8)).Offset(Expr("base")),
	).Build())

	rec := unmarshalRecord(t, []byte{2, 1, 0, 42}, typ, Config{})
	require.Equal(t, uint8(42), ptrValue(t, rec, "p").Value)

	out, err := Marshal(typ, Config{}, NewRecord("S").Set("base", 1).Set("p", uint8(42)))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 1, 42}, out)
}

func TestPointerNested(t *testing.T) {
	typ := Must(NewStruct("S").Field(F("p", Ptr8(Ptr8(U8)))).Build())

	rec := unmarshalRecord(t, []byte{1, 2, 77}, typ, Config{})
	outer := ptrValue(t, rec, "p")
	inner, ok := outer.Value.(*PtrValue)
	require.True(t, ok)
	require.True(t, inner.Resolved)
	require.Equal(t, uint8(77), inner.Value)
	require.Equal(t, map[string]any{"p": uint8(77)}, rec.Map())
}

func TestPointerTopLevel(t *testing.T) {
	v, err := Unmarshal([]byte{1, 5}, Ptr8(U8), Config{})
	require.NoError(t, err)
	p, ok := v.(*PtrValue)
	require.True(t, ok)
	require.Equal(t, uint8(5), p.Value)
}

func TestPointerArray(t *testing.T) {
	typ := Must(NewStruct("S").Field(F("ps", Ptr8(U8)).Count(Const(2))).Build())

	rec := unmarshalRecord(t, []byte{2, 3, 10, 20}, typ, Config{})
	require.Equal(t, map[string]any{"ps": []any{uint8(10), uint8(20)}}, rec.Map())
}

func TestPointerOutOfRange(t *testing.T) {
	typ := Must(NewStruct("S").Field(F("p", Ptr8(U16))).Build())
	_, err := Unmarshal([]byte{9}, typ, Config{})
	require.ErrorIs(t, err, ErrIO)
}

func TestPointerWrite(t *testing.T) {
	typ := Must(NewStruct("S").Big().Field(F("p", Ptr8(U16)), F("x", U8)).Build())

	tests := []struct {
		name string
		p    any
		want []byte
	}{
		{"raw value", uint16(0x1234), []byte{2, 7, 0x12, 0x34}},
		{"resolved pointer", &PtrValue{Value: uint16(0x1234), Resolved: true}, []byte{2, 7, 0x12, 0x34}},
		{"nil", nil, []byte{0, 7}},
		{"unresolved pointer", &PtrValue{Offset: 5}, []byte{0, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Marshal(typ, Config{}, NewRecord("S").Set("p", tt.p).Set("x", 7))
			require.NoError(t, err)
			require.Equal(t, tt.want, out)
		})
	}
}

func TestPointerWriteQueuesInOrder(t *testing.T) {
	typ := Must(NewStruct("S").Field(
		F("a", Ptr8(U8)),
		F("b", Ptr8(Ptr8(U8))),
	).Build())

	out, err := Marshal(typ, Config{}, NewRecord("S").Set("a", 0xA1).Set("b", 0xB2))
	require.NoError(t, err)
	// a's target at 2, b's pointer at 3, b's inner target at 4.
	require.Equal(t, []byte{2, 3, 0xA1, 4, 0xB2}, out)

	rec := unmarshalRecord(t, out, typ, Config{})
	require.Equal(t, map[string]any{"a": uint8(0xA1), "b": uint8(0xB2)}, rec.Map())
}

func TestPointerRoundTrip(t *testing.T) {
	typ := Must(NewStruct("S").Big().Field(F("p", Ptr8(U16)), F("x", U8)).Build())
	data := []byte{2, 7, 0x12, 0x34}

	v, err := Unmarshal(data, typ, Config{})
	require.NoError(t, err)
	out, err := Marshal(typ, Config{}, v)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestPointerJSON(t *testing.T) {
	typ := Must(NewStruct("S").Big().Field(F("p", Ptr8(U16)), F("x", U8)).Build())
	rec := unmarshalRecord(t, []byte{2, 7, 0x12, 0x34}, typ, Config{})

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	require.JSONEq(t, `{"p":4660,"x":7}`, string(b))

	b, err = json.Marshal(&PtrValue{Offset: 3})
	require.NoError(t, err)
	require.JSONEq(t, `3`, string(b))
}

const selfPointerSchema = `
name: cycle
types:
  node:
    fields:
      - name: v
        type: u8
      - name: next
        type: ptr8
        target: node
fields:
  - name: head
    type: node
`

func TestPointerCycle(t *testing.T) {
	s, err := ParseSchema(selfPointerSchema)
	require.NoError(t, err)

	// next points back at its own node
	_, err = s.Decode([]byte{0, 0})
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, ErrDepthExceeded)

	s.Config.MaxDepth = 8
	_, err = s.Decode([]byte{5, 2, 6, 0})
	require.ErrorIs(t, err, ErrDepthExceeded)
}

func TestSelfContainedType(t *testing.T) {
	s, err := ParseSchema(`
types:
  a:
    fields:
      - name: x
        type: a
fields:
  - name: a
    type: a
`)
	require.NoError(t, err)

	_, err = s.Decode([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrDepthExceeded)
}

func TestPointerDepthBudget(t *testing.T) {
	s, err := ParseSchema(`
types:
  node:
    fields:
      - name: value
        type: u8
      - name: has_next
        type: u8
      - name: next
        type: ptr8
        target: node
        if: "has_next == 1"
fields:
  - name: head
    type: ptr8
    target: node
`)
	require.NoError(t, err)
	data := []byte{1, 10, 1, 4, 20, 0}

	// root, head, first node, next, second node
	s.Config.MaxDepth = 5
	_, err = s.Decode(data)
	require.NoError(t, err)

	s.Config.MaxDepth = 4
	_, err = s.Decode(data)
	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	require.ErrorIs(t, err, ErrDepthExceeded)
}

func TestPointerCycleFallsThroughVariants(t *testing.T) {
	s, err := ParseSchema(`
types:
  node:
    fields:
      - name: next
        type: ptr8
        target: node
variants:
  - name: loop
    fields:
      - name: n
        type: node
  - name: raw
    fields:
      - name: b
        type: u8
`)
	require.NoError(t, err)

	rec, err := s.Decode([]byte{0})
	require.NoError(t, err)
	require.Equal(t, "raw", rec.Variant)
	require.Equal(t, map[string]any{"b": uint8(0)}, rec.Map())
}
