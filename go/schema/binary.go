// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
)

// Binary schema format constants
const (
	BinaryVersion1 = 0x01
	BinaryVersion2 = 0x02
)

// Field type codes for binary format
const (
	BinTypeUnsigned   = 0x0
	BinTypeSigned     = 0x1
	BinTypeFloat      = 0x2
	BinTypeBytes      = 0x3
	BinTypeBool       = 0x4
	BinTypeEnum       = 0x5
	BinTypeBitfield   = 0x6
	BinTypeStructural = 0x7
)

// BinaryField represents a field in binary schema format (4 bytes)
type BinaryField struct {
	TypeByte   byte   // Type (4 bits) + Size (4 bits)
	MultExp    int8   // Multiplier exponent (-128 to 127)
	SemanticID uint16 // IPSO semantic ID or 0
}

// BinarySchema represents a binary-encoded schema
type BinarySchema struct {
	Version byte
	Fields  []BinaryField
}

// The table is itself described with the engine.
// Header: version(1) + field_count(1)
// Field:  type_byte(1) + mult_exp(1) + semantic_id(2, little endian)
var (
	binaryFieldType = Must(NewStruct("binary_field").Field(
		F("type_byte", U8),
		F("mult_exp", I8),
		F("semantic_id", U16).Little(),
	).Build())

	binaryTableType = Must(NewStruct("binary_schema").Big().Field(
		F("version", U8).
			Assert(Expr("version == 1 || version == 2"), "unsupported binary schema version", Expr("version")),
		F("field_count", U8),
		F("fields", binaryFieldType).Count(Expr("field_count")),
	).Build())
)

// DecodeBinaryTable reads the field table.
func DecodeBinaryTable(data []byte) (*BinarySchema, error) {
	v, err := Unmarshal(data, binaryTableType, Config{})
	if err != nil {
		return nil, fmt.Errorf("binary schema: %w", err)
	}
	rec := v.(*Record)
	version, _ := rec.Get("version")
	entries, _ := rec.Get("fields")

	bs := &BinarySchema{Version: version.(uint8)}
	for _, e := range entries.([]any) {
		fr := e.(*Record)
		tb, _ := fr.Get("type_byte")
		me, _ := fr.Get("mult_exp")
		sid, _ := fr.Get("semantic_id")
		bs.Fields = append(bs.Fields, BinaryField{
			TypeByte:   tb.(uint8),
			MultExp:    me.(int8),
			SemanticID: sid.(uint16),
		})
	}
	return bs, nil
}

// Encode writes the field table.
func (bs *BinarySchema) Encode() ([]byte, error) {
	if len(bs.Fields) > 255 {
		return nil, fmt.Errorf("too many fields for binary schema: %d (max 255)", len(bs.Fields))
	}
	version := bs.Version
	if version == 0 {
		version = BinaryVersion1
	}
	entries := make([]any, len(bs.Fields))
	for i, f := range bs.Fields {
		entries[i] = NewRecord("binary_field").
			Set("type_byte", f.TypeByte).
			Set("mult_exp", f.MultExp).
			Set("semantic_id", f.SemanticID)
	}
	rec := NewRecord("binary_schema").
		Set("version", version).
		Set("field_count", uint8(len(entries))).
		Set("fields", entries)
	return Marshal(binaryTableType, Config{}, rec)
}

// Struct builds the payload layout the table describes. Fields are named
// field_0, field_1 and so on; a non-zero exponent scales the value.
func (bs *BinarySchema) Struct() (*Struct, error) {
	b := NewStruct("binary").Big()
	for i, bf := range bs.Fields {
		typ, err := binaryFieldToType(bf.TypeByte)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		f := F(fmt.Sprintf("field_%d", i), typ)
		if bf.MultExp != 0 {
			mult := expToMult(bf.MultExp)
			fd := FieldDef{Mult: &mult}
			f.MapBoth(fd.valueMap())
		}
		b.Field(f)
	}
	return b.Build()
}

// ParseBinarySchema parses a binary schema format into a Schema.
func ParseBinarySchema(data []byte) (*Schema, error) {
	bs, err := DecodeBinaryTable(data)
	if err != nil {
		return nil, err
	}
	s, err := bs.Struct()
	if err != nil {
		return nil, err
	}
	return &Schema{Name: "binary", Version: int(bs.Version), Root: s, Types: map[string]Type{}}, nil
}

// EncodeBinarySchema encodes a struct of primitive fields to binary format.
// Exponents and semantic ids are written as zero.
func EncodeBinarySchema(s *Struct) ([]byte, error) {
	bs := &BinarySchema{Version: BinaryVersion1}
	for _, f := range s.fields {
		tb, err := typeToBinaryByte(f.typ)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.name, err)
		}
		bs.Fields = append(bs.Fields, BinaryField{TypeByte: tb})
	}
	return bs.Encode()
}

// Helper functions

func decodeSizeCode(code byte) int {
	sizes := []int{1, 2, 3, 4, 8, 16, 32, 64}
	if int(code) < len(sizes) {
		return sizes[code]
	}
	return 1
}

func encodeSizeCode(size int) (byte, bool) {
	switch size {
	case 1:
		return 0, true
	case 2:
		return 1, true
	case 3:
		return 2, true
	case 4:
		return 3, true
	case 8:
		return 4, true
	case 16:
		return 5, true
	case 32:
		return 6, true
	case 64:
		return 7, true
	}
	return 0, false
}

func binaryFieldToType(typeByte byte) (Type, error) {
	typeCode := typeByte >> 4
	size := decodeSizeCode(typeByte & 0x0F)

	switch typeCode {
	case BinTypeUnsigned, BinTypeSigned:
		if size > 8 {
			return nil, fmt.Errorf("integer of %d bytes", size)
		}
		return intType(size, typeCode == BinTypeSigned), nil
	case BinTypeFloat:
		switch size {
		case 2:
			return F16, nil
		case 4:
			return F32, nil
		case 8:
			return F64, nil
		}
		return nil, fmt.Errorf("float of %d bytes", size)
	case BinTypeBool:
		return Bool, nil
	case BinTypeBytes:
		return Bytes(size), nil
	}
	return U8, nil
}

// intType prefers the fixed width Go integer types over UintN and SintN.
func intType(size int, signed bool) Type {
	switch {
	case size == 1 && signed:
		return I8
	case size == 1:
		return U8
	case size == 2 && signed:
		return I16
	case size == 2:
		return U16
	case size == 4 && signed:
		return I32
	case size == 4:
		return U32
	case size == 8 && signed:
		return I64
	case size == 8:
		return U64
	case signed:
		return SintN(size)
	}
	return UintN(size)
}

func typeToBinaryByte(t Type) (byte, error) {
	var (
		typeCode byte
		size     int
	)
	switch x := t.(type) {
	case Int[uint8], Int[uint16], Int[uint32], Int[uint64]:
		typeCode = BinTypeUnsigned
	case Int[int8], Int[int16], Int[int32], Int[int64]:
		typeCode = BinTypeSigned
	case sized:
		if x.signed {
			typeCode = BinTypeSigned
		} else {
			typeCode = BinTypeUnsigned
		}
	case Float[float32], Float[float64], half:
		typeCode = BinTypeFloat
	case boolean:
		typeCode = BinTypeBool
	case rawBytes:
		typeCode = BinTypeBytes
	default:
		return 0, fmt.Errorf("type %v has no binary code", t)
	}
	size, _ = fixedSize(t)
	sizeCode, ok := encodeSizeCode(size)
	if !ok {
		return 0, fmt.Errorf("size %d has no binary code", size)
	}
	return typeCode<<4 | sizeCode, nil
}

func expToMult(exp int8) float64 {
	if exp == 0 {
		return 1.0
	}
	result := 1.0
	if exp > 0 {
		for i := int8(0); i < exp; i++ {
			result *= 10
		}
	} else {
		for i := int8(0); i > exp; i-- {
			result /= 10
		}
	}
	return result
}
