// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
	"math"
	"reflect"

	"golang.org/x/exp/constraints"
)

// Type is implemented by everything the engine can read and write.
type Type interface {
	Read(r *Reader, cfg Config) (any, error)
	Write(w *Writer, cfg Config, v any) error
}

// Int is a fixed width integer of Go type T.
type Int[T constraints.Integer] struct{}

// Float is an IEEE 754 float of Go type T.
type Float[T constraints.Float] struct{}

var (
	U8  Int[uint8]
	U16 Int[uint16]
	U32 Int[uint32]
	U64 Int[uint64]
	I8  Int[int8]
	I16 Int[int16]
	I32 Int[int32]
	I64 Int[int64]
	F32 Float[float32]
	F64 Float[float64]
)

func (Int[T]) size() int {
	return int(reflect.TypeFor[T]().Size())
}

func (Int[T]) signed() bool {
	var z T
	return ^z < 0
}

func (t Int[T]) String() string {
	if t.signed() {
		return fmt.Sprintf("i%d", t.size()*8)
	}
	return fmt.Sprintf("u%d", t.size()*8)
}

func (t Int[T]) Read(r *Reader, cfg Config) (any, error) {
	b, err := r.ReadBytes(t.size())
	if err != nil {
		return nil, err
	}
	return T(decodeUint(b, cfg.Endian)), nil
}

func (t Int[T]) Write(w *Writer, cfg Config, v any) error {
	n, err := intValue[T](v)
	if err != nil {
		return err
	}
	return w.Write(encodeUint(uint64(n), t.size(), cfg.Endian))
}

// intValue converts v to T, rejecting values that do not fit.
func intValue[T constraints.Integer](v any) (T, error) {
	var z T
	if u, ok := v.(uint64); ok && u > math.MaxInt64 {
		t := T(u)
		if ^z < 0 || uint64(t) != u {
			return z, contractf("value %d does not fit %T", u, z)
		}
		return t, nil
	}
	n, ok := toInt64(v)
	if !ok {
		return z, contractf("cannot write %T as %T", v, z)
	}
	t := T(n)
	if int64(t) != n || (n < 0 && ^z >= 0) {
		return z, contractf("value %d does not fit %T", n, z)
	}
	return t, nil
}

func (t Float[T]) size() int {
	return int(reflect.TypeFor[T]().Size())
}

func (t Float[T]) String() string { return fmt.Sprintf("f%d", t.size()*8) }

func (t Float[T]) Read(r *Reader, cfg Config) (any, error) {
	b, err := r.ReadBytes(t.size())
	if err != nil {
		return nil, err
	}
	f, err := decodeFloat(b, cfg.Endian)
	if err != nil {
		return nil, err
	}
	return T(f), nil
}

func (t Float[T]) Write(w *Writer, cfg Config, v any) error {
	f, ok := toFloat64(v)
	if !ok {
		return contractf("cannot write %T as %s", v, t)
	}
	return w.Write(encodeFloat(f, t.size(), cfg.Endian))
}

// F16 is a half precision float, decoded to float64.
var F16 half

type half struct{}

func (half) String() string { return "f16" }

func (half) Read(r *Reader, cfg Config) (any, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	return decodeFloat(b, cfg.Endian)
}

func (h half) Write(w *Writer, cfg Config, v any) error {
	f, ok := toFloat64(v)
	if !ok {
		return contractf("cannot write %T as f16", v)
	}
	return w.Write(encodeFloat(f, 2, cfg.Endian))
}

// UintN and SintN are integers of an arbitrary width from 1 to 8 bytes.
type sized struct {
	n      int
	signed bool
}

// UintN returns an unsigned integer of n bytes, decoded to uint64.
func UintN(n int) Type { return sized{n: n} }

// SintN returns a signed integer of n bytes, decoded to int64.
func SintN(n int) Type { return sized{n: n, signed: true} }

func (s sized) String() string {
	if s.signed {
		return fmt.Sprintf("s%d", s.n*8)
	}
	return fmt.Sprintf("u%d", s.n*8)
}

func (s sized) Read(r *Reader, cfg Config) (any, error) {
	if s.n < 1 || s.n > 8 {
		return nil, contractf("integer width %d out of range", s.n)
	}
	b, err := r.ReadBytes(s.n)
	if err != nil {
		return nil, err
	}
	if s.signed {
		return decodeSint(b, cfg.Endian), nil
	}
	return decodeUint(b, cfg.Endian), nil
}

func (s sized) Write(w *Writer, cfg Config, v any) error {
	if s.n < 1 || s.n > 8 {
		return contractf("integer width %d out of range", s.n)
	}
	if u, ok := v.(uint64); ok && !s.signed {
		return w.Write(encodeUint(u, s.n, cfg.Endian))
	}
	n, ok := toInt64(v)
	if !ok {
		return contractf("cannot write %T as %s", v, s)
	}
	return w.Write(encodeUint(uint64(n), s.n, cfg.Endian))
}

// Bool is one byte, non-zero meaning true.
var Bool boolean

type boolean struct{}

func (boolean) String() string { return "bool" }

func (boolean) Read(r *Reader, _ Config) (any, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return nil, err
	}
	return b[0] != 0, nil
}

func (boolean) Write(w *Writer, _ Config, v any) error {
	b, ok := v.(bool)
	if !ok {
		return contractf("cannot write %T as bool", v)
	}
	if b {
		return w.Write([]byte{1})
	}
	return w.Write([]byte{0})
}

// Bytes returns a fixed length raw byte type. Shorter values are zero padded
// on write, longer ones truncated.
func Bytes(n int) Type { return rawBytes(n) }

type rawBytes int

func (b rawBytes) String() string { return fmt.Sprintf("bytes[%d]", int(b)) }

func (b rawBytes) Read(r *Reader, _ Config) (any, error) {
	return r.ReadBytes(int(b))
}

func (b rawBytes) Write(w *Writer, _ Config, v any) error {
	var data []byte
	switch x := v.(type) {
	case []byte:
		data = x
	case string:
		data = []byte(x)
	default:
		return contractf("cannot write %T as %s", v, b)
	}
	padded := make([]byte, int(b))
	copy(padded, data)
	return w.Write(padded)
}

// NullString is a zero terminated string.
var NullString nullString

type nullString struct{}

func (nullString) String() string { return "null_string" }

func (nullString) Read(r *Reader, _ Config) (any, error) {
	b, err := r.ReadTerm(0)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (nullString) Write(w *Writer, _ Config, v any) error {
	var data []byte
	switch x := v.(type) {
	case string:
		data = []byte(x)
	case []byte:
		data = x
	default:
		return contractf("cannot write %T as null_string", v)
	}
	return w.Write(append(append([]byte{}, data...), 0))
}

// zeroValue is what a default directive stores for t.
func zeroValue(t Type) any {
	switch x := t.(type) {
	case Int[uint8]:
		return uint8(0)
	case Int[uint16]:
		return uint16(0)
	case Int[uint32]:
		return uint32(0)
	case Int[uint64]:
		return uint64(0)
	case Int[int8]:
		return int8(0)
	case Int[int16]:
		return int16(0)
	case Int[int32]:
		return int32(0)
	case Int[int64]:
		return int64(0)
	case Float[float32]:
		return float32(0)
	case Float[float64], half:
		return float64(0)
	case sized:
		if x.signed {
			return int64(0)
		}
		return uint64(0)
	case boolean:
		return false
	case rawBytes:
		return make([]byte, int(x))
	case nullString:
		return ""
	case *Struct:
		return x.zero()
	case *Pointer:
		return &PtrValue{target: x.Target}
	case *lazyType:
		return zeroValue(x.get())
	}
	return nil
}

// =============================================================================
// Codec helpers
// =============================================================================

func encodeUint(val uint64, length int, endian Endian) []byte {
	buf := make([]byte, length)
	if endian.little() {
		for i := 0; i < length; i++ {
			buf[i] = byte(val >> (8 * i))
		}
	} else {
		for i := length - 1; i >= 0; i-- {
			buf[i] = byte(val)
			val >>= 8
		}
	}
	return buf
}

func decodeUint(data []byte, endian Endian) uint64 {
	var val uint64
	if endian.little() {
		for i := len(data) - 1; i >= 0; i-- {
			val = (val << 8) | uint64(data[i])
		}
	} else {
		for _, b := range data {
			val = (val << 8) | uint64(b)
		}
	}
	return val
}

func decodeSint(data []byte, endian Endian) int64 {
	shift := 64 - uint(len(data))*8
	return int64(decodeUint(data, endian)<<shift) >> shift
}

func encodeFloat(val float64, size int, endian Endian) []byte {
	order := endian.ByteOrder()
	buf := make([]byte, size)
	switch size {
	case 2:
		order.PutUint16(buf, float64ToFloat16(val))
	case 4:
		order.PutUint32(buf, math.Float32bits(float32(val)))
	default:
		order.PutUint64(buf, math.Float64bits(val))
	}
	return buf
}

func decodeFloat(data []byte, endian Endian) (float64, error) {
	order := endian.ByteOrder()
	switch len(data) {
	case 2:
		return float16ToFloat64(order.Uint16(data)), nil
	case 4:
		return float64(math.Float32frombits(order.Uint32(data))), nil
	case 8:
		return math.Float64frombits(order.Uint64(data)), nil
	default:
		return 0, fmt.Errorf("unsupported float size: %d", len(data))
	}
}

func float16ToFloat64(u16 uint16) float64 {
	sign := (u16 >> 15) & 0x1
	exp := (u16 >> 10) & 0x1f
	mant := u16 & 0x3ff

	var val float64
	if exp == 0 {
		// Subnormal or zero
		val = math.Pow(2, -14) * float64(mant) / 1024
	} else if exp == 31 {
		if mant != 0 {
			return math.NaN()
		}
		val = math.Inf(1)
	} else {
		val = math.Pow(2, float64(exp)-15) * (1 + float64(mant)/1024)
	}

	if sign == 1 {
		val = -val
	}
	return val
}

// float64ToFloat16 truncates toward zero.
func float64ToFloat16(f float64) uint16 {
	bits := math.Float32bits(float32(f))
	sign := uint16(bits>>16) & 0x8000
	if math.IsNaN(f) {
		return sign | 0x7e00
	}
	exp := int((bits>>23)&0xff) - 127 + 15
	mant := bits & 0x7fffff
	switch {
	case exp >= 31:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		return sign | uint16(mant>>uint(14-exp))
	}
	return sign | uint16(exp)<<10 | uint16(mant>>13)
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	}
	if n, ok := toInt64(v); ok {
		if u, isU := v.(uint64); isU {
			return float64(u), true
		}
		return float64(n), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float64:
		return int64(math.Round(val)), true
	case float32:
		return int64(math.Round(float64(val))), true
	case *PtrValue:
		return val.Offset, true
	}
	return 0, false
}
