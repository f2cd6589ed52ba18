// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactFormat(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		data    []byte
		want    map[string]any
		wantErr bool
	}{
		{
			name:   "simple uint8",
			format: ">B:value",
			data:   []byte{0xff},
			want:   map[string]any{"value": uint8(255)},
		},
		{
			name:   "multiple fields",
			format: ">B:a H:b B:c",
			data:   []byte{0x01, 0x00, 0x02, 0x03},
			want:   map[string]any{"a": uint8(1), "b": uint16(2), "c": uint8(3)},
		},
		{
			name:   "little endian",
			format: "<H:value",
			data:   []byte{0x00, 0x01},
			want:   map[string]any{"value": uint16(256)},
		},
		{
			name:   "signed negative",
			format: ">h:value",
			data:   []byte{0xff, 0xfe},
			want:   map[string]any{"value": int16(-2)},
		},
		{
			name:   "with skip",
			format: ">B:first 2x B:last",
			data:   []byte{0x01, 0x00, 0x00, 0xff},
			want:   map[string]any{"first": uint8(1), "last": uint8(255)},
		},
		{
			name:   "trailing skip",
			format: ">B:first 2x",
			data:   []byte{0x01, 0x00, 0x00},
			want:   map[string]any{"first": uint8(1)},
		},
		{
			name:   "string",
			format: ">5s:text",
			data:   []byte("Hello"),
			want:   map[string]any{"text": "Hello"},
		},
		{
			name:   "string trims nul",
			format: ">4s:text",
			data:   []byte("ab\x00\x00"),
			want:   map[string]any{"text": "ab"},
		},
		{
			name:   "bool",
			format: ">?:a ?:b",
			data:   []byte{0x00, 0x01},
			want:   map[string]any{"a": false, "b": true},
		},
		{
			name:   "repeated named",
			format: ">3B:val",
			data:   []byte{7, 8, 9},
			want:   map[string]any{"val_0": uint8(7), "val_1": uint8(8), "val_2": uint8(9)},
		},
		{
			name:   "unnamed",
			format: ">B H",
			data:   []byte{1, 0, 2},
			want:   map[string]any{"field_0": uint8(1), "field_1": uint16(2)},
		},
		{
			name:    "buffer underflow",
			format:  ">H H H",
			data:    []byte{0x01, 0x02},
			wantErr: true,
		},
		{
			name:    "unknown character",
			format:  ">ZZZ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCompact(tt.format, tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeCompact() expected error")
				}
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Map())
		})
	}
}

func TestCompactFormatEndians(t *testing.T) {
	tests := []struct {
		prefix string
		want   Endian
	}{
		{"", Big},
		{">", Big},
		{"<", Little},
		{"!", Big},
		{"=", Native},
		{"@", Native},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			s, err := ParseCompact(tt.prefix + "B")
			require.NoError(t, err)
			if s.endian != tt.want {
				t.Errorf("endian = %v, want %v", s.endian, tt.want)
			}
		})
	}
}

func TestCompactFormatAllTypes(t *testing.T) {
	for c := range structFormats {
		t.Run(string(c), func(t *testing.T) {
			s, err := ParseCompact(string(c))
			require.NoError(t, err)
			require.Len(t, s.Fields(), 1)
		})
	}
}

func TestCompactFormatEmpty(t *testing.T) {
	rec, err := DecodeCompact("", []byte{0x01, 0x02})
	require.NoError(t, err)
	require.Equal(t, 0, rec.Len())

	_, err = ParseCompact("4x")
	require.Error(t, err)
}

func TestCompactFormatFloat(t *testing.T) {
	rec, err := DecodeCompact(">f:val e:half", []byte{0x40, 0x48, 0xf5, 0xc3, 0x3c, 0x00})
	require.NoError(t, err)

	val, ok := field(t, rec, "val").(float32)
	require.True(t, ok)
	if math.Abs(float64(val)-3.14) > 0.01 {
		t.Errorf("val = %v, want ~3.14", val)
	}
	require.Equal(t, 1.0, field(t, rec, "half"))
}

func TestCompactRoundTrip(t *testing.T) {
	s, err := ParseCompact("<B:kind 2x H:len 4s:tag")
	require.NoError(t, err)

	data := []byte{0x05, 0x00, 0x00, 0x10, 0x00, 'a', 'b', 'c', 'd'}
	v, err := Unmarshal(data, s, Config{})
	require.NoError(t, err)

	out, err := Marshal(s, Config{}, v)
	require.NoError(t, err)
	require.Equal(t, data, out)
}
