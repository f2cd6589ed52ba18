// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"encoding/hex"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func loadSchemaFile(t *testing.T, path string) *Schema {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Error reading %s: %v", path, err)
	}
	s, err := ParseSchema(string(data))
	if err != nil {
		t.Fatalf("Error parsing %s: %v", path, err)
	}
	return s
}

func TestBMPHeaderSchema(t *testing.T) {
	s := loadSchemaFile(t, "../../schemas/formats/bmp_header.yaml")

	payload, _ := hex.DecodeString("424d" + "46000000" + "00000000" + "36000000" +
		"28000000" + "02000000" + "feffffff" + "0100" + "1800")
	rec, err := s.Decode(payload)
	if err != nil {
		t.Fatalf("Error decoding BMP header: %v", err)
	}

	require.Equal(t, uint32(70), field(t, rec, "file_size"))
	require.Equal(t, uint32(54), field(t, rec, "pixel_offset"))
	require.Equal(t, int32(2), field(t, rec, "width"))
	require.Equal(t, int32(-2), field(t, rec, "height"))
	require.Equal(t, uint16(24), field(t, rec, "bits_per_pixel"))

	out, err := s.Encode(rec)
	require.NoError(t, err)
	require.Equal(t, payload, out)

	// planes = 2
	bad := append([]byte(nil), payload...)
	bad[26] = 2
	_, err = s.Decode(bad)
	require.ErrorIs(t, err, ErrAssertFail)

	_, err = s.Decode(append([]byte("PK"), payload[2:]...))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestTLVSchema(t *testing.T) {
	s := loadSchemaFile(t, "../../schemas/formats/tlv.yaml")

	tests := []struct {
		name    string
		payload string
		variant string
		want    map[string]any
	}{
		{"temperature", "0109c4", "temperature", map[string]any{"celsius": 25.0}},
		{"text", "02026869", "text", map[string]any{"len": uint8(2), "chars": []any{uint8('h'), uint8('i')}}},
		{"fallback", "7f", "raw", map[string]any{"tag": uint8(0x7f)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, _ := hex.DecodeString(tt.payload)
			rec, err := s.Decode(payload)
			if err != nil {
				t.Fatalf("Error decoding %s: %v", tt.payload, err)
			}
			if rec.Variant != tt.variant {
				t.Errorf("variant = %s, want %s", rec.Variant, tt.variant)
			}
			require.Equal(t, tt.want, rec.Map())

			out, err := s.Encode(rec)
			require.NoError(t, err)
			require.Equal(t, payload, out)
		})
	}

	// A truncated temperature falls through to raw.
	rec, err := s.Decode([]byte{0x01, 0x09})
	require.NoError(t, err)
	require.Equal(t, "raw", rec.Variant)
}

func TestStringTableSchema(t *testing.T) {
	s := loadSchemaFile(t, "../../schemas/formats/string_table.yaml")

	payload := []byte{2, 4, 0, 3, 'a', 'b', 0, 'c', 'd', 0}
	rec, err := s.Decode(payload)
	if err != nil {
		t.Fatalf("Error decoding string table: %v", err)
	}
	require.Equal(t, []any{"ab", "cd"}, rec.Map()["names"])

	names := field(t, rec, "names").([]any)
	require.Equal(t, int64(3), names[1].(*PtrValue).Offset)
}
