// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var compactFormatPattern = regexp.MustCompile(`(\d*)([a-zA-Z?]):?(\w*)`)

var structFormats = map[byte]Type{
	'b': I8,
	'B': U8,
	'h': I16,
	'H': U16,
	'i': I32,
	'I': U32,
	'l': I32,
	'L': U32,
	'q': I64,
	'Q': U64,
	'e': F16,
	'f': F32,
	'd': F64,
	'?': Bool,
	'c': U8,
}

// ParseCompact builds a struct from a Python struct-like format string such
// as ">B:kind H:len 2x I:crc". A leading byte order character selects the
// type endian, big when absent. Repeated named fields become name_0,
// name_1 and so on; unnamed ones are named after their position.
func ParseCompact(format string) (*Struct, error) {
	format = strings.TrimSpace(format)
	endian := Big
	if len(format) > 0 && strings.ContainsRune("<>!=@", rune(format[0])) {
		e, err := ParseEndian(format[:1])
		if err != nil {
			return nil, err
		}
		endian = e
		format = format[1:]
	}

	b := NewStruct("compact").Endian(endian)
	var (
		fields []*Field
		pad    int64
	)
	for _, match := range compactFormatPattern.FindAllStringSubmatch(format, -1) {
		countStr, fmtChar, name := match[1], match[2][0], match[3]

		count := 1
		if countStr != "" {
			n, err := strconv.Atoi(countStr)
			if err != nil {
				return nil, fmt.Errorf("bad repeat count %q: %w", countStr, err)
			}
			count = n
		}

		switch fmtChar {
		case 'x':
			pad += int64(count)
			continue
		case 's', 'p':
			f := F(compactName(name, len(fields), 0, 1), Bytes(count)).Map(trimString)
			fields = append(fields, f.PadBefore(pad))
			pad = 0
			continue
		}

		typ, ok := structFormats[fmtChar]
		if !ok {
			return nil, fmt.Errorf("unknown format character: %c", fmtChar)
		}
		for i := 0; i < count; i++ {
			f := F(compactName(name, len(fields), i, count), typ).PadBefore(pad)
			pad = 0
			fields = append(fields, f)
		}
	}
	if pad > 0 {
		if len(fields) == 0 {
			return nil, fmt.Errorf("format has only padding")
		}
		last := fields[len(fields)-1]
		last.PadAfter(last.padAfter + pad)
	}
	return b.Field(fields...).Build()
}

func compactName(name string, index, i, count int) string {
	switch {
	case name == "":
		return fmt.Sprintf("field_%d", index)
	case count > 1:
		return fmt.Sprintf("%s_%d", name, i)
	}
	return name
}

func trimString(v any) (any, error) {
	b, ok := v.([]byte)
	if !ok {
		return v, nil
	}
	return string(bytes.TrimRight(b, "\x00")), nil
}

// DecodeCompact decodes binary data using a compact format string.
func DecodeCompact(format string, data []byte) (*Record, error) {
	s, err := ParseCompact(format)
	if err != nil {
		return nil, err
	}
	v, err := Unmarshal(data, s, Config{})
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}
