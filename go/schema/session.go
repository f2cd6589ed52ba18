// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

// Read parses one value of type t. Pointers reached through t, including
// a top-level pointer, are resolved before Read returns.
func Read(r *Reader, t Type, cfg Config) (any, error) {
	cfg = sessionLogger(cfg, "read")
	if cfg.StartOffset != nil {
		if err := r.Seek(*cfg.StartOffset); err != nil {
			return nil, err
		}
	}
	start, _ := r.Pos()
	cfg.log().Debug().Stringer("type", typeLabel{t}).Int64("pos", start).Msg("read start")

	v, err := t.Read(r, cfg)
	if err != nil {
		cfg.log().Debug().Err(err).Msg("read failed")
		return nil, err
	}
	if err := afterParse(v, r, cfg); err != nil {
		return nil, err
	}
	return v, nil
}

// Write serializes v as t. Pointer targets are appended after the main
// body and their offsets patched in a second pass.
func Write(w *Writer, t Type, cfg Config, v any) error {
	cfg = sessionLogger(cfg, "write")
	if cfg.StartOffset != nil {
		if err := w.Seek(*cfg.StartOffset); err != nil {
			return err
		}
	}
	cfg.log().Debug().Stringer("type", typeLabel{t}).Msg("write start")

	if err := t.Write(w, cfg, v); err != nil {
		w.pending = nil
		return err
	}
	return w.finish()
}

// Unmarshal reads t from data.
func Unmarshal(data []byte, t Type, cfg Config) (any, error) {
	return Read(NewBytesReader(data), t, cfg)
}

// Marshal writes v as t into a new buffer.
func Marshal(t Type, cfg Config, v any) ([]byte, error) {
	var buf Buffer
	if err := Write(NewWriter(&buf), t, cfg, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type typeLabel struct{ t Type }

func (n typeLabel) String() string {
	if s, ok := n.t.(interface{ String() string }); ok {
		return s.String()
	}
	return "custom"
}
