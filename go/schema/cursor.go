// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"bytes"
	"fmt"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// Reader is the read side of a stream cursor. It tracks absolute positions
// and is owned by a single session.
type Reader struct {
	s *kaitai.Stream
}

// NewReader wraps any seekable source.
func NewReader(rs io.ReadSeeker) *Reader {
	return &Reader{s: kaitai.NewStream(rs)}
}

// NewBytesReader reads from an in-memory buffer.
func NewBytesReader(data []byte) *Reader {
	return NewReader(bytes.NewReader(data))
}

// Pos returns the absolute position.
func (r *Reader) Pos() (int64, error) {
	pos, err := r.s.Pos()
	if err != nil {
		return 0, &IOError{Pos: -1, Err: err}
	}
	return pos, nil
}

// Seek moves to an absolute position.
func (r *Reader) Seek(pos int64) error {
	return r.SeekFrom(pos, io.SeekStart)
}

// SeekFrom is io.Seeker semantics.
func (r *Reader) SeekFrom(off int64, whence int) error {
	if _, err := r.s.Seek(off, whence); err != nil {
		return &IOError{Pos: off, Err: err}
	}
	return nil
}

// Skip moves n bytes forward.
func (r *Reader) Skip(n int64) error {
	return r.SeekFrom(n, io.SeekCurrent)
}

// Size is the total length of the source.
func (r *Reader) Size() (int64, error) {
	size, err := r.s.Size()
	if err != nil {
		return 0, &IOError{Pos: -1, Err: err}
	}
	return size, nil
}

// Remaining is the number of bytes between the position and the end.
func (r *Reader) Remaining() (int64, error) {
	pos, err := r.Pos()
	if err != nil {
		return 0, err
	}
	size, err := r.Size()
	if err != nil {
		return 0, err
	}
	if pos > size {
		return 0, nil
	}
	return size - pos, nil
}

// ReadBytes reads exactly n bytes. The length is checked against the
// remaining input before anything is allocated.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	pos, err := r.Pos()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, &IOError{Pos: pos, Err: fmt.Errorf("read %d bytes: %w", n, ErrNegativeCount)}
	}
	rem, err := r.Remaining()
	if err != nil {
		return nil, err
	}
	if int64(n) > rem {
		return nil, &IOError{Pos: pos, Err: io.ErrUnexpectedEOF}
	}
	b, err := r.s.ReadBytes(n)
	if err != nil {
		return nil, &IOError{Pos: pos, Err: err}
	}
	return b, nil
}

// ReadTerm reads up to and including term, returning the bytes before it.
func (r *Reader) ReadTerm(term byte) ([]byte, error) {
	pos, err := r.Pos()
	if err != nil {
		return nil, err
	}
	b, err := r.s.ReadBytesTerm(term, false, true, true)
	if err != nil {
		return nil, &IOError{Pos: pos, Err: err}
	}
	return b, nil
}

// Writer is the write side of a stream cursor. Pointer targets queued during
// the first pass are emitted by finish.
type Writer struct {
	ws      io.WriteSeeker
	pending []pendingTarget
}

// NewWriter wraps any seekable sink.
func NewWriter(ws io.WriteSeeker) *Writer {
	return &Writer{ws: ws}
}

// Pos returns the absolute position.
func (w *Writer) Pos() (int64, error) {
	pos, err := w.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, &IOError{Pos: -1, Err: err}
	}
	return pos, nil
}

// Seek moves to an absolute position.
func (w *Writer) Seek(pos int64) error {
	return w.SeekFrom(pos, io.SeekStart)
}

// SeekFrom is io.Seeker semantics.
func (w *Writer) SeekFrom(off int64, whence int) error {
	if _, err := w.ws.Seek(off, whence); err != nil {
		return &IOError{Pos: off, Err: err}
	}
	return nil
}

// Write writes all of b.
func (w *Writer) Write(b []byte) error {
	if _, err := w.ws.Write(b); err != nil {
		pos, _ := w.ws.Seek(0, io.SeekCurrent)
		return &IOError{Pos: pos, Err: err}
	}
	return nil
}

// Pad writes n zero bytes.
func (w *Writer) Pad(n int64) error {
	if n <= 0 {
		return nil
	}
	return w.Write(make([]byte, n))
}

// Align pads with zeros up to the next multiple of n.
func (w *Writer) Align(n int64) error {
	pos, err := w.Pos()
	if err != nil {
		return err
	}
	return w.Pad(alignPad(pos, n))
}

// Buffer is an in-memory io.WriteSeeker. Writing past the end after a seek
// fills the gap with zeros.
type Buffer struct {
	buf []byte
	pos int64
}

func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.buf)) {
		b.buf = append(b.buf, make([]byte, end-int64(len(b.buf)))...)
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *Buffer) Seek(off int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = off
	case io.SeekCurrent:
		abs = b.pos + off
	case io.SeekEnd:
		abs = int64(len(b.buf)) + off
	default:
		return 0, fmt.Errorf("buffer: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("buffer: negative position %d", abs)
	}
	b.pos = abs
	return abs, nil
}

// Bytes returns the written data.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len is the length of the written data.
func (b *Buffer) Len() int { return len(b.buf) }
