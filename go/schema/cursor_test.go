// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderReadBytes(t *testing.T) {
	r := NewBytesReader([]byte{1, 2, 3, 4})

	b, err := r.ReadBytes(2)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, b)

	pos, err := r.Pos()
	require.NoError(t, err)
	require.Equal(t, int64(2), pos)

	_, err = r.ReadBytes(3)
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = r.ReadBytes(-1)
	require.ErrorIs(t, err, ErrNegativeCount)

	// A failed read does not move the cursor.
	pos, err = r.Pos()
	require.NoError(t, err)
	require.Equal(t, int64(2), pos)
}

func TestReaderHugeLengthDoesNotAllocate(t *testing.T) {
	r := NewBytesReader([]byte{1})
	_, err := r.ReadBytes(1 << 40)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, int64(0), ioErr.Pos)
}

func TestReaderReadTerm(t *testing.T) {
	r := NewBytesReader([]byte("ab\x00cd"))
	b, err := r.ReadTerm(0)
	require.NoError(t, err)
	require.Equal(t, []byte("ab"), b)

	pos, _ := r.Pos()
	require.Equal(t, int64(3), pos)

	_, err = r.ReadTerm(0)
	require.ErrorIs(t, err, ErrIO)
}

func TestReaderSeek(t *testing.T) {
	r := NewBytesReader([]byte{1, 2, 3, 4, 5})
	require.NoError(t, r.SeekFrom(-2, io.SeekEnd))
	b, err := r.ReadBytes(1)
	require.NoError(t, err)
	require.Equal(t, []byte{4}, b)

	require.NoError(t, r.Skip(-3))
	pos, _ := r.Pos()
	require.Equal(t, int64(1), pos)

	rem, err := r.Remaining()
	require.NoError(t, err)
	require.Equal(t, int64(4), rem)
}

func TestBufferZeroFillsGaps(t *testing.T) {
	var buf Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Seek(3))
	require.NoError(t, w.Write([]byte{9}))
	require.Equal(t, []byte{0, 0, 0, 9}, buf.Bytes())

	require.NoError(t, w.Seek(1))
	require.NoError(t, w.Write([]byte{7}))
	require.Equal(t, []byte{0, 7, 0, 9}, buf.Bytes())
	require.Equal(t, 4, buf.Len())

	_, err := buf.Seek(-10, io.SeekCurrent)
	require.Error(t, err)
}

func TestWriterPadAndAlign(t *testing.T) {
	var buf Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Write([]byte{1}))
	require.NoError(t, w.Align(4))
	require.NoError(t, w.Pad(2))
	require.NoError(t, w.Align(1))
	require.Equal(t, []byte{1, 0, 0, 0, 0, 0}, buf.Bytes())
}

func TestAlignPad(t *testing.T) {
	tests := []struct {
		pos, n, want int64
	}{
		{0, 4, 0},
		{1, 4, 3},
		{4, 4, 0},
		{5, 8, 3},
		{7, 1, 0},
		{7, 0, 0},
	}

	for _, tt := range tests {
		if got := alignPad(tt.pos, tt.n); got != tt.want {
			t.Errorf("alignPad(%d, %d) = %d, want %d", tt.pos, tt.n, got, tt.want)
		}
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x2a}, 0o600))

	f, err := OpenFile(path)
	require.NoError(t, err)

	v, err := Read(f.Reader(), U16, Config{Endian: Big})
	require.NoError(t, err)
	require.Equal(t, uint16(42), v)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("OpenFile() error = %v, want not exist", err)
	}
}

func TestOpenFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	f, err := OpenFile(path)
	require.NoError(t, err)
	require.Empty(t, f.Data)
	require.NoError(t, f.Close())
}
