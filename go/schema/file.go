// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

// File is a whole file held in memory, mapped where the platform allows it.
type File struct {
	Data    []byte
	mmapped bool
}

// Reader returns a fresh cursor over the file contents.
func (f *File) Reader() *Reader {
	return NewBytesReader(f.Data)
}
