// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

//go:build !unix

package schema

import "os"

// OpenFile reads a file into memory.
func OpenFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &File{Data: data}, nil
}

// Close drops the file contents.
func (f *File) Close() error {
	if f != nil {
		f.Data = nil
	}
	return nil
}
