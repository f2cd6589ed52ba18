// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sentinel errors. Every concrete error type below matches exactly one of
// these with errors.Is.
var (
	ErrBadMagic       = errors.New("schema: bad magic")
	ErrAssertFail     = errors.New("schema: assertion failed")
	ErrIO             = errors.New("schema: io failure")
	ErrNoVariantMatch = errors.New("schema: no variant matched")
	ErrEnumErrors     = errors.New("schema: every variant failed")
	ErrContract       = errors.New("schema: contract violation")

	ErrNegativeCount = errors.New("negative count")
	ErrCountTooLarge = errors.New("count exceeds limit")
	ErrDepthExceeded = errors.New("nesting too deep")
)

// BadMagicError reports a magic value mismatch at Pos.
type BadMagicError struct {
	Pos      int64
	Expected []byte
	Found    []byte
}

func (e *BadMagicError) Error() string {
	return fmt.Sprintf("bad magic at 0x%x: expected %x, found %x", e.Pos, e.Expected, e.Found)
}

func (e *BadMagicError) Is(target error) bool { return target == ErrBadMagic }

// AssertError reports a failed assertion. Payload is the caller supplied
// value attached to the assertion, or nil.
type AssertError struct {
	Pos     int64
	Message string
	Payload any
}

func (e *AssertError) Error() string {
	if e.Payload != nil {
		return fmt.Sprintf("assertion failed at 0x%x: %s (%v)", e.Pos, e.Message, e.Payload)
	}
	return fmt.Sprintf("assertion failed at 0x%x: %s", e.Pos, e.Message)
}

func (e *AssertError) Is(target error) bool { return target == ErrAssertFail }

// IOError wraps a failure of the underlying stream.
type IOError struct {
	Pos int64
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error at 0x%x: %v", e.Pos, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// VariantError is the failure of one variant trial.
type VariantError struct {
	Variant string
	Err     error
}

func (e VariantError) Error() string {
	return fmt.Sprintf("%s: %v", e.Variant, e.Err)
}

// NoVariantError is returned by a first-match enum when no variant produced a
// distinguishing error.
type NoVariantError struct {
	Pos    int64
	Errors []VariantError
}

func (e *NoVariantError) Error() string {
	return fmt.Sprintf("no variant matched at 0x%x: %s", e.Pos, joinVariantErrors(e.Errors))
}

func (e *NoVariantError) Is(target error) bool { return target == ErrNoVariantMatch }

// EnumErrors is returned by a collect-all enum. Errors holds exactly one entry
// per variant in declaration order.
type EnumErrors struct {
	Pos    int64
	Errors []VariantError
}

func (e *EnumErrors) Error() string {
	return fmt.Sprintf("every variant failed at 0x%x: %s", e.Pos, joinVariantErrors(e.Errors))
}

func (e *EnumErrors) Is(target error) bool { return target == ErrEnumErrors }

// ContractError reports a misuse of the engine: bad descriptors, ordering
// violations in expressions, argument mismatches.
type ContractError struct {
	Description string
}

func (e *ContractError) Error() string { return "contract violation: " + e.Description }

func (e *ContractError) Is(target error) bool { return target == ErrContract }

func contractf(format string, args ...any) *ContractError {
	return &ContractError{Description: fmt.Sprintf(format, args...)}
}

func joinVariantErrors(errs []VariantError) string {
	parts := make([]string, len(errs))
	for i, ve := range errs {
		parts[i] = ve.Error()
	}
	return "[" + strings.Join(parts, "; ") + "]"
}

// ioError wraps err unless it is already one of the engine's error types.
func ioError(pos int64, err error) error {
	if err == nil {
		return nil
	}
	if isEngineError(err) {
		return err
	}
	return &IOError{Pos: pos, Err: err}
}

func isEngineError(err error) bool {
	var (
		bm *BadMagicError
		ae *AssertError
		ie *IOError
		nv *NoVariantError
		ee *EnumErrors
		ce *ContractError
	)
	return errors.As(err, &bm) || errors.As(err, &ae) || errors.As(err, &ie) ||
		errors.As(err, &nv) || errors.As(err, &ee) || errors.As(err, &ce)
}

// isDataError reports whether err came from the bytes themselves, as opposed
// to a broken stream or a broken descriptor. Only data errors let a variant
// selector move on to the next candidate.
func isDataError(err error) bool {
	switch {
	case errors.Is(err, ErrContract):
		return false
	case errors.Is(err, ErrIO):
		return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
			errors.Is(err, ErrNegativeCount) || errors.Is(err, ErrCountTooLarge) ||
			errors.Is(err, ErrDepthExceeded)
	}
	return true
}
