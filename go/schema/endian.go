// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Endian is a byte order selection. Unspecified defers to the next level of
// the precedence chain.
type Endian int

const (
	Unspecified Endian = iota
	Big
	Little
	Native
)

func (e Endian) String() string {
	switch e {
	case Big:
		return "big"
	case Little:
		return "little"
	case Native:
		return "native"
	}
	return "unspecified"
}

// ParseEndian accepts the names used in schema documents.
func ParseEndian(s string) (Endian, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Unspecified, nil
	case "big", "be", ">", "!":
		return Big, nil
	case "little", "le", "<":
		return Little, nil
	case "native", "=", "@":
		return Native, nil
	}
	return Unspecified, fmt.Errorf("unknown endian: %q", s)
}

// ByteOrder maps the selection onto encoding/binary. Unspecified and Native
// both mean the host order.
func (e Endian) ByteOrder() binary.ByteOrder {
	switch e {
	case Big:
		return binary.BigEndian
	case Little:
		return binary.LittleEndian
	}
	return binary.NativeEndian
}

func (e Endian) little() bool {
	switch e {
	case Big:
		return false
	case Little:
		return true
	}
	return hostLittle()
}

func (e Endian) flip() Endian {
	switch e {
	case Big:
		return Little
	case Little:
		return Big
	}
	if hostLittle() {
		return Big
	}
	return Little
}

func hostLittle() bool {
	return binary.NativeEndian.Uint16([]byte{1, 0}) == 1
}

// endianOverride is the field level directive: nothing, a fixed order, or an
// order chosen by a boolean guard over earlier siblings.
type endianOverride struct {
	fixed Endian
	guard *Expression
	when  Endian
}

func (o endianOverride) set() bool {
	return o.fixed != Unspecified || o.guard != nil
}

// resolveEndian applies field > variant > type > config > native. levels are
// given highest first, after the field override.
func resolveEndian(o endianOverride, s *Scope, levels ...Endian) (Endian, error) {
	if o.guard != nil {
		ok, err := o.guard.evalBool(s)
		if err != nil {
			return Unspecified, err
		}
		if ok {
			return o.when, nil
		}
		return o.when.flip(), nil
	}
	if o.fixed != Unspecified {
		return o.fixed, nil
	}
	for _, e := range levels {
		if e != Unspecified {
			return e, nil
		}
	}
	return Native, nil
}
