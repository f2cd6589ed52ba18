// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// Expression is a condition, computed value, count, offset or argument.
// It is either CEL source, compiled when the owning type is built, or a Go
// function evaluated against the scope.
type Expression struct {
	src string
	fn  func(s *Scope) (any, error)
	prg cel.Program
}

// Expr returns a CEL expression over sibling field and argument names.
func Expr(src string) *Expression {
	return &Expression{src: src}
}

// ExprFunc wraps a Go function. References to siblings go through s.Get,
// which rejects siblings that are not parsed yet.
func ExprFunc(fn func(s *Scope) (any, error)) *Expression {
	return &Expression{fn: fn}
}

// Const is an expression with a fixed value.
func Const(v any) *Expression {
	return &Expression{src: fmt.Sprint(v), fn: func(*Scope) (any, error) { return v, nil }}
}

// Ref is shorthand for the value of a single sibling or argument.
func Ref(name string) *Expression {
	return &Expression{src: name, fn: func(s *Scope) (any, error) { return s.Get(name) }}
}

func (e *Expression) String() string {
	if e == nil {
		return ""
	}
	if e.src != "" {
		return e.src
	}
	return "<func>"
}

// bind compiles CEL source against the names visible at this point of the
// layout. Function expressions are returned unchanged.
func (e *Expression) bind(names []string) (*Expression, error) {
	if e == nil || e.fn != nil {
		return e, nil
	}
	prg, err := compileCEL(e.src, names)
	if err != nil {
		return nil, err
	}
	return &Expression{src: e.src, prg: prg}, nil
}

func compileCEL(src string, names []string) (cel.Program, error) {
	opts := make([]cel.EnvOption, 0, len(names))
	for _, n := range names {
		opts = append(opts, cel.Variable(n, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	return env.Program(ast)
}

// Eval evaluates the expression in scope s.
func (e *Expression) Eval(s *Scope) (any, error) {
	if e.fn != nil {
		return e.fn(s)
	}
	if e.prg == nil {
		return nil, contractf("expression %q used before its type was built", e.src)
	}
	out, _, err := e.prg.Eval(s.activation())
	if err != nil {
		return nil, contractf("evaluate %q: %v", e.src, err)
	}
	return fromCEL(out), nil
}

func (e *Expression) evalBool(s *Scope) (bool, error) {
	v, err := e.Eval(s)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, contractf("expression %q: want bool, got %T", e, v)
	}
	return b, nil
}

func (e *Expression) evalInt(s *Scope) (int64, error) {
	v, err := e.Eval(s)
	if err != nil {
		return 0, err
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, contractf("expression %q: want integer, got %T", e, v)
	}
	return n, nil
}

// toCEL converts engine values into what the CEL type adapter understands.
func toCEL(v any) any {
	switch x := v.(type) {
	case nil:
		return types.NullValue
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return x
		}
		return int64(x)
	case uint:
		if uint64(x) > math.MaxInt64 {
			return uint64(x)
		}
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case *PtrValue:
		if x.Resolved {
			return toCEL(x.Value)
		}
		return x.Offset
	case *Record:
		m := make(map[string]any, x.Len())
		for _, k := range x.Keys() {
			fv, _ := x.Get(k)
			m[k] = toCEL(fv)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, ev := range x {
			out[i] = toCEL(ev)
		}
		return out
	}
	return v
}

func fromCEL(v ref.Val) any {
	switch x := v.(type) {
	case types.Null:
		return nil
	case traits.Lister:
		n, _ := x.Size().(types.Int)
		out := make([]any, 0, int(n))
		for i := types.Int(0); i < n; i++ {
			out = append(out, fromCEL(x.Get(i)))
		}
		return out
	}
	return v.Value()
}
