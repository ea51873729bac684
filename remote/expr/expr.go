// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package expr implements a tiny typed instruction language that is executed
// against a stopped thread of another process. Programs are assembled with a
// Builder, validated by Build and run by Eval on top of a Machine that knows
// how to call functions and move memory in the target.
//
// Programs consist of basic blocks. Control flow only moves forward, so every
// program terminates after at most one visit per block.
package expr // import "github.com/cls-tools/consolelogsaver/remote/expr"

import (
	"encoding/binary"
	"fmt"

	"github.com/cls-tools/consolelogsaver/libpf"
)

// Type is the type of a value.
type Type uint8

const (
	Void Type = iota
	// I32 is a 32-bit integer.
	I32
	// IPtr is a pointer sized integer.
	IPtr
	// Ptr is an untyped pointer.
	Ptr
)

func (t Type) String() string {
	switch t {
	case Void:
		return "void"
	case I32:
		return "i32"
	case IPtr:
		return "iptr"
	case Ptr:
		return "ptr"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

func (t Type) size(ptrSize int) int {
	switch t {
	case I32:
		return 4
	case IPtr, Ptr:
		return ptrSize
	default:
		return 0
	}
}

// Status classifies evaluation failures.
type Status uint32

const (
	// StatusNoResult means the program completed but computed no value, as
	// with a program returning void.
	StatusNoResult Status = 0x1001
	// StatusSetupError means the program could not be prepared, e.g. an
	// external function could not be resolved.
	StatusSetupError Status = 1
	// StatusExecutionFailed means a call or memory access in the target failed.
	StatusExecutionFailed Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusNoResult:
		return "no result"
	case StatusSetupError:
		return "setup error"
	case StatusExecutionFailed:
		return "execution failed"
	default:
		return fmt.Sprintf("status %#x", uint32(s))
	}
}

// Error is returned by Eval.
type Error struct {
	Status Status
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Status.String()
	}
	return fmt.Sprintf("%v: %v", e.Status, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNoResult reports whether err only signals that a program returned void.
func IsNoResult(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Status == StatusNoResult
}

// Machine is the target a program runs against.
type Machine interface {
	// PtrSize returns the pointer width of the target in bytes.
	PtrSize() int
	// ByteOrder returns the byte order of the target.
	ByteOrder() binary.ByteOrder
	// ResolveFunction returns the address of an external function by name.
	ResolveFunction(name string) (libpf.Address, error)
	// Call calls the function at fn with integer arguments.
	Call(fn libpf.Address, args ...uint64) (uint64, error)
	ReadMemory(addr libpf.Address, p []byte) error
	WriteMemory(addr libpf.Address, p []byte) error
}
