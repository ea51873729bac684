// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package payload implements the code that runs inside the editor process:
// it walks the console log through the managed runtime, encodes it into a
// transfer buffer and publishes the buffer's address for the host.
//
// Save and Free are only called while every other thread of the process is
// stopped by the debugger, so nothing here locks.
package payload // import "github.com/cls-tools/consolelogsaver/payload"

import "errors"

// Handles of the managed runtime. They are opaque to this package.
type (
	Class  uintptr
	Method uintptr
	Field  uintptr
	Object uintptr
)

// ErrNotFound is returned by a Runtime when a class, method, property or
// field does not exist.
var ErrNotFound = errors.New("not found")

// Runtime is the subset of a managed runtime's embedding API the payload
// needs.
type Runtime interface {
	// ResolveClass finds a class in a loaded assembly.
	ResolveClass(assembly, namespace, name string) (Class, error)
	// ResolveMethod finds a method by its description, for example
	// ":GetEntryInternal(int,UnityEditor.LogEntry)".
	ResolveMethod(class Class, desc string) (Method, error)
	// ResolveGetter finds the get method of a property.
	ResolveGetter(class Class, property string) (Method, error)
	ResolveField(class Class, name string) (Field, error)

	// NewObject creates and default-initializes an instance of class.
	NewObject(class Class) (Object, error)
	// Invoke calls method on this, which is zero for static methods. Args
	// are int32 or Object values. A managed exception is an error.
	Invoke(method Method, this Object, args ...any) (Object, error)

	UnboxInt32(obj Object) (int32, error)
	FieldObject(obj Object, field Field) (Object, error)
	FieldInt32(obj Object, field Field) (int32, error)
	ToString(obj Object) (Object, error)
	// Chars returns a copy of the UTF-16 code units of a string object. A
	// null string yields no code units.
	Chars(str Object) ([]uint16, error)
}
