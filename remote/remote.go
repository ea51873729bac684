// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote drives one console log extraction against a running
// process: attach, stop at a safe point, inject the payload, call it, copy
// the result out, free it, unload the payload, resume and detach.
//
// The package is independent of the debugger technology. A backend
// implements Debugger and Target; package debugger provides one on top of
// ptrace.
package remote // import "github.com/cls-tools/consolelogsaver/remote"

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"strings"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/remote/expr"
)

// Module is a loaded image in the target.
type Module struct {
	// Path is the file the image was loaded from.
	Path string
	// Base is the lowest address the image is mapped at.
	Base libpf.Address
}

// Name returns the file name of the module without its directory.
func (m Module) Name() string {
	// Targets may report either separator regardless of the host.
	return filepath.Base(strings.ReplaceAll(m.Path, "\\", "/"))
}

// Symbol is a symbol of a loaded module with its address in the target.
type Symbol struct {
	Name    string
	Address libpf.Address
}

// ImageToken identifies an image loaded with Target.LoadImage.
type ImageToken uint64

// Protection is a set of memory access permissions.
type Protection uint8

const (
	ProtRead Protection = 1 << iota
	ProtWrite
	ProtExec
)

// Debugger creates targets.
type Debugger interface {
	// Attach attaches to pid without user interaction. The returned target
	// is stopped.
	Attach(ctx context.Context, pid libpf.PID) (Target, error)
}

// Target is an attached process. Calls are only valid while the target is
// stopped, except Detach.
type Target interface {
	// PtrSize returns the pointer width of the target in bytes.
	PtrSize() int
	// ByteOrder returns the byte order of the target.
	ByteOrder() binary.ByteOrder

	// Modules lists the currently loaded images.
	Modules() ([]Module, error)
	// VisitSymbols calls visit for the symbols of m until it returns false.
	VisitSymbols(m Module, visit func(Symbol) bool) error
	// LookupSymbol returns the address of an exported symbol of m.
	LookupSymbol(m Module, name string) (libpf.Address, error)

	// RunTo sets a one-shot breakpoint at addr, resumes the target and blocks
	// until the breakpoint is hit or ctx is done.
	RunTo(ctx context.Context, addr libpf.Address) error
	// Evaluate runs a program in the context of the stopped thread.
	Evaluate(p *expr.Program) (uint64, error)

	ReadMemory(addr libpf.Address, p []byte) error
	WriteMemory(addr libpf.Address, p []byte) error
	// Allocate reserves size bytes of target memory.
	Allocate(size int, prot Protection) (libpf.Address, error)
	// Deallocate releases memory returned by Allocate.
	Deallocate(addr libpf.Address) error

	// LoadImage loads a shared library with the backend's native loader.
	LoadImage(path string) (ImageToken, error)
	// UnloadImage reverses LoadImage.
	UnloadImage(tok ImageToken) error

	// Resume lets the target run without waiting.
	Resume() error
	// Detach releases the target. It must follow Resume.
	Detach() error
}
