//go:build !linux

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package process // import "github.com/cls-tools/consolelogsaver/process"

import (
	"context"
	"fmt"
	"runtime"

	"github.com/cls-tools/consolelogsaver/libpf"
)

// Tracer is the stub implementation, allowing to compile the process
// package on non linux systems.
type Tracer struct {
	systemProcess
}

// Registers is empty on unsupported systems.
type Registers struct{}

func (r *Registers) PC() uint64 { return 0 }
func (r *Registers) SetPC(uint64) {}
func (r *Registers) SP() uint64 { return 0 }
func (r *Registers) Result() uint64 { return 0 }

func errUnsupported() error {
	return fmt.Errorf("unsupported os %s", runtime.GOOS)
}

// Seize always fails at runtime on non linux systems.
func Seize(_ libpf.PID) (*Tracer, error) {
	return nil, errUnsupported()
}

func (t *Tracer) Cont(int) error { return errUnsupported() }
func (t *Tracer) Interrupt() error { return errUnsupported() }
func (t *Tracer) PeekText(libpf.Address, []byte) error { return errUnsupported() }
func (t *Tracer) PokeText(libpf.Address, []byte) error { return errUnsupported() }
func (t *Tracer) GetRegs() (Registers, error) { return Registers{}, errUnsupported() }
func (t *Tracer) SetRegs(Registers) error { return errUnsupported() }
func (t *Tracer) RunToBreakpoint(context.Context, libpf.Address) error { return errUnsupported() }
func (t *Tracer) Call(libpf.Address, ...uint64) (uint64, error) { return 0, errUnsupported() }
func (t *Tracer) Resume() error { return errUnsupported() }
func (t *Tracer) Detach() error { return errUnsupported() }
func (t *Tracer) Close() error { return t.Detach() }
