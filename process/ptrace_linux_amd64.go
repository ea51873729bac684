//go:build linux && amd64

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package process // import "github.com/cls-tools/consolelogsaver/process"

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/cls-tools/consolelogsaver/libpf"
)

// maxCallArgs is the number of integer argument registers of the SysV ABI.
const maxCallArgs = 6

// Registers is the general purpose register set of a thread.
type Registers struct {
	unix.PtraceRegs
}

func (r *Registers) PC() uint64 { return r.Rip }
func (r *Registers) SetPC(pc uint64) { r.Rip = pc }
func (r *Registers) SP() uint64 { return r.Rsp }
func (r *Registers) Result() uint64 { return r.Rax }
func (r *Registers) String() string {
	return fmt.Sprintf("rip=%#x rsp=%#x rax=%#x", r.Rip, r.Rsp, r.Rax)
}

// GetRegs reads the registers of the stopped traced thread.
func (t *Tracer) GetRegs() (Registers, error) {
	var r Registers
	if err := unix.PtraceGetRegs(t.tid, &r.PtraceRegs); err != nil {
		return r, fmt.Errorf("ptrace getregs: %w", err)
	}
	return r, nil
}

// SetRegs writes the registers of the stopped traced thread.
func (t *Tracer) SetRegs(r Registers) error {
	if err := unix.PtraceSetRegs(t.tid, &r.PtraceRegs); err != nil {
		return fmt.Errorf("ptrace setregs: %w", err)
	}
	return nil
}

func (t *Tracer) setupCall(r *Registers, fn uint64, args []uint64) error {
	argRegs := [maxCallArgs]*uint64{&r.Rdi, &r.Rsi, &r.Rdx, &r.Rcx, &r.R8, &r.R9}
	for i, a := range args {
		*argRegs[i] = a
	}
	// The stack must be 16 byte aligned before the call pushes the return
	// address.
	sp := (r.Rsp - redZoneSize) &^ 0xf
	sp -= 8
	var retAddr [8]byte
	if err := t.PokeText(libpf.Address(sp), retAddr[:]); err != nil {
		return err
	}
	r.Rsp = sp
	r.Rip = fn
	r.Rax = 0
	// Prevent the kernel from restarting an interrupted system call.
	r.Orig_rax = ^uint64(0)
	return nil
}
