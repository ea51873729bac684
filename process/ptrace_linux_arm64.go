//go:build linux && arm64

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package process // import "github.com/cls-tools/consolelogsaver/process"

import (
	"debug/elf"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxCallArgs is the number of integer argument registers of AAPCS64.
const maxCallArgs = 8

// Registers is the user_pt_regs layout of NT_PRSTATUS.
type Registers struct {
	Regs   [31]uint64
	Sp     uint64
	Pc     uint64
	Pstate uint64
}

func (r *Registers) PC() uint64 { return r.Pc }
func (r *Registers) SetPC(pc uint64) { r.Pc = pc }
func (r *Registers) SP() uint64 { return r.Sp }
func (r *Registers) Result() uint64 { return r.Regs[0] }
func (r *Registers) String() string {
	return fmt.Sprintf("pc=%#x sp=%#x x0=%#x", r.Pc, r.Sp, r.Regs[0])
}

func (r *Registers) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(r)), unsafe.Sizeof(*r))
}

// GetRegs reads the registers of the stopped traced thread.
func (t *Tracer) GetRegs() (Registers, error) {
	var r Registers
	err := ptraceRegset(unix.PTRACE_GETREGSET, t.tid, int(elf.NT_PRSTATUS), r.bytes())
	return r, err
}

// SetRegs writes the registers of the stopped traced thread.
func (t *Tracer) SetRegs(r Registers) error {
	return ptraceRegset(unix.PTRACE_SETREGSET, t.tid, int(elf.NT_PRSTATUS), r.bytes())
}

func (t *Tracer) setupCall(r *Registers, fn uint64, args []uint64) error {
	copy(r.Regs[:maxCallArgs], args)
	// Link register; returning faults at address zero.
	r.Regs[30] = 0
	r.Sp = (r.Sp - redZoneSize) &^ 0xf
	r.Pc = fn
	return nil
}
