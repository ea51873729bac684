//go:build linux

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package process // import "github.com/cls-tools/consolelogsaver/process"

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/cls-tools/consolelogsaver/libpf"
)

// pollInterval is how often a cancellable wait re-checks its context.
const pollInterval = 10 * time.Millisecond

// Tracer controls the main thread of a process through the ptrace API.
// Other threads of the process keep running.
// WARNING: All methods must be called from the goroutine that created the
// Tracer. The goroutine is locked to its OS thread until Detach, as the
// kernel requires that all ptrace requests come from the same thread.
type Tracer struct {
	systemProcess

	tid     int
	running bool
	closed  bool
}

var _ Process = &Tracer{}

func ptraceRegset(request, tid, regset int, data []byte) error {
	iovec := unix.Iovec{
		Base: &data[0],
		Len:  uint64(len(data)),
	}
	_, _, errno := unix.RawSyscall6(unix.SYS_PTRACE, uintptr(request),
		uintptr(tid), uintptr(regset), uintptr(unsafe.Pointer(&iovec)), 0, 0)
	if errno != 0 {
		return fmt.Errorf("ptrace regset request %d failed: %w", request, errno)
	}
	return nil
}

func classifyAttachError(err error) error {
	switch {
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("%w: %v", ErrNoSuchProcess, err)
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return fmt.Errorf("%w: %v (check kernel.yama.ptrace_scope)", ErrPermissionDenied, err)
	default:
		return err
	}
}

// Seize attaches to the process with PTRACE_SEIZE and stops its main thread.
// The calling goroutine stays locked to its OS thread until Detach.
func Seize(pid libpf.PID) (*Tracer, error) {
	// Lock this goroutine to the OS thread. It is ptrace API requirement
	// that all ptrace calls must come from same thread.
	runtime.LockOSThread()

	t := &Tracer{systemProcess: newSystemProcess(pid), tid: int(pid)}

	if err := unix.PtraceSeize(t.tid); err != nil {
		runtime.UnlockOSThread()
		return nil, classifyAttachError(fmt.Errorf("ptrace seize: %w", err))
	}
	t.running = true
	if err := t.Interrupt(); err != nil {
		err2 := unix.PtraceDetach(t.tid)
		runtime.UnlockOSThread()
		return nil, errors.Join(err, err2)
	}
	return t, nil
}

// stopEvent extracts the PTRACE_EVENT_* value of a stop.
func stopEvent(status unix.WaitStatus) int {
	return int(status>>16) & 0xff
}

func (t *Tracer) wait(options int) (unix.WaitStatus, bool, error) {
	var status unix.WaitStatus
	for {
		wpid, err := unix.Wait4(t.tid, &status, options|unix.WALL, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("wait4: %w", err)
		}
		if wpid == 0 {
			return 0, false, nil
		}
		break
	}
	if status.Exited() || status.Signaled() {
		t.closed = true
		return status, true, fmt.Errorf("%w: exit status %d, signal %v",
			ErrExited, status.ExitStatus(), status.Signal())
	}
	t.running = false
	return status, true, nil
}

// waitStop blocks until the next stop of the traced thread.
func (t *Tracer) waitStop() (unix.WaitStatus, error) {
	status, _, err := t.wait(0)
	return status, err
}

// waitStopContext is waitStop that gives up when ctx is done. On
// cancellation the thread is stopped with PTRACE_INTERRUPT before returning.
func (t *Tracer) waitStopContext(ctx context.Context) (unix.WaitStatus, error) {
	for {
		status, ok, err := t.wait(unix.WNOHANG)
		if err != nil || ok {
			return status, err
		}
		select {
		case <-ctx.Done():
			if err := t.Interrupt(); err != nil {
				return 0, errors.Join(ctx.Err(), err)
			}
			return 0, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// isGroupStop reports whether status is a job control stop of a seized
// thread. Interrupt stops carry SIGTRAP instead of the stopping signal.
func isGroupStop(status unix.WaitStatus) bool {
	if !status.Stopped() || stopEvent(status) != unix.PTRACE_EVENT_STOP {
		return false
	}
	switch status.StopSignal() {
	case unix.SIGSTOP, unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU:
		return true
	}
	return false
}

// forward resumes a stop that is not ours, delivering the signal that caused
// it. Group stops are kept with PTRACE_LISTEN until the process gets SIGCONT.
func (t *Tracer) forward(status unix.WaitStatus) error {
	if isGroupStop(status) {
		log.Debugf("PID %d: group stop by %v", t.pid, status.StopSignal())
		return t.listen()
	}
	if stopEvent(status) == unix.PTRACE_EVENT_STOP {
		// Stale interrupt; resume without a signal.
		return t.Cont(0)
	}
	sig := status.StopSignal()
	log.Debugf("PID %d: forwarding signal %v", t.pid, sig)
	return t.Cont(int(sig))
}

// listen leaves the thread in its group stop while still reporting the
// next stop, which arrives after SIGCONT or PTRACE_INTERRUPT.
func (t *Tracer) listen() error {
	_, _, errno := unix.RawSyscall6(unix.SYS_PTRACE, unix.PTRACE_LISTEN,
		uintptr(t.tid), 0, 0, 0, 0)
	if errno != 0 {
		return fmt.Errorf("ptrace listen: %w", errno)
	}
	t.running = true
	return nil
}

// Cont resumes the traced thread, delivering sig if non-zero.
func (t *Tracer) Cont(sig int) error {
	if err := unix.PtraceCont(t.tid, sig); err != nil {
		return fmt.Errorf("ptrace cont: %w", err)
	}
	t.running = true
	return nil
}

// Interrupt stops the traced thread and waits for the interrupt stop.
// Signals that arrive in the meantime are delivered to the process.
func (t *Tracer) Interrupt() error {
	if !t.running {
		return nil
	}
	if err := unix.PtraceInterrupt(t.tid); err != nil {
		return fmt.Errorf("ptrace interrupt: %w", err)
	}
	for {
		status, err := t.waitStop()
		if err != nil {
			return err
		}
		// A listening thread reports its group stop signal instead of SIGTRAP.
		if stopEvent(status) == unix.PTRACE_EVENT_STOP {
			return nil
		}
		if err := t.forward(status); err != nil {
			return err
		}
	}
}

// PeekText reads len(p) bytes at addr through ptrace. Unlike the remote
// memory accessor it can read pages that are not readable.
func (t *Tracer) PeekText(addr libpf.Address, p []byte) error {
	n, err := unix.PtracePeekText(t.tid, uintptr(addr), p)
	if err != nil {
		return fmt.Errorf("ptrace peektext at %v: %w", addr, err)
	}
	if n != len(p) {
		return fmt.Errorf("ptrace peektext at %v: read %d of %d bytes", addr, n, len(p))
	}
	return nil
}

// PokeText writes p at addr through ptrace, which may patch read-only text.
func (t *Tracer) PokeText(addr libpf.Address, p []byte) error {
	n, err := unix.PtracePokeText(t.tid, uintptr(addr), p)
	if err != nil {
		return fmt.Errorf("ptrace poketext at %v: %w", addr, err)
	}
	if n != len(p) {
		return fmt.Errorf("ptrace poketext at %v: wrote %d of %d bytes", addr, n, len(p))
	}
	return nil
}

// RunToBreakpoint patches a one-shot breakpoint at addr, resumes the process
// and blocks until the traced thread hits it. The original instruction is
// restored and the thread is left stopped with its PC at addr. If ctx is done
// first, the thread is stopped wherever it is and ctx.Err() is returned.
func (t *Tracer) RunToBreakpoint(ctx context.Context, addr libpf.Address) (err error) {
	orig := make([]byte, len(breakpointInstruction))
	if err = t.PeekText(addr, orig); err != nil {
		return err
	}
	if err = t.PokeText(addr, breakpointInstruction); err != nil {
		return err
	}
	defer func() {
		if t.closed {
			return
		}
		if rerr := t.PokeText(addr, orig); rerr != nil {
			err = errors.Join(err, fmt.Errorf("restore instruction: %w", rerr))
		}
	}()

	if err = t.Cont(0); err != nil {
		return err
	}
	for {
		status, err := t.waitStopContext(ctx)
		if err != nil {
			return err
		}
		if status.StopSignal() == unix.SIGTRAP && stopEvent(status) == 0 {
			regs, err := t.GetRegs()
			if err != nil {
				return err
			}
			if pc := regs.PC() - trapPCAdjust; pc == uint64(addr) {
				regs.SetPC(pc)
				return t.SetRegs(regs)
			}
		}
		if err := t.forward(status); err != nil {
			return err
		}
	}
}

// Call invokes the function at fn in the stopped traced thread with up to
// maxCallArgs integer arguments and returns the integer result. The return
// address is set to zero so that the return faults at PC zero, which is the
// signal that the call completed. Registers are restored afterwards. Faults
// at any other address are delivered to the process, whose runtime may
// handle them.
func (t *Tracer) Call(fn libpf.Address, args ...uint64) (result uint64, err error) {
	if len(args) > maxCallArgs {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooManyArguments, len(args), maxCallArgs)
	}
	saved, err := t.GetRegs()
	if err != nil {
		return 0, err
	}
	regs := saved
	if err = t.setupCall(&regs, uint64(fn), args); err != nil {
		return 0, err
	}
	if err = t.SetRegs(regs); err != nil {
		return 0, err
	}
	defer func() {
		if t.closed {
			return
		}
		if t.running {
			if ierr := t.Interrupt(); ierr != nil {
				err = errors.Join(err, ierr)
				return
			}
		}
		if rerr := t.SetRegs(saved); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	if err = t.Cont(0); err != nil {
		return 0, err
	}
	for {
		status, err := t.waitStop()
		if err != nil {
			return 0, err
		}
		if status.StopSignal() == unix.SIGSEGV && stopEvent(status) == 0 {
			regs, err := t.GetRegs()
			if err != nil {
				return 0, err
			}
			if regs.PC() == 0 {
				return regs.Result(), nil
			}
		}
		if err := t.forward(status); err != nil {
			return 0, err
		}
	}
}

// Resume lets the process continue without waiting for it.
func (t *Tracer) Resume() error {
	if t.running {
		return nil
	}
	return t.Cont(0)
}

// Detach stops the traced thread if it is running, releases it and unlocks
// the OS thread.
func (t *Tracer) Detach() error {
	if t.closed {
		return nil
	}
	var err error
	if t.running {
		err = t.Interrupt()
	}
	if !t.closed {
		if derr := unix.PtraceDetach(t.tid); derr != nil {
			err = errors.Join(err, fmt.Errorf("ptrace detach: %w", derr))
		}
	}
	t.closed = true
	runtime.UnlockOSThread()
	return err
}

func (t *Tracer) Close() error {
	return t.Detach()
}
