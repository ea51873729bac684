// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remote // import "github.com/cls-tools/consolelogsaver/remote"

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/remotememory"
)

var (
	activeMu sync.Mutex
	active   = libpf.Set[libpf.PID]{}
)

func register(pid libpf.PID) bool {
	activeMu.Lock()
	defer activeMu.Unlock()
	if _, ok := active[pid]; ok {
		return false
	}
	active[pid] = libpf.Void{}
	return true
}

func unregister(pid libpf.PID) {
	activeMu.Lock()
	defer activeMu.Unlock()
	delete(active, pid)
}

// Session is one attach-to-detach lifecycle. At most one Session per PID
// exists at a time. A Session is not safe for concurrent use.
type Session struct {
	PID       libpf.PID
	PtrSize   int
	ByteOrder binary.ByteOrder

	state  State
	target Target
	mem    remotememory.RemoteMemory
}

// Attach attaches to pid through dbg and returns a session in the Attached
// state.
func Attach(ctx context.Context, dbg Debugger, pid libpf.PID) (*Session, error) {
	if !register(pid) {
		return nil, &PhaseError{Phase: Attached, Kind: ErrAttach,
			Err: fmt.Errorf("a session for PID %d is already active", pid)}
	}
	target, err := dbg.Attach(ctx, pid)
	if err != nil {
		unregister(pid)
		return nil, &PhaseError{Phase: Attached, Kind: ErrAttach, Err: err}
	}
	s := &Session{
		PID:       pid,
		PtrSize:   target.PtrSize(),
		ByteOrder: target.ByteOrder(),
		state:     Attached,
		target:    target,
		mem:       newTargetMemory(target),
	}
	log.Debugf("PID %d: attached (%d-bit, %v)", pid, 8*s.PtrSize, s.ByteOrder)
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Target returns the backend target of the session.
func (s *Session) Target() Target {
	return s.target
}

func (s *Session) advance(to State) {
	log.Debugf("PID %d: %v -> %v", s.PID, s.state, to)
	s.state = to
}

// fail moves the session to Failed and returns the phase error.
func (s *Session) fail(phase State, kind, err error) error {
	log.Debugf("PID %d: %v failed in state %v: %v", s.PID, phase.Action(), s.state, err)
	s.state = Failed
	return &PhaseError{Phase: phase, Kind: kind, Err: err}
}

// checkContext fails the upcoming phase when ctx is done.
func (s *Session) checkContext(ctx context.Context, phase State) error {
	if err := ctx.Err(); err != nil {
		return s.fail(phase, err, err)
	}
	return nil
}

// Detach resumes the target and then detaches from it. Resuming first
// avoids a deadlock seen when detaching right after an unload. Detach is
// idempotent and always leaves the session Detached.
func (s *Session) Detach() error {
	if s.state == Detached {
		return nil
	}
	defer unregister(s.PID)

	var errs []error
	if err := s.target.Resume(); err != nil {
		errs = append(errs, fmt.Errorf("resume: %w", err))
	}
	if err := s.target.Detach(); err != nil {
		errs = append(errs, fmt.Errorf("detach: %w", err))
	}
	s.advance(Detached)
	if len(errs) > 0 {
		return &PhaseError{Phase: Detached, Kind: ErrAttach, Err: errors.Join(errs...)}
	}
	return nil
}
