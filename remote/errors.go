// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remote // import "github.com/cls-tools/consolelogsaver/remote"

import (
	"errors"
	"fmt"

	"github.com/cls-tools/consolelogsaver/transfer"
)

var (
	// ErrAttach is returned when the process is missing, the attach is
	// denied or a session for the process is already active.
	ErrAttach = errors.New("attach failed")
	// ErrSyncPointNotFound is returned when no module carries the sync
	// point symbol.
	ErrSyncPointNotFound = errors.New("sync point not found")
	// ErrAbiMismatch is returned when pointer width or byte order of the
	// target differ from the host.
	ErrAbiMismatch = errors.New("ABI mismatch")
	// ErrInjection is returned when the payload cannot be loaded or its
	// exports cannot be resolved.
	ErrInjection = errors.New("injection failed")
	// ErrRemoteCallFailed is returned when code executed in the target fails.
	ErrRemoteCallFailed = errors.New("remote call failed")
	// ErrMemoryAccess is returned when target memory cannot be read or written.
	ErrMemoryAccess = errors.New("memory access failed")
	// ErrCorruptData is returned when the transfer buffer is malformed.
	ErrCorruptData = transfer.ErrCorruptData
)

// PhaseError reports the phase of a session that failed.
type PhaseError struct {
	// Phase is the state the session was moving to.
	Phase State
	// Step optionally names a check within the phase.
	Step string
	// Kind is one of the sentinel errors of this package, or the context
	// error on cancellation.
	Kind error
	Err  error
}

func (e *PhaseError) Error() string {
	step := e.Step
	if step == "" {
		step = e.Phase.Action()
	}
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("%s: %v", step, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", step, e.Kind, e.Err)
}

func (e *PhaseError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// InjectionError carries what could not be resolved and the loader's
// diagnostic text.
type InjectionError struct {
	// Missing names the library handle or the export that was not found.
	Missing string
	// Diagnostic is the text reported by the target's dynamic loader.
	Diagnostic string
}

func (e *InjectionError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("%s not resolved", e.Missing)
	}
	return fmt.Sprintf("%s not resolved: %s", e.Missing, e.Diagnostic)
}

func (e *InjectionError) Is(target error) bool {
	return target == ErrInjection
}
