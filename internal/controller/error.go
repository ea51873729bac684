// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "github.com/cls-tools/consolelogsaver/internal/controller"

import (
	"errors"

	"github.com/cls-tools/consolelogsaver/remote"
)

// Exit codes of the CLI.
const (
	ExitSuccess = 0
	ExitFailure = 1
	// ExitParseError matches the code of the flag package on parse errors.
	ExitParseError = 2
	ExitNoEditor   = 3
	ExitAttach     = 4
	ExitSyncPoint  = 5
	ExitInjection  = 6
	ExitTransfer   = 7
)

// ErrorWithExitCode provides an error with an exit code
// Used to be able to return errors with the exit code the CLI is expected to
// return when exiting.
type ErrorWithExitCode struct {
	error
	code int
}

func (e ErrorWithExitCode) Code() int {
	return e.code
}

func (e ErrorWithExitCode) Unwrap() error {
	return e.error
}

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return ErrorWithExitCode{error: err, code: code}
}

// exitCodeOf classifies an extraction error. The first phase error is the
// one that ended the session; errors joined after it come from cleanup.
func exitCodeOf(err error) int {
	var pe *remote.PhaseError
	if errors.As(err, &pe) {
		err = pe.Kind
	}
	switch {
	case errors.Is(err, remote.ErrSyncPointNotFound), errors.Is(err, remote.ErrAbiMismatch):
		return ExitSyncPoint
	case errors.Is(err, remote.ErrInjection):
		return ExitInjection
	case errors.Is(err, remote.ErrRemoteCallFailed), errors.Is(err, remote.ErrMemoryAccess),
		errors.Is(err, remote.ErrCorruptData):
		return ExitTransfer
	case errors.Is(err, remote.ErrAttach):
		return ExitAttach
	}
	return ExitFailure
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ec ErrorWithExitCode
	if errors.As(err, &ec) {
		return ec.Code()
	}
	return ExitFailure
}
