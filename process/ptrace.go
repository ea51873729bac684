// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package process // import "github.com/cls-tools/consolelogsaver/process"

import "errors"

var (
	// ErrNoSuchProcess is returned when attaching to a process that does not exist.
	ErrNoSuchProcess = errors.New("no such process")

	// ErrPermissionDenied is returned when the kernel refuses the attach,
	// e.g. due to kernel.yama.ptrace_scope.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrExited is returned when the traced process exits while we wait on it.
	ErrExited = errors.New("traced process exited")

	// ErrTooManyArguments is returned by Call when the arguments do not fit
	// in the argument registers.
	ErrTooManyArguments = errors.New("too many call arguments")
)
