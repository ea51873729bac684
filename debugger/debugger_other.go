//go:build !linux

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package debugger // import "github.com/cls-tools/consolelogsaver/debugger"

import (
	"context"
	"fmt"
	"runtime"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/remote"
)

// Attach is not supported on this system.
func (Ptrace) Attach(context.Context, libpf.PID) (remote.Target, error) {
	return nil, fmt.Errorf("attaching to processes is not supported on %s", runtime.GOOS)
}
