//go:build !linux

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remotememory // import "github.com/cls-tools/consolelogsaver/remotememory"

import (
	"fmt"
	"runtime"
	"unsafe"
)

const hostPtrSize = int(unsafe.Sizeof(uintptr(0)))

// ReadAt is the stub implementation, allowing to compile the remotememory
// package on non linux systems, always failing at runtime with an error if used.
func (vm ProcessVirtualMemory) ReadAt(_ []byte, _ int64) (int, error) {
	return 0, fmt.Errorf("unsupported os %s", runtime.GOOS)
}

// WriteAt is the stub implementation of WriteAt.
func (vm ProcessVirtualMemory) WriteAt(_ []byte, _ int64) (int, error) {
	return 0, fmt.Errorf("unsupported os %s", runtime.GOOS)
}
