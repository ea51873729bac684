// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package debugger provides a remote.Debugger that controls the target
// with ptrace, reads and writes its memory with process_vm_readv/writev and
// resolves symbols from the ELF images it has mapped.
package debugger // import "github.com/cls-tools/consolelogsaver/debugger"

import (
	"path/filepath"
	"strings"

	"github.com/cls-tools/consolelogsaver/remote"
)

// Ptrace attaches to processes with PTRACE_SEIZE. All calls on a target,
// starting with Attach, must come from the same goroutine.
type Ptrace struct{}

var _ remote.Debugger = Ptrace{}

// loaderLibraries are the images searched for the functions called by
// remote programs, in order. Since glibc 2.34 libdl only holds stubs and
// the loader API lives in libc.
var loaderLibraries = []string{"libdl.so", "libdl-", "libc.so", "libc-", "ld-musl-"}

// loaderRank orders a mapped file for function resolution. It returns -1
// for files that are not searched.
func loaderRank(path string) int {
	name := filepath.Base(path)
	for i, prefix := range loaderLibraries {
		if strings.HasPrefix(name, prefix) {
			return i
		}
	}
	return -1
}
