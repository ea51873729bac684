// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// This file defines the interface to access a Process state.

package process // import "github.com/cls-tools/consolelogsaver/process"

import (
	"debug/elf"
	"io"
	"path/filepath"
	"strings"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/libpf/pfelf"
	"github.com/cls-tools/consolelogsaver/remotememory"
)

// VdsoPathName is the path to use for VDSO mappings
const VdsoPathName = "linux-vdso.1.so"

// vdsoInode is the synthesized inode number for VDSO mappings
const vdsoInode = 50

// Mapping contains information about a memory mapping
type Mapping struct {
	// Vaddr is the virtual memory start for this mapping
	Vaddr uint64
	// Length is the length of the mapping
	Length uint64
	// Flags contains the mapping flags and permissions
	Flags elf.ProgFlag
	// FileOffset contains for file backed mappings the offset from the file start
	FileOffset uint64
	// Device holds the device ID where the file is located
	Device uint64
	// Inode holds the mapped file's inode number
	Inode uint64
	// Path contains the file name for file backed mappings
	Path string
}

func (m *Mapping) IsExecutable() bool {
	return m.Flags&elf.PF_X == elf.PF_X
}

func (m *Mapping) IsAnonymous() bool {
	return m.Path == "" || m.IsMemFD()
}

func (m *Mapping) IsMemFD() bool {
	return strings.HasPrefix(m.Path, "/memfd:")
}

func (m *Mapping) IsVDSO() bool {
	return m.Path == VdsoPathName
}

// Base returns the name of the backing file without its directory.
func (m *Mapping) Base() string {
	return filepath.Base(m.Path)
}

// Process is the interface to inspect a running process.
// The current implementations do not allow concurrent access to this interface
// from different goroutines. As an exception the ELFOpener and the returned
// GetRemoteMemory object are safe for concurrent use.
type Process interface {
	// PID returns the process identifier
	PID() libpf.PID

	// GetMappings reads and parses process memory mappings
	GetMappings() ([]Mapping, uint32, error)

	// GetRemoteMemory returns a remote memory reader accessing the target process
	GetRemoteMemory() remotememory.RemoteMemory

	io.Closer

	pfelf.ELFOpener
}
