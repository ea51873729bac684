//go:build linux

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remotememory // import "github.com/cls-tools/consolelogsaver/remotememory"

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const hostPtrSize = int(unsafe.Sizeof(uintptr(0)))

func (vm ProcessVirtualMemory) ReadAt(p []byte, off int64) (int, error) {
	numBytesWanted := len(p)
	if numBytesWanted == 0 {
		return 0, nil
	}
	localIov := []unix.Iovec{{Base: &p[0], Len: uint64(numBytesWanted)}}
	remoteIov := []unix.RemoteIovec{{Base: uintptr(off), Len: numBytesWanted}}
	numBytesRead, err := unix.ProcessVMReadv(int(vm.pid), localIov, remoteIov, 0)
	if err != nil {
		err = fmt.Errorf("failed to read PID %v at 0x%x: %w", vm.pid, off, err)
	} else if numBytesRead != numBytesWanted {
		err = fmt.Errorf("failed to read PID %v at 0x%x: got only %d of %d",
			vm.pid, off, numBytesRead, numBytesWanted)
	}
	return numBytesRead, err
}

// WriteAt writes through process_vm_writev. Pages must be writable in the
// target; text pages need ptrace POKETEXT instead.
func (vm ProcessVirtualMemory) WriteAt(p []byte, off int64) (int, error) {
	numBytesWanted := len(p)
	if numBytesWanted == 0 {
		return 0, nil
	}
	localIov := []unix.Iovec{{Base: &p[0], Len: uint64(numBytesWanted)}}
	remoteIov := []unix.RemoteIovec{{Base: uintptr(off), Len: numBytesWanted}}
	numBytesWritten, err := unix.ProcessVMWritev(int(vm.pid), localIov, remoteIov, 0)
	if err != nil {
		err = fmt.Errorf("failed to write PID %v at 0x%x: %w", vm.pid, off, err)
	} else if numBytesWritten != numBytesWanted {
		err = fmt.Errorf("failed to write PID %v at 0x%x: wrote only %d of %d",
			vm.pid, off, numBytesWritten, numBytesWanted)
	}
	return numBytesWritten, err
}
