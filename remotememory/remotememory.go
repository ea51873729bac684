// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// remotememory provides access to memory space of a process. The ReaderAt
// interface is used for the basic access, and various convenience functions are
// provided to help reading and writing specific data types in the byte order
// and pointer width of the target.
package remotememory // import "github.com/cls-tools/consolelogsaver/remotememory"

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cls-tools/consolelogsaver/libpf"
)

// ErrReadOnly is returned by writes on a RemoteMemory without a writer.
var ErrReadOnly = errors.New("remote memory is read-only")

// RemoteMemory implements a set of convenience functions to access the remote memory
type RemoteMemory struct {
	io.ReaderAt
	// WriterAt is optional; without it all writes fail.
	WriterAt io.WriterAt
	// Order is the byte order of the target. Defaults to little endian.
	Order binary.ByteOrder
	// PtrSize is the pointer width of the target in bytes. Defaults to 8.
	PtrSize int
}

func (rm RemoteMemory) order() binary.ByteOrder {
	if rm.Order == nil {
		return binary.LittleEndian
	}
	return rm.Order
}

func (rm RemoteMemory) ptrSize() int {
	if rm.PtrSize == 0 {
		return 8
	}
	return rm.PtrSize
}

// Read fills slice p[] with data from remote memory at address addr
func (rm RemoteMemory) Read(addr libpf.Address, p []byte) error {
	n, err := rm.ReadAt(p, int64(addr))
	if err == nil && n != len(p) {
		err = fmt.Errorf("short read at %v: %d of %d bytes", addr, n, len(p))
	}
	return err
}

// Write copies p[] into remote memory at address addr
func (rm RemoteMemory) Write(addr libpf.Address, p []byte) error {
	if rm.WriterAt == nil {
		return ErrReadOnly
	}
	n, err := rm.WriterAt.WriteAt(p, int64(addr))
	if err == nil && n != len(p) {
		err = fmt.Errorf("short write at %v: %d of %d bytes", addr, n, len(p))
	}
	return err
}

// PtrChecked reads a native pointer from remote memory
func (rm RemoteMemory) PtrChecked(addr libpf.Address) (libpf.Address, error) {
	var buf [8]byte
	sz := rm.ptrSize()
	if err := rm.Read(addr, buf[:sz]); err != nil {
		return 0, err
	}
	if sz == 4 {
		return libpf.Address(rm.order().Uint32(buf[:])), nil
	}
	return libpf.Address(rm.order().Uint64(buf[:])), nil
}

// Ptr reads a native pointer from remote memory, returning 0 on failure
func (rm RemoteMemory) Ptr(addr libpf.Address) libpf.Address {
	v, err := rm.PtrChecked(addr)
	if err != nil {
		return 0
	}
	return v
}

// EncodePtr stores value into buf using the target pointer layout.
func (rm RemoteMemory) EncodePtr(buf []byte, value libpf.Address) {
	if rm.ptrSize() == 4 {
		rm.order().PutUint32(buf, uint32(value))
		return
	}
	rm.order().PutUint64(buf, uint64(value))
}

// String reads a zero terminated string from remote memory
func (rm RemoteMemory) String(addr libpf.Address) string {
	buf := make([]byte, 1024)
	n, err := rm.ReadAt(buf, int64(addr))
	if n == 0 || (err != nil && err != io.EOF) {
		return ""
	}
	buf = buf[:n]
	zeroIdx := bytes.IndexByte(buf, 0)
	if zeroIdx >= 0 {
		return string(buf[:zeroIdx])
	}
	if n != cap(buf) {
		return ""
	}

	bigBuf := make([]byte, 4096)
	copy(bigBuf, buf)
	n, err = rm.ReadAt(bigBuf[len(buf):], int64(addr)+int64(len(buf)))
	if n == 0 || (err != nil && err != io.EOF) {
		return ""
	}
	bigBuf = bigBuf[:len(buf)+n]
	zeroIdx = bytes.IndexByte(bigBuf, 0)
	if zeroIdx >= 0 {
		return string(bigBuf[:zeroIdx])
	}

	// Not a zero terminated string
	return ""
}

// StringN reads exactly n bytes and returns them as a string. Used where the
// target reported the length, e.g. strlen() of a loader diagnostic.
func (rm RemoteMemory) StringN(addr libpf.Address, n int) (string, error) {
	buf := make([]byte, n)
	if err := rm.Read(addr, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ProcessVirtualMemory implements RemoteMemory by using process_vm_readv and
// process_vm_writev syscalls to access the remote memory.
type ProcessVirtualMemory struct {
	pid libpf.PID
}

// NewProcessVirtualMemory returns ProcessVirtualMemory implementation of RemoteMemory.
func NewProcessVirtualMemory(pid libpf.PID) RemoteMemory {
	vm := ProcessVirtualMemory{pid}
	return RemoteMemory{
		ReaderAt: vm,
		WriterAt: vm,
		Order:    binary.NativeEndian,
		PtrSize:  hostPtrSize,
	}
}
