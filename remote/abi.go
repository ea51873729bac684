// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remote // import "github.com/cls-tools/consolelogsaver/remote"

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// HostPtrSize is the pointer width of this process.
const HostPtrSize = int(unsafe.Sizeof(uintptr(0)))

// SameByteOrder reports whether a and b encode integers identically.
func SameByteOrder(a, b binary.ByteOrder) bool {
	if a == nil || b == nil {
		return a == b
	}
	var x, y [2]byte
	a.PutUint16(x[:], 0x0102)
	b.PutUint16(y[:], 0x0102)
	return x == y
}

// CheckABI compares a target ABI with the host.
func CheckABI(ptrSize int, order binary.ByteOrder) error {
	if ptrSize != HostPtrSize {
		return fmt.Errorf("target pointer size %d, host %d", ptrSize, HostPtrSize)
	}
	if !SameByteOrder(order, binary.NativeEndian) {
		return fmt.Errorf("target byte order %v, host %v", order, binary.NativeEndian)
	}
	return nil
}

// ValidateABI fails the session when the target cannot exchange a transfer
// buffer with this host. It must run before any injection.
func (s *Session) ValidateABI() error {
	if err := CheckABI(s.PtrSize, s.ByteOrder); err != nil {
		s.state = Failed
		return &PhaseError{Phase: PayloadLoaded, Step: "validate ABI", Kind: ErrAbiMismatch, Err: err}
	}
	return nil
}
