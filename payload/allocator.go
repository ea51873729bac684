// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package payload // import "github.com/cls-tools/consolelogsaver/payload"

// Allocator provides memory that outlives Save and is not moved or
// collected by the Go runtime until Release.
type Allocator interface {
	// Allocate returns the address of size bytes.
	Allocate(size int) (uintptr, error)
	// Bytes returns the size bytes at addr, which lies in an allocation.
	Bytes(addr uintptr, size int) []byte
	// Release frees the allocation at addr of size bytes.
	Release(addr uintptr, size int)
}
