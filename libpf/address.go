// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libpf // import "github.com/cls-tools/consolelogsaver/libpf"

import "fmt"

// Address represents an address, or offset within a process
type Address uintptr

// String formats the address as hexadecimal.
func (a Address) String() string {
	return fmt.Sprintf("0x%x", uintptr(a))
}

// IsNull reports whether the address is the null pointer.
func (a Address) IsNull() bool {
	return a == 0
}
