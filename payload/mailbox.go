// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package payload // import "github.com/cls-tools/consolelogsaver/payload"

// Mailbox is the one-slot publish location the host reads after Save. It
// holds the address of the byte_length field of the current transfer
// buffer, or zero.
type Mailbox interface {
	Load() uintptr
	Store(addr uintptr)
}

// Slot is a Mailbox held in Go memory.
type Slot uintptr

func (s *Slot) Load() uintptr {
	return uintptr(*s)
}

func (s *Slot) Store(addr uintptr) {
	*s = Slot(addr)
}
