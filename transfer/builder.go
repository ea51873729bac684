// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package transfer // import "github.com/cls-tools/consolelogsaver/transfer"

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// Builder produces a transfer buffer. The returned allocation starts with the
// capacity header; the address published to the host is CapacityHeaderSize
// bytes into it.
type Builder struct {
	order binary.ByteOrder
	buf   []byte

	declared int
	written  int
	counting bool
}

// NewBuilder starts a buffer with the version field already written.
func NewBuilder(order binary.ByteOrder) *Builder {
	b := &Builder{
		order: order,
		buf:   make([]byte, CapacityHeaderSize+LengthFieldSize, 256),
	}
	b.WriteInt32(Version)
	return b
}

// WriteInt32 appends a raw 32-bit value.
func (b *Builder) WriteInt32(v int32) {
	var tmp [4]byte
	b.order.PutUint32(tmp[:], uint32(v))
	b.buf = append(b.buf, tmp[:]...)
}

// WriteString appends a length-prefixed UTF-16 string.
func (b *Builder) WriteString(s string) {
	b.WriteUTF16(utf16.Encode([]rune(s)))
}

// WriteUTF16 appends code units as they are, without validating surrogates.
func (b *Builder) WriteUTF16(units []uint16) {
	b.WriteInt32(int32(len(units)))
	var tmp [2]byte
	for _, u := range units {
		b.order.PutUint16(tmp[:], u)
		b.buf = append(b.buf, tmp[:]...)
	}
}

// WriteEnvironment appends the four environment strings in layout order.
func (b *Builder) WriteEnvironment(unityVersion, osDescription, buildTarget, currentDirectory string) {
	b.WriteString(unityVersion)
	b.WriteString(osDescription)
	b.WriteString(buildTarget)
	b.WriteString(currentDirectory)
}

// BeginEntries declares how many records follow.
func (b *Builder) BeginEntries(count int) error {
	if b.counting {
		return fmt.Errorf("entry count already written")
	}
	if count < 0 || count > math.MaxInt32 {
		return fmt.Errorf("invalid entry count %d", count)
	}
	b.WriteInt32(int32(count))
	b.declared = count
	b.counting = true
	return nil
}

// WriteEntry appends one record.
func (b *Builder) WriteEntry(message string, mode Mode) {
	b.WriteString(message)
	b.WriteInt32(int32(mode))
	b.written++
}

// WriteEntryUTF16 appends one record whose message is already UTF-16.
func (b *Builder) WriteEntryUTF16(message []uint16, mode Mode) {
	b.WriteUTF16(message)
	b.WriteInt32(int32(mode))
	b.written++
}

// Len returns the current total size including both headers.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Finish patches the capacity and byte_length fields and returns the whole
// allocation. The capacity recorded is the size of the returned slice.
func (b *Builder) Finish() ([]byte, error) {
	if !b.counting {
		return nil, fmt.Errorf("entry count was never written")
	}
	if b.written != b.declared {
		return nil, fmt.Errorf("declared %d entries, wrote %d", b.declared, b.written)
	}
	out := b.buf
	b.order.PutUint64(out[0:], uint64(len(out)))
	b.order.PutUint64(out[CapacityHeaderSize:], uint64(len(out)-CapacityHeaderSize-LengthFieldSize))
	b.buf = nil
	return out, nil
}

// Encode is a convenience wrapper that builds a complete buffer for doc.
func Encode(order binary.ByteOrder, doc *Document) ([]byte, error) {
	b := NewBuilder(order)
	b.WriteEnvironment(doc.UnityVersion, doc.OSDescription, doc.BuildTarget, doc.CurrentDirectory)
	if err := b.BeginEntries(len(doc.Records)); err != nil {
		return nil, err
	}
	for _, r := range doc.Records {
		b.WriteEntry(r.Message, r.Mode)
	}
	return b.Finish()
}

// Capacity reads the capacity header of an allocation produced by Finish.
func Capacity(order binary.ByteOrder, header []byte) uint64 {
	return order.Uint64(header[:CapacityHeaderSize])
}
