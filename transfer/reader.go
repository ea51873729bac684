// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package transfer // import "github.com/cls-tools/consolelogsaver/transfer"

import (
	"encoding/binary"
	"unicode/utf16"
)

// Reader consumes the bytes following the byte_length field.
type Reader struct {
	order binary.ByteOrder
	data  []byte
	off   int
}

// NewReader wraps the body of a transfer buffer.
func NewReader(order binary.ByteOrder, body []byte) *Reader {
	return &Reader{order: order, data: body}
}

// ReadByteLength decodes the byte_length field and checks it against the
// sanity bound.
func ReadByteLength(order binary.ByteOrder, field []byte) (uint64, error) {
	if len(field) < LengthFieldSize {
		return 0, corruptf("length field truncated to %d bytes", len(field))
	}
	n := order.Uint64(field)
	if n > MaxByteLength {
		return 0, corruptf("byte_length %d exceeds limit", n)
	}
	return n, nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// ReadInt32 decodes one 32-bit value.
func (r *Reader) ReadInt32() (int32, error) {
	if r.Remaining() < 4 {
		return 0, corruptf("truncated int32 at offset %d", r.off)
	}
	v := int32(r.order.Uint32(r.data[r.off:]))
	r.off += 4
	return v, nil
}

// ReadString decodes a length-prefixed UTF-16 string. Unpaired surrogates
// decode to U+FFFD.
func (r *Reader) ReadString() (string, error) {
	start := r.off
	n, err := r.ReadInt32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", corruptf("negative string length %d at offset %d", n, start)
	}
	if int64(n)*2 > int64(r.Remaining()) {
		return "", corruptf("string of %d units at offset %d overruns buffer", n, start)
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = r.order.Uint16(r.data[r.off:])
		r.off += 2
	}
	return string(utf16.Decode(units)), nil
}

// Decode parses a complete body, i.e. the bytes after byte_length. The
// version gate is checked before any string is read and the body must be
// consumed exactly.
func Decode(order binary.ByteOrder, body []byte) (*Document, error) {
	r := NewReader(order, body)
	version, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, corruptf("unsupported version %d", version)
	}

	doc := &Document{}
	for _, dst := range []*string{
		&doc.UnityVersion,
		&doc.OSDescription,
		&doc.BuildTarget,
		&doc.CurrentDirectory,
	} {
		if *dst, err = r.ReadString(); err != nil {
			return nil, err
		}
	}

	count, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, corruptf("negative entry count %d", count)
	}
	// Each entry needs at least a length prefix and a mode.
	if int64(count)*8 > int64(r.Remaining()) {
		return nil, corruptf("entry count %d overruns buffer", count)
	}
	doc.Records = make([]LogRecord, 0, count)
	for i := int32(0); i < count; i++ {
		msg, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		mode, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		doc.Records = append(doc.Records, LogRecord{Message: msg, Mode: Mode(mode)})
	}
	if r.Remaining() != 0 {
		return nil, corruptf("%d trailing bytes after last entry", r.Remaining())
	}
	return doc, nil
}

// DecodeBuffer parses a buffer starting at the byte_length field and
// enforces that byte_length matches the bytes that follow it.
func DecodeBuffer(order binary.ByteOrder, buf []byte) (*Document, error) {
	n, err := ReadByteLength(order, buf)
	if err != nil {
		return nil, err
	}
	body := buf[LengthFieldSize:]
	if uint64(len(body)) != n {
		return nil, corruptf("byte_length %d does not match %d bytes of body", n, len(body))
	}
	return Decode(order, body)
}
