// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package transfer implements the byte layout used to hand the console log of
// an inspected process over to the host. The producer side (Builder) runs
// inside the target and owns the hidden capacity header; the consumer side
// (Reader) only ever sees the buffer from byte_length onward.
package transfer // import "github.com/cls-tools/consolelogsaver/transfer"

import (
	"errors"
	"fmt"
)

const (
	// Version is the only accepted layout version.
	Version = 1

	// CapacityHeaderSize is the size of the hidden capacity field that
	// precedes the published buffer address.
	CapacityHeaderSize = 8

	// LengthFieldSize is the size of the byte_length field at the published
	// address.
	LengthFieldSize = 8

	// MaxByteLength bounds byte_length before the host copies the buffer out of
	// the target.
	MaxByteLength = 1 << 30
)

// Export names of the payload module. They form the whole contract between
// the host and the injected payload and must never change.
const (
	SaveSymbol     = "CONSOLE_LOG_SAVER_SAVE"
	FreeSymbol     = "CONSOLE_LOG_SAVER_FREE_MEM"
	LocationSymbol = "CONSOLE_LOG_SAVER_SAVED_LOCATION"
)

// ErrCorruptData is returned for any buffer that violates the layout.
var ErrCorruptData = errors.New("corrupt transfer data")

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptData, fmt.Sprintf(format, args...))
}

// Mode is the severity/category bit mask of a log record. Its bits are
// defined by the target runtime and are not interpreted here.
type Mode uint32

func (m Mode) String() string {
	return fmt.Sprintf("0x%08x", uint32(m))
}

// LogRecord is one decoded console entry.
type LogRecord struct {
	Message string
	Mode    Mode
}

// Document is the decoded content of a transfer buffer.
type Document struct {
	UnityVersion     string
	OSDescription    string
	BuildTarget      string
	CurrentDirectory string
	Records          []LogRecord
}
