// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package mono // import "github.com/cls-tools/consolelogsaver/payload/mono"

import "unicode/utf16"

// ManagedException is a managed exception thrown by an invoked method.
type ManagedException struct {
	// Message is the exception's ToString, which may be empty.
	Message string
}

func (e *ManagedException) Error() string {
	if e.Message == "" {
		return "managed exception"
	}
	return "managed exception: " + e.Message
}

func decode(chars []uint16) string {
	return string(utf16.Decode(chars))
}
