// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package clsfile writes ConsoleLogSaverData documents: a header block of
// "Name: value" lines followed by sections, each terminated by a random
// separator line that cannot occur in the content.
package clsfile // import "github.com/cls-tools/consolelogsaver/clsfile"

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Magic is the first line of every document.
const Magic = "ConsoleLogSaverData/1.0"

const (
	separatorHeader = "Separator"
	contentHeader   = "Content"
	separatorFence  = "================"
)

var (
	// ErrInvalidHeader is returned for a header that cannot be written.
	ErrInvalidHeader = errors.New("invalid header")
	// ErrReservedHeader is returned for header names managed by the Writer.
	ErrReservedHeader = errors.New("reserved header name")
)

// Writer builds a document in memory. Headers added before BeginBody go to
// the document heading; afterwards they belong to the next content section.
type Writer struct {
	buf       strings.Builder
	separator string
	inBody    bool
	// pending is set when body headers were added without content.
	pending bool
}

// NewWriter starts a document with a freshly generated separator.
func NewWriter() *Writer {
	return newWriter(separatorFence + strings.ReplaceAll(uuid.NewString(), "-", "") + separatorFence)
}

func newWriter(separator string) *Writer {
	w := &Writer{separator: separator}
	w.buf.WriteString(Magic)
	w.buf.WriteByte('\n')
	w.writeHeader(separatorHeader, separator)
	return w
}

// Separator returns the line that terminates every section.
func (w *Writer) Separator() string {
	return w.separator
}

func validTokenChar(c byte) bool {
	switch {
	case '0' <= c && c <= '9', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		return true
	}
	return strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0
}

func checkHeader(name, value string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidHeader)
	}
	for i := 0; i < len(name); i++ {
		if !validTokenChar(name[i]) {
			return fmt.Errorf("%w: name %q contains %q", ErrInvalidHeader, name, name[i])
		}
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w: value of %s contains a line break", ErrInvalidHeader, name)
	}
	return nil
}

func (w *Writer) writeHeader(name, value string) {
	w.buf.WriteString(name)
	w.buf.WriteString(": ")
	w.buf.WriteString(value)
	w.buf.WriteByte('\n')
}

func (w *Writer) endSection() {
	w.buf.WriteByte('\n')
	w.buf.WriteString(w.separator)
	w.buf.WriteByte('\n')
}

// AddHeader appends a header line to the heading or, once the body has
// begun, to the next section.
func (w *Writer) AddHeader(name, value string) error {
	if strings.EqualFold(name, separatorHeader) ||
		(w.inBody && strings.EqualFold(name, contentHeader)) {
		return fmt.Errorf("%w: %s", ErrReservedHeader, name)
	}
	if err := checkHeader(name, value); err != nil {
		return err
	}
	w.writeHeader(name, value)
	w.pending = w.inBody
	return nil
}

// BeginBody closes the heading. It is a no-op when the body has begun.
func (w *Writer) BeginBody() {
	if w.inBody {
		return
	}
	w.endSection()
	w.inBody = true
}

// AddContent finishes the current section with its content.
func (w *Writer) AddContent(contentType, content string) error {
	if err := checkHeader(contentHeader, contentType); err != nil {
		return err
	}
	if strings.Contains(content, w.separator) {
		return fmt.Errorf("content contains the section separator")
	}
	w.BeginBody()
	w.writeHeader(contentHeader, contentType)
	w.buf.WriteByte('\n')
	w.buf.WriteString(content)
	w.buf.WriteString(w.separator)
	w.buf.WriteByte('\n')
	w.pending = false
	return nil
}

// String returns the document. A section holding only headers is closed
// without content.
func (w *Writer) String() string {
	w.BeginBody()
	if w.pending {
		w.endSection()
		w.pending = false
	}
	return w.buf.String()
}
