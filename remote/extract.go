// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remote // import "github.com/cls-tools/consolelogsaver/remote"

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/transfer"
)

// Options configures Extract.
type Options struct {
	// PayloadPath is the payload shared library on the target's file system.
	PayloadPath string
	// Strategy selects the injection strategy.
	Strategy Strategy
	// SyncPoint selects where the target is stopped. Zero fields take the
	// defaults of DefaultSyncPoint.
	SyncPoint SyncPoint
}

// Result is the outcome of a successful extraction.
type Result struct {
	Document *transfer.Document
	// FinalState is the state the session ended in.
	FinalState State
}

// Extract performs one extraction round trip against pid. Whatever phase
// fails, the payload is released if it was loaded and the target is resumed
// and detached before Extract returns. Cancelling ctx skips the remaining
// phases but not the cleanup.
func Extract(ctx context.Context, dbg Debugger, pid libpf.PID, opts Options) (res *Result, err error) {
	s, err := Attach(ctx, dbg, pid)
	if err != nil {
		return nil, err
	}
	defer func() {
		if derr := s.Detach(); derr != nil {
			err = errors.Join(err, derr)
		}
		if res != nil {
			res.FinalState = s.State()
		}
	}()

	if err := s.RunToSyncPoint(ctx, opts.SyncPoint); err != nil {
		return nil, err
	}
	if err := s.ValidateABI(); err != nil {
		return nil, err
	}
	if err := s.checkContext(ctx, PayloadLoaded); err != nil {
		return nil, err
	}
	h, err := s.Inject(opts.PayloadPath, opts.Strategy)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Release logs its own failure; the data is already out.
		_ = s.Release(h)
	}()

	doc, err := s.roundTrip(ctx, h)
	if err != nil {
		return nil, err
	}
	return &Result{Document: doc}, nil
}

// roundTrip calls save, copies the transfer buffer out, calls free and
// decodes the copy.
func (s *Session) roundTrip(ctx context.Context, h *ModuleHandle) (*transfer.Document, error) {
	if err := s.checkContext(ctx, InvokedSave); err != nil {
		return nil, err
	}
	if err := s.CallNoArgs(h.Save); err != nil {
		return nil, s.fail(InvokedSave, ErrRemoteCallFailed, err)
	}
	s.advance(InvokedSave)

	body, readErr := s.readTransferBuffer(h)
	if readErr == nil {
		s.advance(DataRead)
	}

	// The buffer lives in the payload's heap: hand it back even when it
	// could not be read.
	freeErr := s.CallNoArgs(h.Free)
	if readErr != nil {
		if freeErr != nil {
			log.Warnf("PID %d: free after failed read: %v", s.PID, freeErr)
		}
		return nil, s.fail(DataRead, kindOf(readErr), readErr)
	}
	if freeErr != nil {
		return nil, s.fail(InvokedFree, ErrRemoteCallFailed, freeErr)
	}
	s.advance(InvokedFree)

	doc, err := transfer.Decode(s.ByteOrder, body)
	if err != nil {
		return nil, s.fail(DataRead, ErrCorruptData, err)
	}
	log.Debugf("PID %d: decoded %d log records", s.PID, len(doc.Records))
	return doc, nil
}

var errNoBuffer = errors.New("payload published no buffer")

func kindOf(err error) error {
	for _, k := range []error{ErrCorruptData, ErrMemoryAccess} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrRemoteCallFailed
}

// readTransferBuffer follows the published pointer and copies the body that
// follows byte_length.
func (s *Session) readTransferBuffer(h *ModuleHandle) ([]byte, error) {
	ptr, err := s.ReadPtr(h.Location)
	if err != nil {
		return nil, err
	}
	if ptr == 0 {
		return nil, errNoBuffer
	}
	field, err := s.Read(ptr, transfer.LengthFieldSize)
	if err != nil {
		return nil, err
	}
	n, err := transfer.ReadByteLength(s.ByteOrder, field)
	if err != nil {
		return nil, err
	}
	body, err := s.Read(ptr+transfer.LengthFieldSize, int(n))
	if err != nil {
		return nil, fmt.Errorf("byte_length %d: %w", n, err)
	}
	log.Debugf("PID %d: read %d byte transfer buffer at %v", s.PID, n, ptr)
	return body, nil
}
