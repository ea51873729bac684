// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remote // import "github.com/cls-tools/consolelogsaver/remote"

import (
	"fmt"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/remote/expr"
	"github.com/cls-tools/consolelogsaver/remotememory"
)

// targetMemory exposes the memory of a Target as io.ReaderAt and io.WriterAt.
type targetMemory struct {
	target Target
}

func (m targetMemory) ReadAt(p []byte, off int64) (int, error) {
	if err := m.target.ReadMemory(libpf.Address(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (m targetMemory) WriteAt(p []byte, off int64) (int, error) {
	if err := m.target.WriteMemory(libpf.Address(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// newTargetMemory returns the remote memory view of t in its pointer layout.
func newTargetMemory(t Target) remotememory.RemoteMemory {
	return remotememory.RemoteMemory{
		ReaderAt: targetMemory{t},
		WriterAt: targetMemory{t},
		Order:    t.ByteOrder(),
		PtrSize:  t.PtrSize(),
	}
}

// callProgram builds "declare void() at addr; call; return".
func callProgram(addr libpf.Address) (*expr.Program, error) {
	b := expr.NewBuilder("call "+addr.String(), expr.Void)
	fn := b.FuncAt(addr, expr.Void)
	entry := b.Block("entry")
	entry.Call(fn)
	entry.RetVoid()
	return b.Build()
}

// evaluate runs p and treats a missing result as success.
func (s *Session) evaluate(p *expr.Program) (uint64, error) {
	v, err := s.target.Evaluate(p)
	if err != nil && !expr.IsNoResult(err) {
		return 0, fmt.Errorf("%w: %s: %w", ErrRemoteCallFailed, p.Name, err)
	}
	return v, nil
}

// CallNoArgs calls the void function at addr in the stopped thread.
func (s *Session) CallNoArgs(addr libpf.Address) error {
	p, err := callProgram(addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteCallFailed, err)
	}
	_, err = s.evaluate(p)
	return err
}

// Read copies length bytes of target memory at addr.
func (s *Session) Read(addr libpf.Address, length int) ([]byte, error) {
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	if err := s.mem.Read(addr, buf); err != nil {
		return nil, fmt.Errorf("%w: read %d bytes at %v: %w", ErrMemoryAccess, length, addr, err)
	}
	return buf, nil
}

// ReadPtr reads a target pointer at addr.
func (s *Session) ReadPtr(addr libpf.Address) (libpf.Address, error) {
	ptr, err := s.mem.PtrChecked(addr)
	if err != nil {
		return 0, fmt.Errorf("%w: read pointer at %v: %w", ErrMemoryAccess, addr, err)
	}
	return ptr, nil
}

// ReadString reads n bytes of text at addr.
func (s *Session) ReadString(addr libpf.Address, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	str, err := s.mem.StringN(addr, n)
	if err != nil {
		return "", fmt.Errorf("%w: read %d bytes at %v: %w", ErrMemoryAccess, n, addr, err)
	}
	return str, nil
}

// Write copies data into target memory at addr.
func (s *Session) Write(addr libpf.Address, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := s.mem.Write(addr, data); err != nil {
		return fmt.Errorf("%w: write %d bytes at %v: %w", ErrMemoryAccess, len(data), addr, err)
	}
	return nil
}

// Allocate reserves staging memory in the target.
func (s *Session) Allocate(length int, prot Protection) (libpf.Address, error) {
	addr, err := s.target.Allocate(length, prot)
	if err != nil {
		return 0, fmt.Errorf("%w: allocate %d bytes: %w", ErrMemoryAccess, length, err)
	}
	return addr, nil
}

// Deallocate releases memory from Allocate.
func (s *Session) Deallocate(addr libpf.Address) error {
	if err := s.target.Deallocate(addr); err != nil {
		return fmt.Errorf("%w: deallocate %v: %w", ErrMemoryAccess, addr, err)
	}
	return nil
}
