// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remote // import "github.com/cls-tools/consolelogsaver/remote"

import (
	"bytes"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/remote/expr"
	"github.com/cls-tools/consolelogsaver/remotememory"
)

// rtldLazy is RTLD_LAZY of the dynamic loader.
const rtldLazy = 1

// Slots of the staging record shared with the loader program.
const (
	slotLoadPath = iota
	slotSaveName
	slotFreeName
	slotLocationName
	slotError
	slotErrorLen
	slotHandle
	slotSave
	slotFree
	slotLocation
	numSlots
)

// recordType declares the staging record in the program.
func recordType(b *expr.Builder) *expr.StructType {
	fields := make([]expr.Type, numSlots)
	for i := range fields {
		fields[i] = expr.Ptr
	}
	fields[slotErrorLen] = expr.IPtr
	return b.Struct("inout", fields...)
}

// stagingRecord lays out the record followed by the NUL terminated path and
// export names, with the string slots pointing at them.
func (s *Session) stagingRecord(base libpf.Address, path string) []byte {
	strs := [4]string{path, exportNames[0], exportNames[1], exportNames[2]}
	size := numSlots * s.PtrSize
	for _, str := range strs {
		size += len(str) + 1
	}
	buf := make([]byte, size)
	off := numSlots * s.PtrSize
	for i, str := range strs {
		s.mem.EncodePtr(buf[i*s.PtrSize:], base+libpf.Address(off))
		off += copy(buf[off:], str) + 1
	}
	return buf
}

// loaderProgram builds:
//
//	handle = dlopen(path, RTLD_LAZY); if !handle goto fail
//	save = dlsym(handle, save_name); if !save goto fail
//	free = dlsym(handle, free_name); if !free goto fail
//	location = dlsym(handle, location_name); if !location goto fail
//	return
//	fail: error = dlerror(); if error: error_len = strlen(error)
//	      if handle: dlclose(handle)
//
// with every intermediate value stored into the record at base.
func loaderProgram(base libpf.Address) (*expr.Program, error) {
	b := expr.NewBuilder("load payload", expr.Void)
	rec := recordType(b)
	dlopen := b.Func("dlopen", expr.Ptr, expr.Ptr, expr.I32)
	dlsym := b.Func("dlsym", expr.Ptr, expr.Ptr, expr.Ptr)
	dlerror := b.Func("dlerror", expr.Ptr)
	strlen := b.Func("strlen", expr.IPtr, expr.Ptr)
	dlclose := b.Func("dlclose", expr.I32, expr.Ptr)

	entry := b.Block("open")
	lookups := [3]*expr.Block{b.Block("save"), b.Block("free"), b.Block("location")}
	done := b.Block("done")
	fail := b.Block("fail")
	measure := b.Block("measure")
	checkHandle := b.Block("check handle")
	closeHandle := b.Block("close")
	out := b.Block("out")

	recPtr := b.Const(expr.Ptr, uint64(base))
	path := entry.Load(expr.Ptr, entry.FieldPtr(rec, recPtr, slotLoadPath))
	handle := entry.Call(dlopen, path, b.Const(expr.I32, rtldLazy))
	entry.Store(entry.FieldPtr(rec, recPtr, slotHandle), handle)
	entry.CondBr(entry.IsNull(handle), fail, lookups[0])

	for i, blk := range lookups {
		next := done
		if i+1 < len(lookups) {
			next = lookups[i+1]
		}
		name := blk.Load(expr.Ptr, blk.FieldPtr(rec, recPtr, slotSaveName+i))
		sym := blk.Call(dlsym, handle, name)
		blk.Store(blk.FieldPtr(rec, recPtr, slotSave+i), sym)
		blk.CondBr(blk.IsNull(sym), fail, next)
	}
	done.RetVoid()

	errStr := fail.Call(dlerror)
	fail.Store(fail.FieldPtr(rec, recPtr, slotError), errStr)
	fail.CondBr(fail.IsNull(errStr), checkHandle, measure)

	measure.Store(measure.FieldPtr(rec, recPtr, slotErrorLen), measure.Call(strlen, errStr))
	measure.Br(checkHandle)

	// The handle is reloaded as fail is reachable before it is known.
	h := checkHandle.Load(expr.Ptr, checkHandle.FieldPtr(rec, recPtr, slotHandle))
	checkHandle.CondBr(checkHandle.IsNull(h), out, closeHandle)

	closeHandle.Call(dlclose, h)
	closeHandle.Br(out)

	out.RetVoid()
	return b.Build()
}

// closeProgram builds "return dlclose(handle)".
func closeProgram(handle uint64) (*expr.Program, error) {
	b := expr.NewBuilder("unload payload", expr.I32)
	dlclose := b.Func("dlclose", expr.I32, expr.Ptr)
	entry := b.Block("close")
	entry.Ret(entry.Call(dlclose, b.Const(expr.Ptr, handle)))
	return b.Build()
}

func (s *Session) injectManual(path string) (h *ModuleHandle, err error) {
	size := len(s.stagingRecord(0, path))
	base, err := s.Allocate(size, ProtRead|ProtWrite)
	if err != nil {
		return nil, err
	}
	defer func() {
		if derr := s.Deallocate(base); derr != nil {
			log.Warnf("PID %d: leaking %d bytes of staging memory at %v: %v",
				s.PID, size, base, derr)
		}
	}()

	if err = s.Write(base, s.stagingRecord(base, path)); err != nil {
		return nil, err
	}
	prog, err := loaderProgram(base)
	if err != nil {
		return nil, err
	}
	if _, err = s.evaluate(prog); err != nil {
		return nil, err
	}

	raw, err := s.Read(base, numSlots*s.PtrSize)
	if err != nil {
		return nil, err
	}
	record := remotememory.RemoteMemory{
		ReaderAt: bytes.NewReader(raw),
		Order:    s.ByteOrder,
		PtrSize:  s.PtrSize,
	}
	slot := func(i int) libpf.Address {
		return record.Ptr(libpf.Address(i * s.PtrSize))
	}

	if slot(slotHandle) == 0 || slot(slotSave) == 0 || slot(slotFree) == 0 || slot(slotLocation) == 0 {
		ie := &InjectionError{Missing: "library handle for " + path}
		for i, name := range exportNames {
			if slot(slotHandle) != 0 && slot(slotSave+i) == 0 {
				ie.Missing = name
				break
			}
		}
		if msg := slot(slotError); msg != 0 {
			text, rerr := s.ReadString(msg, int(slot(slotErrorLen)))
			if rerr != nil {
				ie.Diagnostic = fmt.Sprintf("<unreadable loader error: %v>", rerr)
			} else {
				ie.Diagnostic = text
			}
		}
		return nil, ie
	}

	return &ModuleHandle{
		Strategy: StrategyManual,
		Token:    uint64(slot(slotHandle)),
		Path:     path,
		Save:     slot(slotSave),
		Free:     slot(slotFree),
		Location: slot(slotLocation),
	}, nil
}

func (s *Session) releaseManual(h *ModuleHandle) error {
	prog, err := closeProgram(h.Token)
	if err != nil {
		return err
	}
	rc, err := s.evaluate(prog)
	if err != nil {
		return err
	}
	if int32(rc) != 0 {
		return errors.New("dlclose reported failure")
	}
	return nil
}
