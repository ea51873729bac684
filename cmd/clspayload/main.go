//go:build cgo && (linux || darwin)

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// clspayload is the module loaded into the editor process. Build it with
//
//	go build -buildmode=c-shared -o clspayload.so ./cmd/clspayload
//
// It exports CONSOLE_LOG_SAVER_SAVE, CONSOLE_LOG_SAVER_FREE_MEM and the
// pointer variable CONSOLE_LOG_SAVER_SAVED_LOCATION.
package main

/*
#include <stddef.h>
#include <stdint.h>

uintptr_t cls_load(void);
void cls_store(uintptr_t v);
uintptr_t cls_malloc(size_t n);
void cls_free(uintptr_t p);
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/cls-tools/consolelogsaver/payload"
	"github.com/cls-tools/consolelogsaver/payload/mono"
)

// location is the mailbox backed by CONSOLE_LOG_SAVER_SAVED_LOCATION.
type location struct{}

func (location) Load() uintptr {
	return uintptr(C.cls_load())
}

func (location) Store(addr uintptr) {
	C.cls_store(C.uintptr_t(addr))
}

// cHeap allocates transfer buffers from the C heap so they stay valid
// after the export returns.
type cHeap struct{}

func (cHeap) Allocate(size int) (uintptr, error) {
	p := uintptr(C.cls_malloc(C.size_t(size)))
	if p == 0 {
		return 0, errors.New("out of memory")
	}
	return p, nil
}

func (cHeap) Bytes(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size) //nolint:govet
}

func (cHeap) Release(addr uintptr, _ int) {
	C.cls_free(C.uintptr_t(addr))
}

var openRuntime = sync.OnceValues(func() (*mono.Runtime, error) {
	return mono.Open(mono.DefaultLibrary)
})

//export CONSOLE_LOG_SAVER_SAVE
func CONSOLE_LOG_SAVER_SAVE() {
	rt, err := openRuntime()
	if err != nil {
		// Nothing is published; the host reports the missing buffer.
		return
	}
	defer rt.Release()
	b := &payload.Bridge{Runtime: rt, Allocator: cHeap{}, Mailbox: location{}}
	_ = b.Save()
}

//export CONSOLE_LOG_SAVER_FREE_MEM
func CONSOLE_LOG_SAVER_FREE_MEM() {
	b := &payload.Bridge{Allocator: cHeap{}, Mailbox: location{}}
	b.Free()
}

func main() {}
