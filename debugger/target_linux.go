// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package debugger // import "github.com/cls-tools/consolelogsaver/debugger"

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/libpf/pfelf"
	"github.com/cls-tools/consolelogsaver/process"
	"github.com/cls-tools/consolelogsaver/remote"
	"github.com/cls-tools/consolelogsaver/remote/expr"
	"github.com/cls-tools/consolelogsaver/remotememory"
)

// rtldNow is RTLD_NOW of the dynamic loader.
const rtldNow = 2

// target is a process seized with ptrace.
type target struct {
	tracer  *process.Tracer
	mem     remotememory.RemoteMemory
	ptrSize int
	order   binary.ByteOrder

	symbols *symbolCache
	// files maps a module path to the key of its lowest mapping.
	files map[string]mappedFile
	funcs map[string]libpf.Address

	allocs    map[libpf.Address]int
	handles   map[remote.ImageToken]uint64
	nextToken remote.ImageToken
}

type mappedFile struct {
	key        fileKey
	vaddr      uint64
	fileOffset uint64
}

var _ remote.Target = &target{}
var _ expr.Machine = &target{}

// Attach seizes the main thread of pid and stops it.
func (Ptrace) Attach(_ context.Context, pid libpf.PID) (remote.Target, error) {
	exe, err := pfelf.Open(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", process.ErrNoSuchProcess, err)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", process.ErrPermissionDenied, err)
		}
		return nil, err
	}
	ptrSize, order := exe.PtrSize(), exe.ByteOrder()
	exe.Close()

	tracer, err := process.Seize(pid)
	if err != nil {
		return nil, err
	}
	symbols, err := newSymbolCache(tracer)
	if err != nil {
		_ = tracer.Detach()
		return nil, err
	}
	mem := tracer.GetRemoteMemory()
	mem.Order = order
	mem.PtrSize = ptrSize
	return &target{
		tracer:    tracer,
		mem:       mem,
		ptrSize:   ptrSize,
		order:     order,
		symbols:   symbols,
		funcs:     map[string]libpf.Address{},
		allocs:    map[libpf.Address]int{},
		handles:   map[remote.ImageToken]uint64{},
		nextToken: 1,
	}, nil
}

func (t *target) PtrSize() int                { return t.ptrSize }
func (t *target) ByteOrder() binary.ByteOrder { return t.order }

// Modules lists the ELF files mapped by the process.
func (t *target) Modules() ([]remote.Module, error) {
	mappings, numParseErrors, err := t.tracer.GetMappings()
	if err != nil {
		return nil, err
	}
	if numParseErrors > 0 {
		log.Debugf("PID %d: %d unparsable mappings", t.tracer.PID(), numParseErrors)
	}
	files := make(map[string]mappedFile)
	var mods []remote.Module
	for i := range mappings {
		m := &mappings[i]
		if m.IsAnonymous() || m.IsVDSO() || !strings.HasPrefix(m.Path, "/") {
			continue
		}
		if _, ok := files[m.Path]; ok {
			continue
		}
		files[m.Path] = mappedFile{
			key:        fileKey{device: m.Device, inode: m.Inode, path: m.Path},
			vaddr:      m.Vaddr,
			fileOffset: m.FileOffset,
		}
		mods = append(mods, remote.Module{Path: m.Path, Base: libpf.Address(m.Vaddr)})
	}
	t.files = files
	return mods, nil
}

// image returns the symbols and load bias of a module.
func (t *target) image(path string) (*image, libpf.Address, error) {
	if t.files == nil {
		if _, err := t.Modules(); err != nil {
			return nil, 0, err
		}
	}
	mf, ok := t.files[path]
	if !ok {
		return nil, 0, fmt.Errorf("%s is not mapped", path)
	}
	im, err := t.symbols.get(mf.key)
	if err != nil {
		return nil, 0, err
	}
	bias, ok := im.mapper.Bias(mf.vaddr, mf.fileOffset)
	if !ok {
		return nil, 0, fmt.Errorf("%s: offset 0x%x is outside its segments", path, mf.fileOffset)
	}
	return im, bias, nil
}

func (t *target) VisitSymbols(m remote.Module, visit func(remote.Symbol) bool) error {
	im, bias, err := t.image(m.Path)
	if err != nil {
		return err
	}
	im.visit(func(sym libpf.Symbol) bool {
		return visit(remote.Symbol{
			Name:    string(sym.Name),
			Address: bias + libpf.Address(sym.Address),
		})
	})
	return nil
}

func (t *target) LookupSymbol(m remote.Module, name string) (libpf.Address, error) {
	im, bias, err := t.image(m.Path)
	if err != nil {
		return 0, err
	}
	v, ok := im.lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s in %s", pfelf.ErrSymbolNotFound, name, m.Path)
	}
	return bias + libpf.Address(v), nil
}

// ResolveFunction finds a C library or loader function.
func (t *target) ResolveFunction(name string) (libpf.Address, error) {
	if addr, ok := t.funcs[name]; ok {
		return addr, nil
	}
	mods, err := t.Modules()
	if err != nil {
		return 0, err
	}
	for rank := range loaderLibraries {
		for _, m := range mods {
			if loaderRank(m.Path) != rank {
				continue
			}
			addr, err := t.LookupSymbol(m, name)
			if err != nil {
				continue
			}
			log.Debugf("Resolved %s at %v in %s", name, addr, m.Path)
			t.funcs[name] = addr
			return addr, nil
		}
	}
	return 0, fmt.Errorf("%w: %s in the C library", pfelf.ErrSymbolNotFound, name)
}

func (t *target) RunTo(ctx context.Context, addr libpf.Address) error {
	code := make([]byte, maxInstructionLen)
	if err := t.tracer.PeekText(addr, code); err == nil {
		log.Debugf("Breaking at %v: %s", addr, disassemble(code))
	}
	return t.tracer.RunToBreakpoint(ctx, addr)
}

func (t *target) Call(fn libpf.Address, args ...uint64) (uint64, error) {
	return t.tracer.Call(fn, args...)
}

func (t *target) Evaluate(p *expr.Program) (uint64, error) {
	return expr.Eval(t, p)
}

func (t *target) ReadMemory(addr libpf.Address, p []byte) error {
	return t.mem.Read(addr, p)
}

func (t *target) WriteMemory(addr libpf.Address, p []byte) error {
	return t.mem.Write(addr, p)
}

func protFlags(prot remote.Protection) uint64 {
	var flags uint64
	if prot&remote.ProtRead != 0 {
		flags |= unix.PROT_READ
	}
	if prot&remote.ProtWrite != 0 {
		flags |= unix.PROT_WRITE
	}
	if prot&remote.ProtExec != 0 {
		flags |= unix.PROT_EXEC
	}
	return flags
}

// Allocate maps anonymous pages in the target.
func (t *target) Allocate(size int, prot remote.Protection) (libpf.Address, error) {
	mmap, err := t.ResolveFunction("mmap")
	if err != nil {
		return 0, err
	}
	pageSize := os.Getpagesize()
	length := (size + pageSize - 1) &^ (pageSize - 1)
	res, err := t.tracer.Call(mmap, 0, uint64(length), protFlags(prot),
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS, ^uint64(0), 0)
	if err != nil {
		return 0, err
	}
	if int64(res) == -1 || res == 0 {
		return 0, fmt.Errorf("mmap of %d bytes failed in the target", length)
	}
	addr := libpf.Address(res)
	t.allocs[addr] = length
	return addr, nil
}

func (t *target) Deallocate(addr libpf.Address) error {
	length, ok := t.allocs[addr]
	if !ok {
		return fmt.Errorf("%v was not allocated", addr)
	}
	munmap, err := t.ResolveFunction("munmap")
	if err != nil {
		return err
	}
	rc, err := t.tracer.Call(munmap, uint64(addr), uint64(length))
	if err != nil {
		return err
	}
	if int32(rc) != 0 {
		return fmt.Errorf("munmap of %v failed in the target", addr)
	}
	delete(t.allocs, addr)
	return nil
}

// loaderError returns dlerror() of the target.
func (t *target) loaderError() string {
	dlerror, err := t.ResolveFunction("dlerror")
	if err != nil {
		return ""
	}
	msg, err := t.tracer.Call(dlerror)
	if err != nil || msg == 0 {
		return ""
	}
	return t.mem.String(libpf.Address(msg))
}

// LoadImage calls dlopen in the target.
func (t *target) LoadImage(path string) (tok remote.ImageToken, err error) {
	dlopen, err := t.ResolveFunction("dlopen")
	if err != nil {
		return 0, err
	}
	buf, err := t.Allocate(len(path)+1, remote.ProtRead|remote.ProtWrite)
	if err != nil {
		return 0, err
	}
	defer func() {
		if derr := t.Deallocate(buf); derr != nil {
			err = errors.Join(err, derr)
		}
	}()
	if err = t.mem.Write(buf, append([]byte(path), 0)); err != nil {
		return 0, err
	}
	handle, err := t.tracer.Call(dlopen, uint64(buf), rtldNow)
	if err != nil {
		return 0, err
	}
	if handle == 0 {
		return 0, fmt.Errorf("dlopen %s: %s", path, t.loaderError())
	}
	tok = t.nextToken
	t.nextToken++
	t.handles[tok] = handle
	// The new image and its dependencies are picked up on the next listing.
	t.files = nil
	return tok, nil
}

func (t *target) UnloadImage(tok remote.ImageToken) error {
	handle, ok := t.handles[tok]
	if !ok {
		return fmt.Errorf("unknown image token %d", tok)
	}
	dlclose, err := t.ResolveFunction("dlclose")
	if err != nil {
		return err
	}
	rc, err := t.tracer.Call(dlclose, handle)
	if err != nil {
		return err
	}
	if int32(rc) != 0 {
		return fmt.Errorf("dlclose: %s", t.loaderError())
	}
	delete(t.handles, tok)
	t.files = nil
	return nil
}

func (t *target) Resume() error {
	return t.tracer.Resume()
}

func (t *target) Detach() error {
	if len(t.allocs) > 0 {
		log.Warnf("PID %d: detaching with %d staging mappings left",
			t.tracer.PID(), len(t.allocs))
	}
	return t.tracer.Detach()
}
