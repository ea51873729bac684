// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/remote/expr"
	"github.com/cls-tools/consolelogsaver/transfer"
)

const (
	heapBase    = 0x100000
	codeBase    = 0x400000
	payloadPath = "/tmp/clspayload.so"
	libHandle   = 0x7f00
)

// fakeTarget emulates a stopped process: a bump-allocated heap, host
// functions standing in for target code and a dynamic loader that knows
// one payload.
type fakeTarget struct {
	ptrSize int
	order   binary.ByteOrder

	heap   []byte
	allocs map[libpf.Address]int
	funcs  map[string]libpf.Address
	impls  map[libpf.Address]func([]uint64) uint64

	modules []Module
	symbols map[string][]Symbol

	doc        *transfer.Document
	corrupt    bool
	missing    string
	location   libpf.Address
	dlError    libpf.Address
	freed      int
	closed     int
	loaded     bool
	runToErr   error
	calls      []string
	events     []string
	evaluateFn func(p *expr.Program) (uint64, error)
}

func newFakeTarget(doc *transfer.Document) *fakeTarget {
	t := &fakeTarget{
		ptrSize: HostPtrSize,
		order:   binary.NativeEndian,
		allocs:  map[libpf.Address]int{},
		funcs:   map[string]libpf.Address{},
		impls:   map[libpf.Address]func([]uint64) uint64{},
		symbols: map[string][]Symbol{},
		doc:     doc,
	}
	t.modules = []Module{
		{Path: "/usr/lib/libc.so.6", Base: 0x1000},
		{Path: "/opt/Unity/Editor/Unity", Base: 0x2000},
	}
	t.symbols["/opt/Unity/Editor/Unity"] = []Symbol{
		{Name: "_ZN5Scene4LoadEv", Address: 0x2100},
		{Name: "_ZN12SceneTracker6UpdateEv", Address: 0x2200},
	}
	t.location = t.alloc(8)

	t.define("save", func([]uint64) uint64 {
		buf, err := transfer.Encode(t.order, t.doc)
		if err != nil {
			panic(err)
		}
		if t.corrupt {
			t.order.PutUint32(buf[transfer.CapacityHeaderSize+transfer.LengthFieldSize:], 2)
		}
		base := t.alloc(len(buf))
		t.mustWrite(base, buf)
		t.putPtr(t.location, base+transfer.CapacityHeaderSize)
		return 0
	})
	t.define("free", func([]uint64) uint64 {
		if t.getPtr(t.location) != 0 {
			t.freed++
		}
		t.putPtr(t.location, 0)
		return 0
	})
	t.define("dlopen", func(args []uint64) uint64 {
		if path := t.cString(libpf.Address(args[0])); path != payloadPath {
			t.setDLError(path + ": cannot open shared object file")
			return 0
		}
		t.loaded = true
		return libHandle
	})
	t.define("dlsym", func(args []uint64) uint64 {
		name := t.cString(libpf.Address(args[1]))
		if args[0] != libHandle || name == t.missing {
			t.setDLError("undefined symbol: " + name)
			return 0
		}
		return uint64(t.funcs[t.exportTarget(name)])
	})
	t.define("dlerror", func([]uint64) uint64 {
		msg := t.dlError
		t.dlError = 0
		return uint64(msg)
	})
	t.define("strlen", func(args []uint64) uint64 {
		return uint64(len(t.cString(libpf.Address(args[0]))))
	})
	t.define("dlclose", func(args []uint64) uint64 {
		t.closed++
		t.loaded = false
		return 0
	})
	t.funcs["location"] = t.location
	return t
}

func (t *fakeTarget) exportTarget(name string) string {
	switch name {
	case transfer.SaveSymbol:
		return "save"
	case transfer.FreeSymbol:
		return "free"
	case transfer.LocationSymbol:
		return "location"
	}
	return ""
}

func (t *fakeTarget) define(name string, impl func([]uint64) uint64) {
	addr := libpf.Address(codeBase + 0x10*len(t.funcs))
	t.funcs[name] = addr
	t.impls[addr] = func(args []uint64) uint64 {
		t.calls = append(t.calls, name)
		return impl(args)
	}
}

func (t *fakeTarget) alloc(n int) libpf.Address {
	addr := libpf.Address(heapBase + len(t.heap))
	t.heap = append(t.heap, make([]byte, (n+15)&^15)...)
	t.allocs[addr] = n
	return addr
}

func (t *fakeTarget) span(addr libpf.Address, n int) ([]byte, error) {
	off := int(addr) - heapBase
	if off < 0 || off+n > len(t.heap) {
		return nil, fmt.Errorf("unmapped %v+%d", addr, n)
	}
	return t.heap[off : off+n], nil
}

func (t *fakeTarget) mustWrite(addr libpf.Address, p []byte) {
	if err := t.WriteMemory(addr, p); err != nil {
		panic(err)
	}
}

func (t *fakeTarget) putPtr(addr, v libpf.Address) {
	buf := make([]byte, t.ptrSize)
	if t.ptrSize == 4 {
		t.order.PutUint32(buf, uint32(v))
	} else {
		t.order.PutUint64(buf, uint64(v))
	}
	t.mustWrite(addr, buf)
}

func (t *fakeTarget) getPtr(addr libpf.Address) libpf.Address {
	buf, err := t.span(addr, t.ptrSize)
	if err != nil {
		panic(err)
	}
	if t.ptrSize == 4 {
		return libpf.Address(t.order.Uint32(buf))
	}
	return libpf.Address(t.order.Uint64(buf))
}

func (t *fakeTarget) cString(addr libpf.Address) string {
	off := int(addr) - heapBase
	if off < 0 || off >= len(t.heap) {
		return ""
	}
	s := t.heap[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}

func (t *fakeTarget) setDLError(msg string) {
	t.dlError = t.alloc(len(msg) + 1)
	t.mustWrite(t.dlError, []byte(msg))
}

func (t *fakeTarget) PtrSize() int                { return t.ptrSize }
func (t *fakeTarget) ByteOrder() binary.ByteOrder { return t.order }

func (t *fakeTarget) Modules() ([]Module, error) {
	return t.modules, nil
}

func (t *fakeTarget) VisitSymbols(m Module, visit func(Symbol) bool) error {
	for _, sym := range t.symbols[m.Path] {
		if !visit(sym) {
			break
		}
	}
	return nil
}

func (t *fakeTarget) LookupSymbol(m Module, name string) (libpf.Address, error) {
	for _, sym := range t.symbols[m.Path] {
		if sym.Name == name {
			return sym.Address, nil
		}
	}
	return 0, fmt.Errorf("symbol %s not found", name)
}

func (t *fakeTarget) RunTo(_ context.Context, addr libpf.Address) error {
	t.events = append(t.events, fmt.Sprintf("run to %v", addr))
	return t.runToErr
}

func (t *fakeTarget) Evaluate(p *expr.Program) (uint64, error) {
	t.events = append(t.events, "evaluate "+p.Name)
	if t.evaluateFn != nil {
		return t.evaluateFn(p)
	}
	return expr.Eval(t, p)
}

func (t *fakeTarget) ResolveFunction(name string) (libpf.Address, error) {
	if addr, ok := t.funcs[name]; ok {
		return addr, nil
	}
	return 0, fmt.Errorf("no function %s", name)
}

func (t *fakeTarget) Call(fn libpf.Address, args ...uint64) (uint64, error) {
	impl, ok := t.impls[fn]
	if !ok {
		return 0, fmt.Errorf("SIGSEGV at %v", fn)
	}
	return impl(args), nil
}

func (t *fakeTarget) ReadMemory(addr libpf.Address, p []byte) error {
	s, err := t.span(addr, len(p))
	if err != nil {
		return err
	}
	copy(p, s)
	return nil
}

func (t *fakeTarget) WriteMemory(addr libpf.Address, p []byte) error {
	s, err := t.span(addr, len(p))
	if err != nil {
		return err
	}
	copy(s, p)
	return nil
}

func (t *fakeTarget) Allocate(size int, _ Protection) (libpf.Address, error) {
	t.events = append(t.events, "allocate")
	return t.alloc(size), nil
}

func (t *fakeTarget) Deallocate(addr libpf.Address) error {
	if _, ok := t.allocs[addr]; !ok {
		return fmt.Errorf("%v was not allocated", addr)
	}
	delete(t.allocs, addr)
	t.events = append(t.events, "deallocate")
	return nil
}

func (t *fakeTarget) LoadImage(path string) (ImageToken, error) {
	if path != payloadPath {
		return 0, errors.New("image not found")
	}
	t.loaded = true
	t.modules = append(t.modules, Module{Path: path, Base: 0x9000})
	var syms []Symbol
	for _, name := range exportNames {
		if name != t.missing {
			syms = append(syms, Symbol{Name: name, Address: t.funcs[t.exportTarget(name)]})
		}
	}
	t.symbols[path] = syms
	return 1, nil
}

func (t *fakeTarget) UnloadImage(tok ImageToken) error {
	if tok != 1 || !t.loaded {
		return errors.New("unknown image")
	}
	t.loaded = false
	t.closed++
	t.modules = t.modules[:len(t.modules)-1]
	return nil
}

func (t *fakeTarget) Resume() error {
	t.events = append(t.events, "resume")
	return nil
}

func (t *fakeTarget) Detach() error {
	t.events = append(t.events, "detach")
	return nil
}

type fakeDebugger struct {
	target *fakeTarget
	err    error
}

func (d *fakeDebugger) Attach(context.Context, libpf.PID) (Target, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.target, nil
}

func helloWorld() *transfer.Document {
	return &transfer.Document{
		UnityVersion:     "2022.3.6f1",
		OSDescription:    "Linux 6.1",
		BuildTarget:      "StandaloneLinux64",
		CurrentDirectory: "/home/user/Project",
		Records: []transfer.LogRecord{
			{Message: "Hello", Mode: 0},
			{Message: "World", Mode: 1},
		},
	}
}

func TestExtract(t *testing.T) {
	for _, strategy := range []Strategy{StrategyDirect, StrategyManual} {
		t.Run(strategy.String(), func(t *testing.T) {
			target := newFakeTarget(helloWorld())
			res, err := Extract(context.Background(), &fakeDebugger{target: target}, 4242,
				Options{PayloadPath: payloadPath, Strategy: strategy})
			require.NoError(t, err)

			assert.Equal(t, helloWorld(), res.Document)
			assert.Equal(t, "/home/user/Project", res.Document.CurrentDirectory)
			assert.Equal(t, Detached, res.FinalState)
			assert.Equal(t, 1, target.freed)
			assert.Equal(t, 1, target.closed)
			assert.False(t, target.loaded)
			assert.Equal(t, []string{"resume", "detach"}, target.events[len(target.events)-2:])
			assert.Equal(t, "run to 0x2200", target.events[0])
			if strategy == StrategyManual {
				assert.Equal(t, []string{"dlopen", "dlsym", "dlsym", "dlsym",
					"save", "free", "dlclose"}, target.calls)
				// Staging memory is returned.
				assert.Len(t, target.allocs, 2)
			}
		})
	}
}

func TestExtractEmpty(t *testing.T) {
	target := newFakeTarget(&transfer.Document{})
	res, err := Extract(context.Background(), &fakeDebugger{target: target}, 4243,
		Options{PayloadPath: payloadPath, Strategy: StrategyManual})
	require.NoError(t, err)
	assert.Empty(t, res.Document.Records)
}

func TestAbiGateBeforeInjection(t *testing.T) {
	var otherOrder binary.ByteOrder = binary.BigEndian
	if SameByteOrder(binary.NativeEndian, binary.BigEndian) {
		otherOrder = binary.LittleEndian
	}

	tests := map[string]func(*fakeTarget){
		"pointer size": func(t *fakeTarget) { t.ptrSize = 12 - HostPtrSize },
		"byte order":   func(t *fakeTarget) { t.order = otherOrder },
	}
	for name, mismatch := range tests {
		t.Run(name, func(t *testing.T) {
			target := newFakeTarget(helloWorld())
			mismatch(target)
			_, err := Extract(context.Background(), &fakeDebugger{target: target}, 4244,
				Options{PayloadPath: payloadPath})
			require.ErrorIs(t, err, ErrAbiMismatch)

			var pe *PhaseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "validate ABI", pe.Step)
			assert.Empty(t, target.calls)
			assert.NotContains(t, target.events, "allocate")
			assert.Equal(t, []string{"resume", "detach"}, target.events[len(target.events)-2:])
		})
	}
}

func TestSyncPointNotFound(t *testing.T) {
	target := newFakeTarget(helloWorld())
	_, err := Extract(context.Background(), &fakeDebugger{target: target}, 4245,
		Options{PayloadPath: payloadPath,
			SyncPoint: SyncPoint{SymbolPattern: "EditorApplication::Tick("}})
	require.ErrorIs(t, err, ErrSyncPointNotFound)
	assert.Equal(t, []string{"resume", "detach"}, target.events)
}

func TestCleanupOnFailure(t *testing.T) {
	tests := map[string]struct {
		strategy  Strategy
		setup     func(*fakeTarget)
		kind      error
		phase     State
		diag      string
		wantClose int
	}{
		"direct missing export": {
			strategy:  StrategyDirect,
			setup:     func(t *fakeTarget) { t.missing = transfer.FreeSymbol },
			kind:      ErrInjection,
			phase:     PayloadLoaded,
			wantClose: 1,
		},
		"manual missing export": {
			strategy:  StrategyManual,
			setup:     func(t *fakeTarget) { t.missing = transfer.LocationSymbol },
			kind:      ErrInjection,
			phase:     PayloadLoaded,
			diag:      "undefined symbol: " + transfer.LocationSymbol,
			wantClose: 1,
		},
		"corrupt buffer": {
			strategy:  StrategyManual,
			setup:     func(t *fakeTarget) { t.corrupt = true },
			kind:      ErrCorruptData,
			phase:     DataRead,
			wantClose: 1,
		},
		"save crashes": {
			strategy: StrategyManual,
			setup: func(t *fakeTarget) {
				delete(t.impls, t.funcs["save"])
			},
			kind:      ErrRemoteCallFailed,
			phase:     InvokedSave,
			wantClose: 1,
		},
		"run to fails": {
			strategy: StrategyManual,
			setup:    func(t *fakeTarget) { t.runToErr = errors.New("process exited") },
			kind:     ErrRemoteCallFailed,
			phase:    AtSyncPoint,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			target := newFakeTarget(helloWorld())
			tc.setup(target)
			s, err := Attach(context.Background(), &fakeDebugger{target: target}, 4300)
			require.NoError(t, err)

			_, err = func() (doc *transfer.Document, err error) {
				defer func() { err = errors.Join(err, s.Detach()) }()
				if err = s.RunToSyncPoint(context.Background(), SyncPoint{}); err != nil {
					return nil, err
				}
				h, err := s.Inject(payloadPath, tc.strategy)
				if err != nil {
					return nil, err
				}
				defer s.Release(h)
				return s.roundTrip(context.Background(), h)
			}()

			require.ErrorIs(t, err, tc.kind)
			var pe *PhaseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.phase, pe.Phase)
			if tc.diag != "" {
				var ie *InjectionError
				require.ErrorAs(t, err, &ie)
				assert.Equal(t, tc.diag, ie.Diagnostic)
				assert.Equal(t, transfer.LocationSymbol, ie.Missing)
			}
			assert.Equal(t, Detached, s.State())
			assert.Equal(t, tc.wantClose, target.closed)
			assert.False(t, target.loaded)
		})
	}
}

func TestManualInjectionDiagnostic(t *testing.T) {
	target := newFakeTarget(helloWorld())
	s, err := Attach(context.Background(), &fakeDebugger{target: target}, 4301)
	require.NoError(t, err)
	defer s.Detach()

	_, err = s.Inject("/tmp/missing.so", StrategyManual)
	require.ErrorIs(t, err, ErrInjection)
	var ie *InjectionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "library handle for /tmp/missing.so", ie.Missing)
	assert.Equal(t, "/tmp/missing.so: cannot open shared object file", ie.Diagnostic)
	// No handle, so no dlclose.
	assert.Equal(t, []string{"dlopen", "dlerror", "strlen"}, target.calls)
	assert.Equal(t, Failed, s.State())
}

func TestCancelledBeforeInjection(t *testing.T) {
	target := newFakeTarget(helloWorld())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Extract(ctx, &fakeDebugger{target: target}, 4302, Options{PayloadPath: payloadPath})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, target.calls)
	assert.Equal(t, []string{"resume", "detach"}, target.events)
}

func TestDuplicateAttach(t *testing.T) {
	dbg := &fakeDebugger{target: newFakeTarget(helloWorld())}
	s, err := Attach(context.Background(), dbg, 4303)
	require.NoError(t, err)

	_, err = Attach(context.Background(), dbg, 4303)
	require.ErrorIs(t, err, ErrAttach)

	require.NoError(t, s.Detach())
	require.NoError(t, s.Detach())
	s2, err := Attach(context.Background(), dbg, 4303)
	require.NoError(t, err)
	require.NoError(t, s2.Detach())
}

func TestAttachFailure(t *testing.T) {
	_, err := Attach(context.Background(), &fakeDebugger{err: errors.New("no such process")}, 4304)
	require.ErrorIs(t, err, ErrAttach)
	assert.Contains(t, err.Error(), "attach: attach failed: no such process")
}

func TestCallNoArgsStatus(t *testing.T) {
	target := newFakeTarget(helloWorld())
	s, err := Attach(context.Background(), &fakeDebugger{target: target}, 4305)
	require.NoError(t, err)
	defer s.Detach()

	require.NoError(t, s.CallNoArgs(target.funcs["free"]))

	target.evaluateFn = func(*expr.Program) (uint64, error) {
		return 0, &expr.Error{Status: expr.StatusExecutionFailed, Err: errors.New("SIGILL")}
	}
	err = s.CallNoArgs(target.funcs["free"])
	require.ErrorIs(t, err, ErrRemoteCallFailed)

	_, err = s.Read(0x10, 4)
	require.ErrorIs(t, err, ErrMemoryAccess)
	require.ErrorIs(t, s.Write(0x10, []byte{1}), ErrMemoryAccess)
}

func TestSessionPointerAndString(t *testing.T) {
	target := newFakeTarget(helloWorld())
	s, err := Attach(context.Background(), &fakeDebugger{target: target}, 4305)
	require.NoError(t, err)
	defer s.Detach()

	slot := target.alloc(target.ptrSize)
	target.putPtr(slot, 0x7f001234)
	ptr, err := s.ReadPtr(slot)
	require.NoError(t, err)
	assert.Equal(t, libpf.Address(0x7f001234), ptr)

	text := target.alloc(16)
	target.mustWrite(text, []byte("player.log"))
	str, err := s.ReadString(text, 6)
	require.NoError(t, err)
	assert.Equal(t, "player", str)

	str, err = s.ReadString(text, 0)
	require.NoError(t, err)
	assert.Empty(t, str)

	_, err = s.ReadPtr(0x10)
	require.ErrorIs(t, err, ErrMemoryAccess)
	_, err = s.ReadString(0x10, 4)
	require.ErrorIs(t, err, ErrMemoryAccess)
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"":       StrategyAuto,
		"auto":   StrategyAuto,
		"Direct": StrategyDirect,
		"manual": StrategyManual,
	} {
		got, err := ParseStrategy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStrategy("lldb")
	require.Error(t, err)
	assert.Equal(t, StrategyDirect, StrategyDirect.Resolve())
	assert.NotEqual(t, StrategyAuto, StrategyAuto.Resolve())
}

func TestMatchSymbol(t *testing.T) {
	assert.True(t, MatchSymbol("_ZN12SceneTracker6UpdateEv", "SceneTracker::Update("))
	assert.True(t, MatchSymbol("SceneTracker::Update(void)", "SceneTracker::Update("))
	assert.False(t, MatchSymbol("_ZN12SceneTracker12UpdateLaterEv", "SceneTracker::Update("))
	assert.False(t, MatchSymbol("_ZN5Scene4LoadEv", "SceneTracker::Update("))
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "Unity.exe", Module{Path: `C:\Program Files\Unity\Editor\Unity.exe`}.Name())
	assert.Equal(t, "Unity", Module{Path: "/opt/Unity/Editor/Unity"}.Name())
}

func TestPhaseErrorMessage(t *testing.T) {
	err := &PhaseError{Phase: InvokedFree, Kind: ErrRemoteCallFailed, Err: errors.New("boom")}
	assert.Equal(t, "invoke free: remote call failed: boom", err.Error())
	assert.True(t, Failed.String() == "failed" && !Failed.Terminal())
	assert.True(t, Detached.Terminal())
}
