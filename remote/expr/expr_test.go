// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package expr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cls-tools/consolelogsaver/libpf"
)

const memBase = 0x10000

type fakeMachine struct {
	ptrSize int
	mem     []byte
	funcs   map[string]libpf.Address
	impls   map[libpf.Address]func(args []uint64) uint64
	calls   []string
}

func newFakeMachine(ptrSize int) *fakeMachine {
	return &fakeMachine{
		ptrSize: ptrSize,
		mem:     make([]byte, 256),
		funcs:   map[string]libpf.Address{},
		impls:   map[libpf.Address]func([]uint64) uint64{},
	}
}

func (m *fakeMachine) define(name string, addr libpf.Address, impl func([]uint64) uint64) {
	m.funcs[name] = addr
	m.impls[addr] = func(args []uint64) uint64 {
		m.calls = append(m.calls, name)
		return impl(args)
	}
}

func (m *fakeMachine) PtrSize() int                { return m.ptrSize }
func (m *fakeMachine) ByteOrder() binary.ByteOrder { return binary.LittleEndian }

func (m *fakeMachine) ResolveFunction(name string) (libpf.Address, error) {
	if a, ok := m.funcs[name]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("no function %s", name)
}

func (m *fakeMachine) Call(fn libpf.Address, args ...uint64) (uint64, error) {
	impl, ok := m.impls[fn]
	if !ok {
		return 0, fmt.Errorf("no code at %v", fn)
	}
	return impl(args), nil
}

func (m *fakeMachine) span(addr libpf.Address, n int) ([]byte, error) {
	off := int(addr) - memBase
	if off < 0 || off+n > len(m.mem) {
		return nil, errors.New("fault")
	}
	return m.mem[off : off+n], nil
}

func (m *fakeMachine) ReadMemory(addr libpf.Address, p []byte) error {
	s, err := m.span(addr, len(p))
	if err != nil {
		return err
	}
	copy(p, s)
	return nil
}

func (m *fakeMachine) WriteMemory(addr libpf.Address, p []byte) error {
	s, err := m.span(addr, len(p))
	if err != nil {
		return err
	}
	copy(s, p)
	return nil
}

func TestStructLayout(t *testing.T) {
	b := NewBuilder("layout", Void)
	st := b.Struct("s", I32, Ptr, I32, IPtr)
	assert.Equal(t, []int{0, 8, 16, 24}, []int{
		st.Offset(0, 8), st.Offset(1, 8), st.Offset(2, 8), st.Offset(3, 8)})
	assert.Equal(t, 32, st.Size(8))
	assert.Equal(t, []int{0, 4, 8, 12}, []int{
		st.Offset(0, 4), st.Offset(1, 4), st.Offset(2, 4), st.Offset(3, 4)})
	assert.Equal(t, 16, st.Size(4))
}

// buildLookup stores lookup(key) into slot 1 of a record, and on a NULL
// result calls report() and stores its value into slot 2.
func buildLookup(t *testing.T) *Program {
	b := NewBuilder("lookup", Void)
	rec := b.Struct("record", Ptr, Ptr, IPtr)
	lookup := b.Func("lookup", Ptr, Ptr)
	report := b.Func("report", IPtr)

	entry := b.Block("entry")
	fail := b.Block("fail")
	done := b.Block("done")

	base := b.Const(Ptr, memBase)
	key := entry.Load(Ptr, entry.FieldPtr(rec, base, 0))
	res := entry.Call(lookup, key)
	entry.Store(entry.FieldPtr(rec, base, 1), res)
	entry.CondBr(entry.IsNull(res), fail, done)

	fail.Store(fail.FieldPtr(rec, base, 2), fail.Call(report))
	fail.Br(done)

	done.RetVoid()

	p, err := b.Build()
	require.NoError(t, err)
	return p
}

func TestEvalPaths(t *testing.T) {
	for _, ptrSize := range []int{4, 8} {
		t.Run(fmt.Sprintf("ptr%d", ptrSize), func(t *testing.T) {
			p := buildLookup(t)

			m := newFakeMachine(ptrSize)
			m.define("lookup", 0x100, func(args []uint64) uint64 {
				if args[0] == 7 {
					return 0x4242
				}
				return 0
			})
			m.define("report", 0x200, func([]uint64) uint64 { return 99 })

			m.mem[0] = 7
			_, err := Eval(m, p)
			require.True(t, IsNoResult(err), "%v", err)
			assert.Equal(t, []string{"lookup"}, m.calls)
			assert.Equal(t, byte(0x42), m.mem[ptrSize])

			m.calls = nil
			m.mem[0] = 8
			_, err = Eval(m, p)
			require.True(t, IsNoResult(err), "%v", err)
			assert.Equal(t, []string{"lookup", "report"}, m.calls)
			assert.Equal(t, byte(99), m.mem[2*ptrSize])
		})
	}
}

func TestEvalResult(t *testing.T) {
	b := NewBuilder("at", IPtr)
	fn := b.FuncAt(0x300, IPtr, IPtr, I32)
	entry := b.Block("entry")
	entry.Ret(entry.Call(fn, b.Const(IPtr, 40), b.Const(I32, 2)))
	p, err := b.Build()
	require.NoError(t, err)

	m := newFakeMachine(8)
	m.impls[0x300] = func(args []uint64) uint64 { return args[0] + args[1] }
	v, err := Eval(m, p)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}

func TestEvalErrors(t *testing.T) {
	m := newFakeMachine(8)

	b := NewBuilder("missing", Void)
	fn := b.Func("nowhere", Void)
	entry := b.Block("entry")
	entry.Call(fn)
	entry.RetVoid()
	p, err := b.Build()
	require.NoError(t, err)
	_, err = Eval(m, p)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, StatusSetupError, e.Status)

	b = NewBuilder("fault", IPtr)
	entry = b.Block("entry")
	entry.Ret(entry.Load(IPtr, b.Const(Ptr, 8)))
	p, err = b.Build()
	require.NoError(t, err)
	_, err = Eval(m, p)
	require.ErrorAs(t, err, &e)
	assert.Equal(t, StatusExecutionFailed, e.Status)
	assert.False(t, IsNoResult(err))
}

func TestBuildValidation(t *testing.T) {
	tests := map[string]func(b *Builder){
		"no blocks": func(*Builder) {},
		"unterminated": func(b *Builder) {
			b.Block("entry")
		},
		"backward branch": func(b *Builder) {
			first := b.Block("first")
			second := b.Block("second")
			first.Br(second)
			second.Br(first)
		},
		"self branch": func(b *Builder) {
			first := b.Block("first")
			first.Br(first)
		},
		"after terminator": func(b *Builder) {
			entry := b.Block("entry")
			entry.RetVoid()
			entry.RetVoid()
		},
		"argument count": func(b *Builder) {
			fn := b.Func("f", Void, Ptr)
			entry := b.Block("entry")
			entry.Call(fn)
			entry.RetVoid()
		},
		"argument type": func(b *Builder) {
			fn := b.Func("f", Void, Ptr)
			entry := b.Block("entry")
			entry.Call(fn, b.Const(I32, 1))
			entry.RetVoid()
		},
		"load through integer": func(b *Builder) {
			entry := b.Block("entry")
			entry.Load(I32, b.Const(I32, 1))
			entry.RetVoid()
		},
		"void result used": func(b *Builder) {
			fn := b.Func("f", Void)
			g := b.Func("g", Void, Ptr)
			entry := b.Block("entry")
			v := entry.Call(fn)
			entry.Call(g, Value{id: v.id, typ: Ptr})
			entry.RetVoid()
		},
		"value not dominating": func(b *Builder) {
			fn := b.Func("f", Ptr)
			entry := b.Block("entry")
			left := b.Block("left")
			join := b.Block("join")
			entry.CondBr(b.Const(I32, 1), left, join)
			v := left.Call(fn)
			left.Br(join)
			join.IsNull(v)
			join.RetVoid()
		},
		"void return value": func(b *Builder) {
			entry := b.Block("entry")
			entry.Ret(b.Const(I32, 1))
		},
		"foreign function": func(b *Builder) {
			other := NewBuilder("other", Void)
			fn := other.Func("f", Void)
			entry := b.Block("entry")
			entry.Call(fn)
			entry.RetVoid()
		},
	}
	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			b := NewBuilder(name, Void)
			build(b)
			_, err := b.Build()
			require.Error(t, err)
		})
	}
}

func TestDominatedUse(t *testing.T) {
	b := NewBuilder("diamond", Void)
	fn := b.Func("f", Ptr)
	entry := b.Block("entry")
	left := b.Block("left")
	join := b.Block("join")
	v := entry.Call(fn)
	entry.CondBr(entry.IsNull(v), left, join)
	left.Br(join)
	join.IsNull(v)
	join.RetVoid()
	_, err := b.Build()
	require.NoError(t, err)
}
