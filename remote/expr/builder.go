// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package expr // import "github.com/cls-tools/consolelogsaver/remote/expr"

import (
	"fmt"

	"github.com/cls-tools/consolelogsaver/libpf"
)

// Value is the result of an instruction or a constant.
type Value struct {
	id  int
	typ Type
}

// Type returns the type of the value.
func (v Value) Type() Type {
	return v.typ
}

// StructType describes a C struct made of scalar fields with natural
// alignment.
type StructType struct {
	Name   string
	Fields []Type
}

// Offset returns the byte offset of field i for the given pointer width.
func (s *StructType) Offset(i, ptrSize int) int {
	off := 0
	for j, f := range s.Fields {
		sz := f.size(ptrSize)
		off = (off + sz - 1) &^ (sz - 1)
		if j == i {
			return off
		}
		off += sz
	}
	return off
}

// Size returns the size of the struct including tail padding.
func (s *StructType) Size(ptrSize int) int {
	end := s.Offset(len(s.Fields), ptrSize)
	align := 1
	for _, f := range s.Fields {
		align = max(align, f.size(ptrSize))
	}
	return (end + align - 1) &^ (align - 1)
}

// Function is a callable declared in a program.
type Function struct {
	Name    string
	Addr    libpf.Address
	Result  Type
	Params  []Type
	extern  bool
	builder *Builder
}

type opcode uint8

const (
	opConst opcode = iota
	opLoad
	opStore
	opFieldPtr
	opCall
	opIsNull
	opBr
	opCondBr
	opRet
)

type instr struct {
	op     opcode
	result int
	typ    Type
	args   []int
	imm    uint64
	st     *StructType
	field  int
	fn     *Function
	target [2]*Block
}

// Block is a basic block. It must end with exactly one of Br, CondBr or Ret.
type Block struct {
	Name       string
	index      int
	builder    *Builder
	instrs     []instr
	terminated bool
}

// Builder assembles a program.
type Builder struct {
	name    string
	result  Type
	blocks  []*Block
	funcs   []*Function
	nvalues int
	// defined maps a value id to the index of its defining block. Constants
	// are defined in block -1 and are visible everywhere.
	defined []int
	consts  []instr
	err     error
}

// NewBuilder starts a program returning a value of type result.
func NewBuilder(name string, result Type) *Builder {
	return &Builder{name: name, result: result}
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("%s: "+format, append([]any{b.name}, args...)...)
	}
}

func (b *Builder) newValue(t Type, block int) Value {
	id := b.nvalues
	b.nvalues++
	b.defined = append(b.defined, block)
	return Value{id: id, typ: t}
}

// Func declares an external function resolved by name at evaluation time.
func (b *Builder) Func(name string, result Type, params ...Type) *Function {
	f := &Function{Name: name, Result: result, Params: params, extern: true, builder: b}
	b.funcs = append(b.funcs, f)
	return f
}

// FuncAt declares a function at a known address.
func (b *Builder) FuncAt(addr libpf.Address, result Type, params ...Type) *Function {
	f := &Function{Name: addr.String(), Addr: addr, Result: result, Params: params, builder: b}
	b.funcs = append(b.funcs, f)
	return f
}

// Struct declares a struct type.
func (b *Builder) Struct(name string, fields ...Type) *StructType {
	for i, f := range fields {
		if f == Void {
			b.fail("struct %s: field %d is void", name, i)
		}
	}
	return &StructType{Name: name, Fields: fields}
}

// Const returns a constant of type t.
func (b *Builder) Const(t Type, v uint64) Value {
	if t == Void {
		b.fail("void constant")
	}
	val := b.newValue(t, -1)
	b.consts = append(b.consts, instr{op: opConst, result: val.id, typ: t, imm: v})
	return val
}

// Null returns the null pointer.
func (b *Builder) Null() Value {
	return b.Const(Ptr, 0)
}

// Block appends a new basic block. The first block is the entry.
func (b *Builder) Block(name string) *Block {
	blk := &Block{Name: name, index: len(b.blocks), builder: b}
	b.blocks = append(b.blocks, blk)
	return blk
}

func (blk *Block) emit(in instr) {
	b := blk.builder
	if blk.terminated {
		b.fail("block %s: instruction after terminator", blk.Name)
		return
	}
	for _, a := range in.args {
		if a < 0 || a >= len(b.defined) {
			b.fail("block %s: unknown value %d", blk.Name, a)
		}
	}
	blk.instrs = append(blk.instrs, in)
}

func (blk *Block) check(v Value, want ...Type) {
	for _, t := range want {
		if v.typ == t {
			return
		}
	}
	blk.builder.fail("block %s: value %d has type %v, want %v", blk.Name, v.id, v.typ, want)
}

// Load reads a value of type t from ptr.
func (blk *Block) Load(t Type, ptr Value) Value {
	blk.check(ptr, Ptr)
	if t == Void {
		blk.builder.fail("block %s: load of void", blk.Name)
	}
	v := blk.builder.newValue(t, blk.index)
	blk.emit(instr{op: opLoad, result: v.id, typ: t, args: []int{ptr.id}})
	return v
}

// Store writes v to ptr.
func (blk *Block) Store(ptr, v Value) {
	blk.check(ptr, Ptr)
	blk.emit(instr{op: opStore, result: -1, typ: v.typ, args: []int{ptr.id, v.id}})
}

// FieldPtr returns the address of field index of the struct at base.
func (blk *Block) FieldPtr(st *StructType, base Value, index int) Value {
	blk.check(base, Ptr)
	if index < 0 || index >= len(st.Fields) {
		blk.builder.fail("block %s: struct %s has no field %d", blk.Name, st.Name, index)
	}
	v := blk.builder.newValue(Ptr, blk.index)
	blk.emit(instr{op: opFieldPtr, result: v.id, typ: Ptr, args: []int{base.id}, st: st, field: index})
	return v
}

// Call calls fn. For void functions the returned Value must not be used.
func (blk *Block) Call(fn *Function, args ...Value) Value {
	b := blk.builder
	if fn.builder != b {
		b.fail("block %s: function %s belongs to another program", blk.Name, fn.Name)
	}
	if len(args) != len(fn.Params) {
		b.fail("block %s: %s takes %d arguments, got %d",
			blk.Name, fn.Name, len(fn.Params), len(args))
	}
	ids := make([]int, len(args))
	for i, a := range args {
		ids[i] = a.id
		if i < len(fn.Params) && !assignable(fn.Params[i], a.typ) {
			b.fail("block %s: %s argument %d has type %v, want %v",
				blk.Name, fn.Name, i, a.typ, fn.Params[i])
		}
	}
	v := b.newValue(fn.Result, blk.index)
	blk.emit(instr{op: opCall, result: v.id, typ: fn.Result, args: ids, fn: fn})
	return v
}

// IsNull yields I32 1 when v is zero and 0 otherwise.
func (blk *Block) IsNull(v Value) Value {
	blk.check(v, Ptr, IPtr, I32)
	r := blk.builder.newValue(I32, blk.index)
	blk.emit(instr{op: opIsNull, result: r.id, typ: I32, args: []int{v.id}})
	return r
}

// Br jumps to target.
func (blk *Block) Br(target *Block) {
	blk.emit(instr{op: opBr, result: -1, target: [2]*Block{target}})
	blk.terminated = true
}

// CondBr jumps to then when cond is non-zero and to els otherwise.
func (blk *Block) CondBr(cond Value, then, els *Block) {
	blk.check(cond, I32, IPtr, Ptr)
	blk.emit(instr{op: opCondBr, result: -1, args: []int{cond.id}, target: [2]*Block{then, els}})
	blk.terminated = true
}

// Ret returns v from the program.
func (blk *Block) Ret(v Value) {
	if blk.builder.result == Void {
		blk.builder.fail("block %s: value returned from void program", blk.Name)
	}
	blk.check(v, blk.builder.result)
	blk.emit(instr{op: opRet, result: -1, args: []int{v.id}})
	blk.terminated = true
}

// RetVoid ends a void program.
func (blk *Block) RetVoid() {
	if blk.builder.result != Void {
		blk.builder.fail("block %s: void return from %v program", blk.Name, blk.builder.result)
	}
	blk.emit(instr{op: opRet, result: -1})
	blk.terminated = true
}

func assignable(param, arg Type) bool {
	if param == arg {
		return true
	}
	// Pointers and pointer sized integers convert freely.
	return (param == Ptr && arg == IPtr) || (param == IPtr && arg == Ptr)
}

// Program is a validated instruction sequence.
type Program struct {
	Name    string
	Result  Type
	blocks  []*Block
	funcs   []*Function
	consts  []instr
	nvalues int
}

// Build validates the program: every block must be terminated, branches
// must point forward into this program, void call results must not be used
// and every value must be defined on all paths leading to its use.
func (b *Builder) Build() (*Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.blocks) == 0 {
		return nil, fmt.Errorf("%s: program has no blocks", b.name)
	}
	voidValues := map[int]bool{}
	for _, blk := range b.blocks {
		if !blk.terminated {
			return nil, fmt.Errorf("%s: block %s is not terminated", b.name, blk.Name)
		}
		for _, in := range blk.instrs {
			if in.op == opCall && in.typ == Void {
				voidValues[in.result] = true
			}
			for _, tgt := range in.target {
				if tgt == nil {
					continue
				}
				if tgt.builder != b {
					return nil, fmt.Errorf("%s: block %s branches to a foreign block", b.name, blk.Name)
				}
				if tgt.index <= blk.index {
					return nil, fmt.Errorf("%s: block %s branches backwards to %s",
						b.name, blk.Name, tgt.Name)
				}
			}
		}
	}

	doms := b.dominators()
	for _, blk := range b.blocks {
		for _, in := range blk.instrs {
			for _, a := range in.args {
				if voidValues[a] {
					return nil, fmt.Errorf("%s: block %s uses the result of a void call",
						b.name, blk.Name)
				}
				def := b.defined[a]
				if _, ok := doms[blk.index][def]; def >= 0 && !ok {
					return nil, fmt.Errorf("%s: block %s uses value %d not defined on all paths",
						b.name, blk.Name, a)
				}
			}
		}
	}

	return &Program{
		Name:    b.name,
		Result:  b.result,
		blocks:  b.blocks,
		funcs:   b.funcs,
		consts:  b.consts,
		nvalues: b.nvalues,
	}, nil
}

// dominators computes, for each block, the set of blocks that dominate it.
// Blocks only branch forward, so a single pass in index order suffices.
func (b *Builder) dominators() []libpf.Set[int] {
	preds := make([][]int, len(b.blocks))
	for _, blk := range b.blocks {
		for _, in := range blk.instrs {
			for _, tgt := range in.target {
				if tgt != nil {
					preds[tgt.index] = append(preds[tgt.index], blk.index)
				}
			}
		}
	}
	doms := make([]libpf.Set[int], len(b.blocks))
	for i := range b.blocks {
		set := libpf.Set[int]{}
		if i > 0 && len(preds[i]) > 0 {
			for d := range doms[preds[i][0]] {
				inAll := true
				for _, p := range preds[i][1:] {
					if _, ok := doms[p][d]; !ok {
						inAll = false
						break
					}
				}
				if inAll {
					set[d] = libpf.Void{}
				}
			}
		}
		set[i] = libpf.Void{}
		doms[i] = set
	}
	return doms
}
