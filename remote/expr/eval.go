// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package expr // import "github.com/cls-tools/consolelogsaver/remote/expr"

import (
	"fmt"

	"github.com/cls-tools/consolelogsaver/libpf"
)

func setupErr(format string, args ...any) error {
	return &Error{Status: StatusSetupError, Err: fmt.Errorf(format, args...)}
}

func execErr(format string, args ...any) error {
	return &Error{Status: StatusExecutionFailed, Err: fmt.Errorf(format, args...)}
}

func truncate(t Type, v uint64, ptrSize int) uint64 {
	switch {
	case t == I32:
		return uint64(uint32(v))
	case ptrSize == 4:
		return uint64(uint32(v))
	default:
		return v
	}
}

// Eval runs p against m. A program returning void completes with an *Error
// of StatusNoResult, any other failure is an *Error wrapping the cause.
func Eval(m Machine, p *Program) (uint64, error) {
	ptrSize := m.PtrSize()
	order := m.ByteOrder()
	if ptrSize != 4 && ptrSize != 8 {
		return 0, setupErr("unsupported pointer size %d", ptrSize)
	}

	addrs := make(map[*Function]libpf.Address, len(p.funcs))
	for _, f := range p.funcs {
		if !f.extern {
			addrs[f] = f.Addr
			continue
		}
		addr, err := m.ResolveFunction(f.Name)
		if err != nil {
			return 0, setupErr("resolve %s: %w", f.Name, err)
		}
		addrs[f] = addr
	}

	regs := make([]uint64, p.nvalues)
	for _, c := range p.consts {
		regs[c.result] = truncate(c.typ, c.imm, ptrSize)
	}

	buf := make([]byte, 8)
	blk := p.blocks[0]
	for {
		var next *Block
		for _, in := range blk.instrs {
			switch in.op {
			case opLoad:
				sz := in.typ.size(ptrSize)
				addr := libpf.Address(regs[in.args[0]])
				if err := m.ReadMemory(addr, buf[:sz]); err != nil {
					return 0, execErr("%s: load from %v: %w", blk.Name, addr, err)
				}
				if sz == 4 {
					regs[in.result] = uint64(order.Uint32(buf))
				} else {
					regs[in.result] = order.Uint64(buf)
				}
			case opStore:
				sz := in.typ.size(ptrSize)
				addr := libpf.Address(regs[in.args[0]])
				if sz == 4 {
					order.PutUint32(buf, uint32(regs[in.args[1]]))
				} else {
					order.PutUint64(buf, regs[in.args[1]])
				}
				if err := m.WriteMemory(addr, buf[:sz]); err != nil {
					return 0, execErr("%s: store to %v: %w", blk.Name, addr, err)
				}
			case opFieldPtr:
				off := in.st.Offset(in.field, ptrSize)
				regs[in.result] = truncate(Ptr, regs[in.args[0]]+uint64(off), ptrSize)
			case opCall:
				args := make([]uint64, len(in.args))
				for i, a := range in.args {
					args[i] = regs[a]
				}
				res, err := m.Call(addrs[in.fn], args...)
				if err != nil {
					return 0, execErr("%s: call %s: %w", blk.Name, in.fn.Name, err)
				}
				regs[in.result] = truncate(in.typ, res, ptrSize)
			case opIsNull:
				if regs[in.args[0]] == 0 {
					regs[in.result] = 1
				} else {
					regs[in.result] = 0
				}
			case opBr:
				next = in.target[0]
			case opCondBr:
				if regs[in.args[0]] != 0 {
					next = in.target[0]
				} else {
					next = in.target[1]
				}
			case opRet:
				if p.Result == Void {
					return 0, &Error{Status: StatusNoResult}
				}
				return regs[in.args[0]], nil
			}
		}
		if next == nil {
			return 0, execErr("block %s fell through", blk.Name)
		}
		blk = next
	}
}
