// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// package pfelf implements functions for processing of ELF files and extracting data from
// them. It wraps debug/elf with the few queries needed to locate functions inside a
// running process: symbol tables, the load segment layout and the ABI of the file.

// The Executable and Linking Format (ELF) specification is available at:
//   https://refspecs.linuxfoundation.org/elf/elf.pdf

package pfelf // import "github.com/cls-tools/consolelogsaver/libpf/pfelf"

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cls-tools/consolelogsaver/libpf"
)

// maxSymbols bounds the number of symbols kept per table. Unity editor builds
// carry several hundred thousand.
const maxSymbols = 4 * 1024 * 1024

// ErrSymbolNotFound is returned when requested symbol was not found
var ErrSymbolNotFound = errors.New("symbol not found")

// ErrNotELF is returned when the file is not an ELF
var ErrNotELF = errors.New("not an ELF file")

// File represents an open ELF file
type File struct {
	elf *elf.File

	// Progs contains the PT_LOAD program headers
	Progs []elf.ProgHeader

	// Fields to mimic elf.debug
	Type    elf.Type
	Machine elf.Machine
	Entry   uint64

	dynsym *libpf.SymbolMap
	symtab *libpf.SymbolMap
}

var _ libpf.SymbolFinder = &File{}

// Open opens the named file as ELF.
func Open(name string) (*File, error) {
	ef, err := elf.Open(name)
	if err != nil {
		var fe *elf.FormatError
		if errors.As(err, &fe) {
			return nil, fmt.Errorf("%s: %w: %v", name, ErrNotELF, err)
		}
		return nil, err
	}
	return newFile(ef), nil
}

// NewFile creates a new ELF file object that borrows the given reader.
func NewFile(r io.ReaderAt) (*File, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}
	return newFile(ef), nil
}

func newFile(ef *elf.File) *File {
	f := &File{
		elf:     ef,
		Type:    ef.Type,
		Machine: ef.Machine,
		Entry:   ef.Entry,
	}
	for _, p := range ef.Progs {
		if p.Type == elf.PT_LOAD {
			f.Progs = append(f.Progs, p.ProgHeader)
		}
	}
	return f
}

// Close closes the File.
func (f *File) Close() error {
	return f.elf.Close()
}

// PtrSize returns the pointer width of the ELF class in bytes.
func (f *File) PtrSize() int {
	if f.elf.Class == elf.ELFCLASS32 {
		return 4
	}
	return 8
}

// ByteOrder returns the data encoding of the file.
func (f *File) ByteOrder() binary.ByteOrder {
	return f.elf.ByteOrder
}

func (f *File) loadSymbolTable(dynamic bool) (*libpf.SymbolMap, error) {
	var syms []elf.Symbol
	var err error
	if dynamic {
		syms, err = f.elf.DynamicSymbols()
	} else {
		syms, err = f.elf.Symbols()
	}
	if err != nil {
		return nil, err
	}
	if len(syms) > maxSymbols {
		syms = syms[:maxSymbols]
	}

	symMap := libpf.NewSymbolMap(len(syms))
	for _, sym := range syms {
		if sym.Section == elf.SHN_UNDEF || sym.Name == "" {
			continue
		}
		switch elf.ST_TYPE(sym.Info) {
		case elf.STT_FUNC, elf.STT_OBJECT, elf.STT_NOTYPE, elf.SymType(10): // 10 = STT_GNU_IFUNC
		default:
			continue
		}
		symMap.Add(libpf.Symbol{
			Name:    libpf.SymbolName(sym.Name),
			Address: libpf.SymbolValue(sym.Value),
			Size:    sym.Size,
		})
	}
	symMap.Finalize()
	return symMap, nil
}

// ReadSymbols reads the full symbol table from the ELF
func (f *File) ReadSymbols() (*libpf.SymbolMap, error) {
	if f.symtab == nil {
		m, err := f.loadSymbolTable(false)
		if err != nil {
			return nil, err
		}
		f.symtab = m
	}
	return f.symtab, nil
}

// ReadDynamicSymbols reads the full dynamic symbol table from the ELF
func (f *File) ReadDynamicSymbols() (*libpf.SymbolMap, error) {
	if f.dynsym == nil {
		m, err := f.loadSymbolTable(true)
		if err != nil {
			return nil, err
		}
		f.dynsym = m
	}
	return f.dynsym, nil
}

// LookupSymbol searches the dynamic symbols first and falls back to the full
// symbol table.
func (f *File) LookupSymbol(symbol libpf.SymbolName) (*libpf.Symbol, error) {
	if m, err := f.ReadDynamicSymbols(); err == nil {
		if sym, err := m.LookupSymbol(symbol); err == nil {
			return sym, nil
		}
	}
	if m, err := f.ReadSymbols(); err == nil {
		if sym, err := m.LookupSymbol(symbol); err == nil {
			return sym, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
}

// LookupSymbolAddress returns the address of a symbol.
func (f *File) LookupSymbolAddress(symbol libpf.SymbolName) (libpf.SymbolValue, error) {
	sym, err := f.LookupSymbol(symbol)
	if err != nil {
		return libpf.SymbolValueInvalid, err
	}
	return sym.Address, nil
}

// VisitSymbols calls cb for every defined symbol of both tables. Tables that
// are missing are skipped.
func (f *File) VisitSymbols(cb func(libpf.Symbol)) {
	if m, err := f.ReadDynamicSymbols(); err == nil {
		m.VisitAll(cb)
	}
	if m, err := f.ReadSymbols(); err == nil {
		m.VisitAll(cb)
	}
}
