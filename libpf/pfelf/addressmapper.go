// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// package pfelf implements functions for processing of ELF files and extracting data from
// them. This file provides a cacheable file offset to virtual address mapping.
package pfelf // import "github.com/cls-tools/consolelogsaver/libpf/pfelf"

import (
	"debug/elf"
	"os"

	"github.com/cls-tools/consolelogsaver/libpf"
)

// addressMapperPHDR contains the Program Header fields we need to cache for mapping
// file offsets to virtual addresses.
type addressMapperPHDR struct {
	offset uint64
	vaddr  uint64
	filesz uint64
}

// AddressMapper contains minimal information about PHDRs needed for address mapping
type AddressMapper struct {
	phdrs    []addressMapperPHDR
	pageMask uint64
}

// FileOffsetToVirtualAddress attempts to convert an on-disk file offset to the
// ELF virtual address where it would be mapped by default.
func (am *AddressMapper) FileOffsetToVirtualAddress(fileOffset uint64) (uint64, bool) {
	for _, p := range am.phdrs {
		// The loader maps segments starting at the page containing p_offset,
		// so the mapping offset seen in /proc/PID/maps is page aligned.
		alignedOffset := p.offset &^ am.pageMask

		if fileOffset >= alignedOffset && fileOffset < p.offset+p.filesz {
			return p.vaddr - (p.offset - fileOffset), true
		}
	}
	return 0, false
}

// Bias returns the load bias of a file whose bytes at fileOffset are mapped at
// mappedAddr in a process.
func (am *AddressMapper) Bias(mappedAddr, fileOffset uint64) (libpf.Address, bool) {
	vaddr, ok := am.FileOffsetToVirtualAddress(fileOffset)
	if !ok {
		return 0, false
	}
	return libpf.Address(mappedAddr - vaddr), true
}

// GetAddressMapper returns an address mapper for given ELF File
func (f *File) GetAddressMapper() AddressMapper {
	phdrs := make([]addressMapperPHDR, 0, len(f.Progs))
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		phdrs = append(phdrs, addressMapperPHDR{
			offset: p.Off,
			vaddr:  p.Vaddr,
			filesz: p.Filesz,
		})
	}
	return AddressMapper{phdrs: phdrs, pageMask: uint64(os.Getpagesize()) - 1}
}
