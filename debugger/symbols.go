// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package debugger // import "github.com/cls-tools/consolelogsaver/debugger"

import (
	"fmt"

	"github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/libpf/pfelf"
)

// symbolCacheSize is the number of ELF images whose symbols are kept.
const symbolCacheSize = 64

// fileKey identifies a mapped file independent of the path it is reached by.
type fileKey struct {
	device uint64
	inode  uint64
	path   string
}

func hashFileKey(k fileKey) uint32 {
	return uint32(xxh3.HashString(k.path) ^ k.inode ^ k.device<<32)
}

// image is the cached symbol information of one ELF file.
type image struct {
	mapper pfelf.AddressMapper
	dynsym *libpf.SymbolMap
	symtab *libpf.SymbolMap
}

func (im *image) lookup(name string) (libpf.SymbolValue, bool) {
	for _, m := range []*libpf.SymbolMap{im.dynsym, im.symtab} {
		if m == nil {
			continue
		}
		if v, err := m.LookupSymbolAddress(libpf.SymbolName(name)); err == nil {
			return v, true
		}
	}
	return 0, false
}

// visit calls cb for all symbols until it returns false.
func (im *image) visit(cb func(libpf.Symbol) bool) {
	stopped := false
	for _, m := range []*libpf.SymbolMap{im.dynsym, im.symtab} {
		if m == nil || stopped {
			continue
		}
		m.VisitAll(func(sym libpf.Symbol) {
			if !stopped && !cb(sym) {
				stopped = true
			}
		})
	}
}

// symbolCache loads and caches the symbol tables of mapped ELF files.
type symbolCache struct {
	opener pfelf.ELFOpener
	images *freelru.LRU[fileKey, *image]
}

func newSymbolCache(opener pfelf.ELFOpener) (*symbolCache, error) {
	images, err := freelru.New[fileKey, *image](symbolCacheSize, hashFileKey)
	if err != nil {
		return nil, err
	}
	return &symbolCache{opener: opener, images: images}, nil
}

func (c *symbolCache) get(key fileKey) (*image, error) {
	if im, ok := c.images.Get(key); ok {
		return im, nil
	}
	f, err := c.opener.OpenELF(key.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key.path, err)
	}
	defer f.Close()

	im := &image{mapper: f.GetAddressMapper()}
	// Either table may be missing. Stripped libraries only have .dynsym.
	im.dynsym, _ = f.ReadDynamicSymbols()
	im.symtab, _ = f.ReadSymbols()
	if im.dynsym == nil && im.symtab == nil {
		return nil, fmt.Errorf("%s has no symbol table", key.path)
	}
	c.images.Add(key, im)
	return im, nil
}
