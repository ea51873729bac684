// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remote // import "github.com/cls-tools/consolelogsaver/remote"

import (
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/cls-tools/consolelogsaver/libpf"
)

// samePath compares module paths the way the target may report them.
func samePath(a, b string) bool {
	clean := func(p string) string {
		p = strings.ReplaceAll(p, "\\", "/")
		if r, err := filepath.EvalSymlinks(p); err == nil {
			p = r
		}
		return filepath.Clean(p)
	}
	return clean(a) == clean(b)
}

func (s *Session) injectDirect(path string) (*ModuleHandle, error) {
	tok, err := s.target.LoadImage(path)
	if err != nil {
		return nil, &InjectionError{Missing: "image " + path, Diagnostic: err.Error()}
	}
	h := &ModuleHandle{Strategy: StrategyDirect, Token: uint64(tok), Path: path}

	unload := func(cause *InjectionError) error {
		if uerr := s.target.UnloadImage(tok); uerr != nil {
			log.Warnf("PID %d: failed to unload %s: %v", s.PID, path, uerr)
		}
		return cause
	}

	mods, err := s.target.Modules()
	if err != nil {
		return nil, unload(&InjectionError{Missing: "module " + path, Diagnostic: err.Error()})
	}
	var mod *Module
	for i := range mods {
		if samePath(mods[i].Path, path) {
			mod = &mods[i]
			break
		}
	}
	if mod == nil {
		return nil, unload(&InjectionError{Missing: "module " + path,
			Diagnostic: "loaded image is not listed among the target modules"})
	}

	addrs := [3]*libpf.Address{&h.Save, &h.Free, &h.Location}
	for i, name := range exportNames {
		addr, err := s.target.LookupSymbol(*mod, name)
		if err == nil && addr == 0 {
			err = fmt.Errorf("symbol has no address")
		}
		if err != nil {
			return nil, unload(&InjectionError{Missing: name, Diagnostic: err.Error()})
		}
		*addrs[i] = addr
	}
	return h, nil
}
