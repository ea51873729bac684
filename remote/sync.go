// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remote // import "github.com/cls-tools/consolelogsaver/remote"

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ianlancetaylor/demangle"
	log "github.com/sirupsen/logrus"

	"github.com/cls-tools/consolelogsaver/libpf"
)

// SyncPoint selects the function whose entry is used as the safe point.
type SyncPoint struct {
	// ModuleFilter is a substring of the module file name.
	ModuleFilter string
	// SymbolPattern is a substring of the demangled symbol name.
	SymbolPattern string
}

// DefaultSyncPoint is a function the Unity editor runs once per frame on
// its main thread.
var DefaultSyncPoint = SyncPoint{
	ModuleFilter:  "Unity",
	SymbolPattern: "SceneTracker::Update(",
}

func (sp SyncPoint) withDefaults() SyncPoint {
	if sp.ModuleFilter == "" {
		sp.ModuleFilter = DefaultSyncPoint.ModuleFilter
	}
	if sp.SymbolPattern == "" {
		sp.SymbolPattern = DefaultSyncPoint.SymbolPattern
	}
	return sp
}

// literalHint returns the longest identifier in pattern. Mangled names carry
// identifiers verbatim, so symbols without it can skip demangling.
func literalHint(pattern string) string {
	var best string
	for _, f := range strings.FieldsFunc(pattern, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if len(f) > len(best) {
			best = f
		}
	}
	return best
}

// MatchSymbol reports whether the possibly mangled name matches pattern
// after demangling.
func MatchSymbol(name, pattern string) bool {
	if hint := literalHint(pattern); hint != "" && !strings.Contains(name, hint) {
		return false
	}
	if strings.Contains(name, pattern) {
		return true
	}
	return strings.Contains(demangle.Filter(name), pattern)
}

// FindSyncPoint scans the modules selected by sp for the sync point symbol.
func FindSyncPoint(t Target, sp SyncPoint) (libpf.Address, error) {
	sp = sp.withDefaults()
	mods, err := t.Modules()
	if err != nil {
		return 0, err
	}
	for _, m := range mods {
		if !strings.Contains(m.Name(), sp.ModuleFilter) {
			continue
		}
		var found *Symbol
		err := t.VisitSymbols(m, func(sym Symbol) bool {
			if sym.Address != 0 && MatchSymbol(sym.Name, sp.SymbolPattern) {
				found = &sym
				return false
			}
			return true
		})
		if err != nil {
			log.Debugf("Skipping symbols of %s: %v", m.Path, err)
			continue
		}
		if found != nil {
			log.Debugf("Sync point %s at %v in %s", found.Name, found.Address, m.Path)
			return found.Address, nil
		}
	}
	return 0, fmt.Errorf("no symbol matching %q in modules matching %q",
		sp.SymbolPattern, sp.ModuleFilter)
}

// RunToSyncPoint locates the sync point, breaks there once and leaves the
// target stopped at it.
func (s *Session) RunToSyncPoint(ctx context.Context, sp SyncPoint) error {
	if err := s.checkContext(ctx, AtSyncPoint); err != nil {
		return err
	}
	addr, err := FindSyncPoint(s.target, sp)
	if err != nil {
		return s.fail(AtSyncPoint, ErrSyncPointNotFound, err)
	}
	if err := s.target.RunTo(ctx, addr); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.fail(AtSyncPoint, ctxErr, err)
		}
		return s.fail(AtSyncPoint, ErrRemoteCallFailed, fmt.Errorf("run to %v: %w", addr, err))
	}
	s.advance(AtSyncPoint)
	return nil
}
