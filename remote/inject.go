// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remote // import "github.com/cls-tools/consolelogsaver/remote"

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/transfer"
)

// Strategy selects how the payload is loaded into the target.
type Strategy uint8

const (
	// StrategyAuto picks StrategyManual on Unix-like hosts and
	// StrategyDirect elsewhere.
	StrategyAuto Strategy = iota
	// StrategyDirect uses the backend's native image loading and symbol
	// lookup.
	StrategyDirect
	// StrategyManual drives the target's dynamic loader with a remote
	// program and reads the results back from target memory.
	StrategyManual
)

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyDirect:
		return "direct"
	case StrategyManual:
		return "manual"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// ParseStrategy parses the String form of a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return StrategyAuto, nil
	case "direct":
		return StrategyDirect, nil
	case "manual":
		return StrategyManual, nil
	}
	return 0, fmt.Errorf("unknown injection strategy %q (want auto, direct or manual)", s)
}

// Resolve replaces StrategyAuto with the strategy for this host.
func (s Strategy) Resolve() Strategy {
	if s != StrategyAuto {
		return s
	}
	if runtime.GOOS == "windows" {
		return StrategyDirect
	}
	return StrategyManual
}

// ModuleHandle is the payload resident in the target.
type ModuleHandle struct {
	// Strategy produced this handle.
	Strategy Strategy
	// Token is the dlopen handle for StrategyManual and the ImageToken for
	// StrategyDirect.
	Token uint64
	// Path is the payload file as loaded.
	Path string

	Save     libpf.Address
	Free     libpf.Address
	Location libpf.Address
}

// exportNames lists the payload exports in record order.
var exportNames = [3]string{
	transfer.SaveSymbol,
	transfer.FreeSymbol,
	transfer.LocationSymbol,
}

// Inject loads the payload at path and resolves its exports.
func (s *Session) Inject(path string, strategy Strategy) (*ModuleHandle, error) {
	strategy = strategy.Resolve()
	log.Debugf("PID %d: injecting %s with %v strategy", s.PID, path, strategy)

	var h *ModuleHandle
	var err error
	switch strategy {
	case StrategyDirect:
		h, err = s.injectDirect(path)
	case StrategyManual:
		h, err = s.injectManual(path)
	default:
		err = fmt.Errorf("%w: unsupported strategy %v", ErrInjection, strategy)
	}
	if err != nil {
		kind := ErrInjection
		var ie *InjectionError
		if !errors.As(err, &ie) {
			for _, k := range []error{ErrRemoteCallFailed, ErrMemoryAccess} {
				if errors.Is(err, k) {
					kind = k
				}
			}
		}
		return nil, s.fail(PayloadLoaded, kind, err)
	}
	log.Debugf("PID %d: payload exports save=%v free=%v location=%v",
		s.PID, h.Save, h.Free, h.Location)
	s.advance(PayloadLoaded)
	return h, nil
}

// Release unloads the payload. Failures are logged and returned but leave
// the session able to detach.
func (s *Session) Release(h *ModuleHandle) error {
	var err error
	switch h.Strategy {
	case StrategyDirect:
		err = s.target.UnloadImage(ImageToken(h.Token))
	case StrategyManual:
		err = s.releaseManual(h)
	}
	if err != nil {
		log.Warnf("PID %d: failed to unload payload %s: %v", s.PID, h.Path, err)
		return err
	}
	if s.state != Failed {
		s.advance(PayloadUnloaded)
	}
	return nil
}
