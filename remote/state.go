// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remote // import "github.com/cls-tools/consolelogsaver/remote"

import "fmt"

// State is the lifecycle state of a Session.
type State uint8

const (
	Created State = iota
	Attached
	AtSyncPoint
	PayloadLoaded
	InvokedSave
	DataRead
	InvokedFree
	PayloadUnloaded
	Detached
	Failed
)

var stateNames = [...]string{
	Created:         "created",
	Attached:        "attached",
	AtSyncPoint:     "at sync point",
	PayloadLoaded:   "payload loaded",
	InvokedSave:     "invoked save",
	DataRead:        "data read",
	InvokedFree:     "invoked free",
	PayloadUnloaded: "payload unloaded",
	Detached:        "detached",
	Failed:          "failed",
}

var stateActions = [...]string{
	Attached:        "attach",
	AtSyncPoint:     "run to sync point",
	PayloadLoaded:   "inject payload",
	InvokedSave:     "invoke save",
	DataRead:        "read transfer buffer",
	InvokedFree:     "invoke free",
	PayloadUnloaded: "unload payload",
	Detached:        "detach",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Action names the phase that moves a session into s.
func (s State) Action() string {
	if int(s) < len(stateActions) && stateActions[s] != "" {
		return stateActions[s]
	}
	return s.String()
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Detached
}
