//go:build amd64

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package process // import "github.com/cls-tools/consolelogsaver/process"

// int3
var breakpointInstruction = []byte{0xcc}

// trapPCAdjust is subtracted from the reported PC after a breakpoint trap.
const trapPCAdjust = 1

// redZoneSize is the area below the stack pointer that leaf functions may use
// without adjusting it.
const redZoneSize = 128
