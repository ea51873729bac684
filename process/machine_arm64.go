//go:build arm64

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package process // import "github.com/cls-tools/consolelogsaver/process"

// brk #0
var breakpointInstruction = []byte{0x00, 0x00, 0x20, 0xd4}

const trapPCAdjust = 0

const redZoneSize = 128
