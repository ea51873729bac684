// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libpf // import "github.com/cls-tools/consolelogsaver/libpf"

import "strconv"

// PID represent Unix Process ID (pid_t)
type PID uint32

// ParsePID parses a decimal process identifier.
func ParsePID(s string) (PID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return PID(v), nil
}

func (p PID) String() string {
	return strconv.FormatUint(uint64(p), 10)
}
