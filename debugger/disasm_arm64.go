// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package debugger // import "github.com/cls-tools/consolelogsaver/debugger"

import "golang.org/x/arch/arm64/arm64asm"

const maxInstructionLen = 4

// disassemble renders the first instruction of code in GNU syntax.
func disassemble(code []byte) string {
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return arm64asm.GNUSyntax(inst)
}
