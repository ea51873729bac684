// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package debugger // import "github.com/cls-tools/consolelogsaver/debugger"

import "golang.org/x/arch/x86/x86asm"

// maxInstructionLen is the longest x86 instruction.
const maxInstructionLen = 15

// disassemble renders the first instruction of code in GNU syntax.
func disassemble(code []byte) string {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return x86asm.GNUSyntax(inst, 0, nil)
}
