package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable representation of one function's
// instruction stream.
func Disassemble(fn *Function) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("== %s(%s)", fn.Name, strings.Join(fn.Params, ", ")))
	if fn.ReturnType != "" {
		sb.WriteString(" -> " + fn.ReturnType)
	}
	sb.WriteString(fmt.Sprintf(" [locals=%d] ==\n", fn.NumLocals))

	for i, in := range fn.Code {
		sb.WriteString(fmt.Sprintf("%04d %s\n", i, in.String()))
	}

	return sb.String()
}

// DisassembleProgram disassembles every function in declaration order.
func DisassembleProgram(p *Program) string {
	var sb strings.Builder
	for _, fn := range p.Functions {
		sb.WriteString(Disassemble(fn))
		sb.WriteString("\n")
	}
	if len(p.Apps) > 0 {
		sb.WriteString(fmt.Sprintf("apps: %s\n", strings.Join(p.Apps, ", ")))
	}
	return sb.String()
}
