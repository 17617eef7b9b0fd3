package native

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/tools/imports"
)

// EmitAOTPackage renders every compiled function as Go source in a
// standalone `aot` package, suitable for building a self-contained
// executable around the interpreted shim. Each function keeps the raw
// entry signature: argument slots in, one 8-byte integer out. Blocks
// become labels and terminators become gotos, so the emitted code is a
// direct transliteration of the block graph.
func EmitAOTPackage(cp *CompiledProgram) ([]byte, error) {
	fns := cp.Symbols()
	sort.Slice(fns, func(i, j int) bool { return fns[i].Symbol < fns[j].Symbol })

	var sb strings.Builder
	sb.WriteString("// Code generated by the Vela AOT emitter. DO NOT EDIT.\n\n")
	sb.WriteString("package aot\n\n")
	sb.WriteString("// Entry describes one ahead-of-time compiled function.\n")
	sb.WriteString("type Entry struct {\n")
	sb.WriteString("\tFn    func(args []int64) int64\n")
	sb.WriteString("\tArity int\n")
	sb.WriteString("\tBool  bool // result decodes as Bool rather than Int\n")
	sb.WriteString("}\n\n")

	sb.WriteString("var Entries = map[string]Entry{\n")
	for _, c := range fns {
		fmt.Fprintf(&sb, "\t%q: {Fn: %s, Arity: %d, Bool: %v},\n", c.Name, c.Symbol, c.Arity, c.RetKind == RetBool)
	}
	sb.WriteString("}\n\n")

	sb.WriteString("func boolBit(v bool) int64 {\n\tif v {\n\t\treturn 1\n\t}\n\treturn 0\n}\n\n")

	for _, c := range fns {
		emitFunction(&sb, c)
		sb.WriteString("\n")
	}

	src := []byte(sb.String())
	formatted, err := imports.Process("aot.go", src, nil)
	if err != nil {
		return nil, fmt.Errorf("formatting emitted package: %w", err)
	}
	return formatted, nil
}

func emitFunction(sb *strings.Builder, c *CompiledFn) {
	m := c.mach
	fmt.Fprintf(sb, "// %s, %d args.\n", c.Name, c.Arity)
	fmt.Fprintf(sb, "func %s(args []int64) int64 {\n", c.Symbol)
	fmt.Fprintf(sb, "\tregs := make([]int64, %d)\n", m.numRegs)
	if m.arity > 0 {
		fmt.Fprintf(sb, "\tcopy(regs, args[:%d])\n", m.arity)
	} else {
		sb.WriteString("\t_ = args\n")
	}
	if !usesRegs(m) {
		sb.WriteString("\t_ = regs\n")
	}

	// Every non-entry block is a goto target by construction; block 0
	// only needs a label when some terminator loops back to it.
	entryTargeted := false
	for _, b := range m.blocks {
		if (b.term.kind == termJump && b.term.to == 0) ||
			(b.term.kind == termBranch && (b.term.to == 0 || b.term.elseTo == 0)) {
			entryTargeted = true
		}
	}

	for bi, b := range m.blocks {
		if bi > 0 || entryTargeted {
			fmt.Fprintf(sb, "b%d:\n", bi)
		}
		for _, in := range b.insts {
			emitInst(sb, in)
		}
		emitTerminator(sb, b.term)
	}
	sb.WriteString("}\n")
}

// usesRegs reports whether any emitted statement reads or writes the
// register file. False only for degenerate shapes like a bare loop;
// without the check the emitted source would declare regs and never
// touch it, which Go rejects.
func usesRegs(m *machineFunc) bool {
	if m.arity > 0 {
		return true
	}
	for _, b := range m.blocks {
		if len(b.insts) > 0 {
			return true
		}
		if b.term.kind == termRet || b.term.kind == termBranch {
			return true
		}
	}
	return false
}

func emitInst(sb *strings.Builder, in inst) {
	switch in.kind {
	case instConst:
		fmt.Fprintf(sb, "\tregs[%d] = %d\n", in.dst, in.imm)
	case instMove:
		fmt.Fprintf(sb, "\tregs[%d] = regs[%d]\n", in.dst, in.a)
	case instNeg:
		fmt.Fprintf(sb, "\tregs[%d] = -regs[%d]\n", in.dst, in.a)
	case instNot:
		fmt.Fprintf(sb, "\tregs[%d] = boolBit(regs[%d] == 0)\n", in.dst, in.a)
	case instAdd:
		fmt.Fprintf(sb, "\tregs[%d] = regs[%d] + regs[%d]\n", in.dst, in.a, in.b)
	case instSub:
		fmt.Fprintf(sb, "\tregs[%d] = regs[%d] - regs[%d]\n", in.dst, in.a, in.b)
	case instMul:
		fmt.Fprintf(sb, "\tregs[%d] = regs[%d] * regs[%d]\n", in.dst, in.a, in.b)
	case instEq:
		fmt.Fprintf(sb, "\tregs[%d] = boolBit(regs[%d] == regs[%d])\n", in.dst, in.a, in.b)
	case instNe:
		fmt.Fprintf(sb, "\tregs[%d] = boolBit(regs[%d] != regs[%d])\n", in.dst, in.a, in.b)
	case instLt:
		fmt.Fprintf(sb, "\tregs[%d] = boolBit(regs[%d] < regs[%d])\n", in.dst, in.a, in.b)
	case instLe:
		fmt.Fprintf(sb, "\tregs[%d] = boolBit(regs[%d] <= regs[%d])\n", in.dst, in.a, in.b)
	case instGt:
		fmt.Fprintf(sb, "\tregs[%d] = boolBit(regs[%d] > regs[%d])\n", in.dst, in.a, in.b)
	case instGe:
		fmt.Fprintf(sb, "\tregs[%d] = boolBit(regs[%d] >= regs[%d])\n", in.dst, in.a, in.b)
	case instAnd:
		fmt.Fprintf(sb, "\tregs[%d] = boolBit(regs[%d] != 0 && regs[%d] != 0)\n", in.dst, in.a, in.b)
	case instOr:
		fmt.Fprintf(sb, "\tregs[%d] = boolBit(regs[%d] != 0 || regs[%d] != 0)\n", in.dst, in.a, in.b)
	}
}

func emitTerminator(sb *strings.Builder, term terminator) {
	switch term.kind {
	case termJump:
		emitGoto(sb, term.to)
	case termBranch:
		fmt.Fprintf(sb, "\tif regs[%d] != 0 {\n\t", term.cond)
		emitGoto(sb, term.to)
		sb.WriteString("\t}\n\t")
		emitGoto(sb, term.elseTo)
	case termRet:
		fmt.Fprintf(sb, "\treturn regs[%d]\n", term.ret)
	case termRetZero:
		sb.WriteString("\treturn 0\n")
	}
}

func emitGoto(sb *strings.Builder, target int) {
	fmt.Fprintf(sb, "\tgoto b%d\n", target)
}
