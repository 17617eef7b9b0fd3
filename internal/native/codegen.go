package native

import (
	"strings"

	"github.com/vela-lang/vela/internal/bytecode"
)

// Compile lowers one eligible function into a machine function. A false
// result means "not compiled", never an error: the generator re-validates
// every block-local invariant and gives up rather than guessing.
func Compile(fn *bytecode.Function, blockStarts []int, retKind ReturnKind) (*CompiledFn, bool) {
	if fn.Arity() > maxNativeArgs {
		return nil, false
	}

	blockIndex := make(map[int]int, len(blockStarts))
	for i, off := range blockStarts {
		blockIndex[off] = i
	}

	g := &codegen{
		fn:      fn,
		starts:  blockStarts,
		index:   blockIndex,
		nextReg: reg(fn.NumLocals), // locals occupy registers 0..NumLocals-1
	}

	blocks := make([]block, len(blockStarts))
	for i := range blockStarts {
		b, ok := g.lowerBlock(i)
		if !ok {
			return nil, false
		}
		blocks[i] = b
	}

	mach := &machineFunc{
		name:    fn.Name,
		symbol:  mangleSymbol(fn.Name),
		arity:   fn.Arity(),
		retKind: retKind,
		numRegs: int(g.nextReg),
		blocks:  blocks,
	}
	return &CompiledFn{
		Name:    fn.Name,
		Symbol:  mach.symbol,
		Arity:   mach.arity,
		RetKind: retKind,
		entry:   mach.finalize(),
		mach:    mach,
	}, true
}

type codegen struct {
	fn      *bytecode.Function
	starts  []int
	index   map[int]int // instruction offset -> block number
	nextReg reg
}

func (g *codegen) fresh() reg {
	r := g.nextReg
	g.nextReg++
	return r
}

// blockRange returns the instruction range [lo, hi) of block i.
func (g *codegen) blockRange(i int) (int, int) {
	lo := g.starts[i]
	hi := len(g.fn.Code)
	if i+1 < len(g.starts) {
		hi = g.starts[i+1]
	}
	return lo, hi
}

// lowerBlock translates one basic block, carrying a block-scoped operand
// stack of register names. Every push allocates a fresh register, so
// values are never clobbered by later stores to the same local.
func (g *codegen) lowerBlock(bi int) (block, bool) {
	lo, hi := g.blockRange(bi)
	var b block
	var stack []reg

	push := func(r reg) { stack = append(stack, r) }
	pop := func() (reg, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return r, true
	}
	emit := func(in inst) { b.insts = append(b.insts, in) }

	for pc := lo; pc < hi; pc++ {
		in := g.fn.Code[pc]
		switch in.Op {
		case bytecode.OpConstInt:
			dst := g.fresh()
			emit(inst{kind: instConst, dst: dst, imm: in.Int})
			push(dst)
		case bytecode.OpConstBool:
			dst := g.fresh()
			imm := int64(0)
			if in.Int != 0 {
				imm = 1
			}
			emit(inst{kind: instConst, dst: dst, imm: imm})
			push(dst)
		case bytecode.OpConstUnit:
			dst := g.fresh()
			emit(inst{kind: instConst, dst: dst, imm: 0})
			push(dst)

		case bytecode.OpLoadLocal:
			slot := int(in.Int)
			if slot < 0 || slot >= g.fn.NumLocals {
				return block{}, false
			}
			dst := g.fresh()
			emit(inst{kind: instMove, dst: dst, a: reg(slot)})
			push(dst)
		case bytecode.OpStoreLocal:
			slot := int(in.Int)
			if slot < 0 || slot >= g.fn.NumLocals {
				return block{}, false
			}
			src, ok := pop()
			if !ok {
				return block{}, false
			}
			emit(inst{kind: instMove, dst: reg(slot), a: src})

		case bytecode.OpPop:
			if _, ok := pop(); !ok {
				return block{}, false
			}
		case bytecode.OpDup:
			if len(stack) == 0 {
				return block{}, false
			}
			top := stack[len(stack)-1]
			dst := g.fresh()
			emit(inst{kind: instMove, dst: dst, a: top})
			push(dst)

		case bytecode.OpNeg, bytecode.OpNot:
			a, ok := pop()
			if !ok {
				return block{}, false
			}
			dst := g.fresh()
			kind := instNeg
			if in.Op == bytecode.OpNot {
				kind = instNot
			}
			emit(inst{kind: kind, dst: dst, a: a})
			push(dst)

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul,
			bytecode.OpEq, bytecode.OpNe, bytecode.OpLt, bytecode.OpLe,
			bytecode.OpGt, bytecode.OpGe, bytecode.OpAnd, bytecode.OpOr:
			rhs, ok := pop()
			if !ok {
				return block{}, false
			}
			lhs, ok := pop()
			if !ok {
				return block{}, false
			}
			dst := g.fresh()
			emit(inst{kind: binaryKind(in.Op), dst: dst, a: lhs, b: rhs})
			push(dst)

		case bytecode.OpJump:
			// The operand stack must be empty whenever control leaves
			// the block through a jump.
			if len(stack) != 0 {
				return block{}, false
			}
			target, ok := g.index[int(in.Int)]
			if !ok {
				return block{}, false
			}
			b.term = terminator{kind: termJump, to: target}
			return b, pc == hi-1

		case bytecode.OpJumpIfFalse:
			cond, ok := pop()
			if !ok {
				return block{}, false
			}
			if len(stack) != 0 {
				return block{}, false
			}
			elseBlock, ok := g.index[int(in.Int)]
			if !ok {
				return block{}, false
			}
			thenBlock, ok := g.index[pc+1]
			if !ok {
				return block{}, false
			}
			b.term = terminator{kind: termBranch, cond: cond, to: thenBlock, elseTo: elseBlock}
			return b, pc == hi-1

		case bytecode.OpReturn:
			ret, ok := pop()
			if !ok {
				return block{}, false
			}
			if len(stack) != 0 {
				return block{}, false
			}
			b.term = terminator{kind: termRet, ret: ret}
			return b, pc == hi-1

		default:
			return block{}, false
		}
	}

	// Fell off the block's range without a terminator.
	switch {
	case bi+1 < len(g.starts) && len(stack) == 0:
		b.term = terminator{kind: termJump, to: bi + 1}
		return b, true
	case bi+1 == len(g.starts) && len(stack) == 1:
		b.term = terminator{kind: termRet, ret: stack[0]}
		return b, true
	case bi+1 == len(g.starts) && len(stack) == 0:
		b.term = terminator{kind: termRetZero}
		return b, true
	}
	return block{}, false
}

func binaryKind(op bytecode.Op) instKind {
	switch op {
	case bytecode.OpAdd:
		return instAdd
	case bytecode.OpSub:
		return instSub
	case bytecode.OpMul:
		return instMul
	case bytecode.OpEq:
		return instEq
	case bytecode.OpNe:
		return instNe
	case bytecode.OpLt:
		return instLt
	case bytecode.OpLe:
		return instLe
	case bytecode.OpGt:
		return instGt
	case bytecode.OpGe:
		return instGe
	case bytecode.OpAnd:
		return instAnd
	default:
		return instOr
	}
}

// mangleSymbol derives a linker-safe symbol from a function name:
// non-alphanumeric characters become underscores.
func mangleSymbol(name string) string {
	var sb strings.Builder
	sb.WriteString("vela_")
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
