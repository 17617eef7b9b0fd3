package native

// The machine layer is the compile target: a register-based basic-block
// representation that finalize turns into executable Go closures. Each
// virtual register is one 8-byte slot; booleans are encoded 0/1.

// maxNativeArgs bounds the flat argument buffer of a compiled entry.
const maxNativeArgs = 16

type reg int

type instKind uint8

const (
	instConst instKind = iota // dst <- imm
	instMove                  // dst <- a
	instNeg                   // dst <- -a
	instNot                   // dst <- a == 0 ? 1 : 0
	instAdd                   // dst <- a + b
	instSub                   // dst <- a - b
	instMul                   // dst <- a * b
	instEq                    // dst <- a == b ? 1 : 0
	instNe                    // dst <- a != b ? 1 : 0
	instLt                    // dst <- a < b ? 1 : 0
	instLe                    // dst <- a <= b ? 1 : 0
	instGt                    // dst <- a > b ? 1 : 0
	instGe                    // dst <- a >= b ? 1 : 0
	instAnd                   // dst <- (a != 0 && b != 0) ? 1 : 0
	instOr                    // dst <- (a != 0 || b != 0) ? 1 : 0
)

type inst struct {
	kind instKind
	dst  reg
	a, b reg
	imm  int64
}

type termKind uint8

const (
	termJump   termKind = iota // goto blocks[to]
	termBranch                 // cond != 0 ? goto blocks[to] : goto blocks[elseTo]
	termRet                    // return regs[ret]
	termRetZero                // return 0
)

type terminator struct {
	kind   termKind
	to     int
	elseTo int
	cond   reg
	ret    reg
}

type block struct {
	insts []inst
	term  terminator
}

// machineFunc is one lowered function before finalization.
type machineFunc struct {
	name    string
	symbol  string
	arity   int
	retKind ReturnKind
	numRegs int
	blocks  []block
}

// nativeEntry is the raw compiled signature: one pointer to a contiguous
// array of 8-byte argument slots in, one 8-byte integer out.
type nativeEntry func(args []int64) int64

// finalize compiles the block graph into an executable entry. Every
// block becomes a step closure built once, up front; running the entry
// only threads through pre-resolved closures, it never re-inspects the
// instruction stream.
func (m *machineFunc) finalize() nativeEntry {
	type step func(regs []int64) (next int, ret int64, done bool)

	steps := make([]step, len(m.blocks))
	for i := range m.blocks {
		b := m.blocks[i]
		steps[i] = func(regs []int64) (int, int64, bool) {
			for _, in := range b.insts {
				switch in.kind {
				case instConst:
					regs[in.dst] = in.imm
				case instMove:
					regs[in.dst] = regs[in.a]
				case instNeg:
					regs[in.dst] = -regs[in.a]
				case instNot:
					regs[in.dst] = b2i(regs[in.a] == 0)
				case instAdd:
					regs[in.dst] = regs[in.a] + regs[in.b]
				case instSub:
					regs[in.dst] = regs[in.a] - regs[in.b]
				case instMul:
					regs[in.dst] = regs[in.a] * regs[in.b]
				case instEq:
					regs[in.dst] = b2i(regs[in.a] == regs[in.b])
				case instNe:
					regs[in.dst] = b2i(regs[in.a] != regs[in.b])
				case instLt:
					regs[in.dst] = b2i(regs[in.a] < regs[in.b])
				case instLe:
					regs[in.dst] = b2i(regs[in.a] <= regs[in.b])
				case instGt:
					regs[in.dst] = b2i(regs[in.a] > regs[in.b])
				case instGe:
					regs[in.dst] = b2i(regs[in.a] >= regs[in.b])
				case instAnd:
					regs[in.dst] = b2i(regs[in.a] != 0 && regs[in.b] != 0)
				case instOr:
					regs[in.dst] = b2i(regs[in.a] != 0 || regs[in.b] != 0)
				}
			}
			switch b.term.kind {
			case termJump:
				return b.term.to, 0, false
			case termBranch:
				if regs[b.term.cond] != 0 {
					return b.term.to, 0, false
				}
				return b.term.elseTo, 0, false
			case termRet:
				return 0, regs[b.term.ret], true
			default: // termRetZero
				return 0, 0, true
			}
		}
	}

	numRegs := m.numRegs
	arity := m.arity
	return func(args []int64) int64 {
		regs := make([]int64, numRegs)
		copy(regs, args[:arity])
		cur := 0
		for {
			next, ret, done := steps[cur](regs)
			if done {
				return ret
			}
			cur = next
		}
	}
}

func b2i(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

// CompiledFn is one entry in the compiled-function table.
type CompiledFn struct {
	Name    string
	Symbol  string
	Arity   int
	RetKind ReturnKind

	entry nativeEntry
	mach  *machineFunc // retained for AOT source emission
}

// invoke calls the raw entry point with a packed argument buffer. The
// signature precondition (len(args) >= Arity, slots already projected to
// raw int64) is established by the dispatcher, which is the only caller.
func (c *CompiledFn) invoke(args []int64) int64 {
	return c.entry(args)
}
