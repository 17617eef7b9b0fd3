package native

import (
	"sort"
	"strings"

	"github.com/vela-lang/vela/internal/bytecode"
)

// jitOpcodes is the instruction subset the code generator handles:
// scalar constants, local slots, stack shuffles, integer arithmetic,
// comparisons, boolean logic and structured jumps. Anything outside this
// set (calls, heap construction, pattern dispatch, config access,
// floats, string ops) keeps a function on the interpreted path.
var jitOpcodes = map[bytecode.Op]bool{
	bytecode.OpConstInt:    true,
	bytecode.OpConstBool:   true,
	bytecode.OpConstUnit:   true,
	bytecode.OpLoadLocal:   true,
	bytecode.OpStoreLocal:  true,
	bytecode.OpPop:         true,
	bytecode.OpDup:         true,
	bytecode.OpNeg:         true,
	bytecode.OpNot:         true,
	bytecode.OpAdd:         true,
	bytecode.OpSub:         true,
	bytecode.OpMul:         true,
	bytecode.OpEq:          true,
	bytecode.OpNe:          true,
	bytecode.OpLt:          true,
	bytecode.OpLe:          true,
	bytecode.OpGt:          true,
	bytecode.OpGe:          true,
	bytecode.OpAnd:         true,
	bytecode.OpOr:          true,
	bytecode.OpJump:        true,
	bytecode.OpJumpIfFalse: true,
	bytecode.OpReturn:      true,
}

// ReturnKind classifies the raw return register of a compiled function.
type ReturnKind uint8

const (
	RetInt ReturnKind = iota
	RetBool
)

// scalarReturnKind maps a declared return type to its raw encoding.
// Only Int (plain or refined, e.g. "Int{self > 0}") and Bool qualify.
func scalarReturnKind(declared string) (ReturnKind, bool) {
	switch {
	case declared == "Int":
		return RetInt, true
	case strings.HasPrefix(declared, "Int{"):
		return RetInt, true
	case declared == "Bool":
		return RetBool, true
	}
	return 0, false
}

// AnalyzeFunction decides whether fn can be compiled and, if so, returns
// its basic-block start offsets in ascending order. A false result is
// not an error: the caller must route the function to the bytecode VM,
// silently.
//
// Block starts are instruction indices that begin a block: index 0,
// every jump target, and the instruction immediately following a
// conditional jump. An out-of-bounds jump target makes the whole
// function ineligible.
func AnalyzeFunction(fn *bytecode.Function) ([]int, ReturnKind, bool) {
	kind, ok := scalarReturnKind(fn.ReturnType)
	if !ok {
		return nil, 0, false
	}
	if len(fn.Code) == 0 {
		return nil, 0, false
	}

	starts := map[int]bool{0: true}
	for i, in := range fn.Code {
		if !jitOpcodes[in.Op] {
			return nil, 0, false
		}
		switch in.Op {
		case bytecode.OpJump:
			target := int(in.Int)
			if target < 0 || target >= len(fn.Code) {
				return nil, 0, false
			}
			starts[target] = true
		case bytecode.OpJumpIfFalse:
			target := int(in.Int)
			if target < 0 || target >= len(fn.Code) {
				return nil, 0, false
			}
			starts[target] = true
			if i+1 < len(fn.Code) {
				starts[i+1] = true
			}
		}
	}

	offsets := make([]int, 0, len(starts))
	for off := range starts {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	return offsets, kind, true
}
