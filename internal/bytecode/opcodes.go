// Package bytecode defines the instruction stream contract between the
// lowering pass and the Vela execution backends.
package bytecode

// Op represents a single stack-machine instruction kind.
type Op uint8

const (
	// Constants
	OpConstInt   Op = iota // Push integer immediate (Instr.Int)
	OpConstFloat           // Push float immediate (Instr.Float)
	OpConstBool            // Push boolean (Instr.Int is 0/1)
	OpConstUnit            // Push the unit value (Nil)
	OpConstStr             // Push string constant (Instr.Str)

	// Locals
	OpLoadLocal  // Push local slot Instr.Int
	OpStoreLocal // Pop into local slot Instr.Int

	// Stack manipulation
	OpPop // Discard top of stack
	OpDup // Duplicate top of stack

	// Unary
	OpNeg // Arithmetic negate
	OpNot // Logical not

	// Arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod

	// Comparison
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// Logic (strict two-operand forms; short-circuiting is lowered to jumps)
	OpAnd
	OpOr

	// Control flow. Targets are absolute instruction indices (Instr.Int).
	OpJump
	OpJumpIfFalse

	// Functions
	OpCall   // Call Instr.Str with Instr.Int arguments from the stack
	OpReturn // Pop the return value and leave the frame

	// Strings, lists, maps
	OpConcat // ++ on strings, bytes and lists
	OpIndex  // a[i] on lists, maps and bytes
	OpField  // Struct field access by name (Instr.Str)

	// Construction
	OpMakeList   // Pop Instr.Int elements, push List
	OpMakeMap    // Pop len(Instr.Syms) values keyed by Instr.Syms, push Map
	OpMakeStruct // Pop len(Instr.Syms) field values for struct Instr.Str
	OpMakeEnum   // Pop Instr.Int payload values for Instr.Str::Instr.Syms[0]

	// Pattern dispatch
	OpMatchTag  // Peek enum, push whether its variant equals Instr.Str
	OpEnumField // Peek enum, push payload element Instr.Int

	// Application config
	OpConfigGet // Push config value for key Instr.Str

	// Shared mutable cells
	OpBox    // Pop value, push a fresh box holding it
	OpBoxGet // Pop box, push its contents
	OpBoxSet // Pop value then box, store value, push unit

	// Tasks
	OpSpawn // Pop Instr.Int arguments, start Instr.Str in a task, push handle
	OpAwait // Pop task, push its delivered result
)

// OpNames maps opcodes to their string names (for disassembly and errors).
var OpNames = map[Op]string{
	OpConstInt:   "CONST_INT",
	OpConstFloat: "CONST_FLOAT",
	OpConstBool:  "CONST_BOOL",
	OpConstUnit:  "CONST_UNIT",
	OpConstStr:   "CONST_STR",

	OpLoadLocal:  "LOAD_LOCAL",
	OpStoreLocal: "STORE_LOCAL",

	OpPop: "POP",
	OpDup: "DUP",

	OpNeg: "NEG",
	OpNot: "NOT",

	OpAdd: "ADD",
	OpSub: "SUB",
	OpMul: "MUL",
	OpDiv: "DIV",
	OpMod: "MOD",

	OpEq: "EQ",
	OpNe: "NE",
	OpLt: "LT",
	OpLe: "LE",
	OpGt: "GT",
	OpGe: "GE",

	OpAnd: "AND",
	OpOr:  "OR",

	OpJump:        "JUMP",
	OpJumpIfFalse: "JUMP_IF_FALSE",

	OpCall:   "CALL",
	OpReturn: "RETURN",

	OpConcat: "CONCAT",
	OpIndex:  "INDEX",
	OpField:  "FIELD",

	OpMakeList:   "MAKE_LIST",
	OpMakeMap:    "MAKE_MAP",
	OpMakeStruct: "MAKE_STRUCT",
	OpMakeEnum:   "MAKE_ENUM",

	OpMatchTag:  "MATCH_TAG",
	OpEnumField: "ENUM_FIELD",

	OpConfigGet: "CONFIG_GET",

	OpBox:    "BOX",
	OpBoxGet: "BOX_GET",
	OpBoxSet: "BOX_SET",

	OpSpawn: "SPAWN",
	OpAwait: "AWAIT",
}

// Name returns the printable opcode name.
func (op Op) Name() string {
	if n, ok := OpNames[op]; ok {
		return n
	}
	return "UNKNOWN"
}
