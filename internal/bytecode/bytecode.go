package bytecode

import "fmt"

// Instr is one structured stack-machine instruction. Which fields are
// meaningful depends on the opcode; see the Op constants.
type Instr struct {
	Op    Op
	Int   int64    // Immediate, local slot, absolute jump target, or count
	Float float64  // Float immediate
	Str   string   // Function, field, variant, struct or config name
	Syms  []string // Ordered key/field names for construction opcodes
}

func (in Instr) String() string {
	switch in.Op {
	case OpConstInt, OpLoadLocal, OpStoreLocal, OpJump, OpJumpIfFalse,
		OpMakeList, OpEnumField:
		return fmt.Sprintf("%s %d", in.Op.Name(), in.Int)
	case OpConstFloat:
		return fmt.Sprintf("%s %g", in.Op.Name(), in.Float)
	case OpConstBool:
		return fmt.Sprintf("%s %t", in.Op.Name(), in.Int != 0)
	case OpConstStr, OpField, OpMatchTag, OpConfigGet:
		return fmt.Sprintf("%s %q", in.Op.Name(), in.Str)
	case OpCall, OpSpawn:
		return fmt.Sprintf("%s %s/%d", in.Op.Name(), in.Str, in.Int)
	case OpMakeStruct:
		return fmt.Sprintf("%s %s %v", in.Op.Name(), in.Str, in.Syms)
	case OpMakeEnum:
		variant := ""
		if len(in.Syms) > 0 {
			variant = in.Syms[0]
		}
		return fmt.Sprintf("%s %s::%s/%d", in.Op.Name(), in.Str, variant, in.Int)
	case OpMakeMap:
		return fmt.Sprintf("%s %v", in.Op.Name(), in.Syms)
	default:
		return in.Op.Name()
	}
}

// Function is one lowered function: a name, ordered parameters, an optional
// declared return type, a local slot count and a linear instruction stream.
// Parameters occupy the first len(Params) local slots.
type Function struct {
	Name       string
	Params     []string
	ReturnType string // "" when the lowering pass recorded no return type
	NumLocals  int
	Code       []Instr
}

// Arity returns the declared parameter count.
func (f *Function) Arity() int { return len(f.Params) }

// EnumType describes one enum declaration: variant name to payload arity.
type EnumType struct {
	Name     string
	Variants map[string]int
}

// StructType describes one struct declaration with its field order.
type StructType struct {
	Name   string
	Fields []string
}

// Program aggregates every lowered function together with app entry points
// and declaration metadata. A Program is immutable once constructed; the
// execution backends only ever read it.
type Program struct {
	Functions []*Function
	Apps      []string // Entry point function names, in declaration order
	Structs   map[string]*StructType
	Enums     map[string]*EnumType
	// ConfigDefaults holds the declared config fields with their default
	// scalar values; the loaded app config overrides them at runtime.
	ConfigDefaults map[string]interface{}

	byName map[string]*Function
}

// NewProgram builds a Program and indexes its functions by name.
// Duplicate function names are a lowering bug and reported as an error.
func NewProgram(fns []*Function, apps []string) (*Program, error) {
	p := &Program{
		Functions:      fns,
		Apps:           apps,
		Structs:        make(map[string]*StructType),
		Enums:          make(map[string]*EnumType),
		ConfigDefaults: make(map[string]interface{}),
		byName:         make(map[string]*Function, len(fns)),
	}
	for _, fn := range fns {
		if _, dup := p.byName[fn.Name]; dup {
			return nil, fmt.Errorf("duplicate function %q in program", fn.Name)
		}
		p.byName[fn.Name] = fn
	}
	return p, nil
}

// Function returns the named function, or nil.
func (p *Program) Function(name string) *Function {
	if p.byName == nil {
		p.reindex()
	}
	return p.byName[name]
}

// HasFunction reports whether the program defines the named function.
func (p *Program) HasFunction(name string) bool {
	return p.Function(name) != nil
}

// reindex rebuilds the name index. Needed after gob decoding, which does
// not restore unexported fields.
func (p *Program) reindex() {
	p.byName = make(map[string]*Function, len(p.Functions))
	for _, fn := range p.Functions {
		p.byName[fn.Name] = fn
	}
}
