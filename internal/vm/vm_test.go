package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vela-lang/vela/internal/bytecode"
	"github.com/vela-lang/vela/internal/object"
)

func testProgram(t *testing.T, fns ...*bytecode.Function) *bytecode.Program {
	t.Helper()
	prog, err := bytecode.NewProgram(fns, nil)
	if err != nil {
		t.Fatalf("NewProgram failed: %v", err)
	}
	return prog
}

func callInt(t *testing.T, vm *VM, name string, args ...object.Object) int64 {
	t.Helper()
	result, err := vm.CallFunction(name, args)
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	n, ok := result.(*object.Integer)
	if !ok {
		t.Fatalf("%s: expected Integer, got %s (%s)", name, result.Type(), result.Inspect())
	}
	return n.Value
}

func TestArithmetic(t *testing.T) {
	// add(a, b) = a + b
	add := &bytecode.Function{
		Name: "add", Params: []string{"a", "b"}, ReturnType: "Int", NumLocals: 2,
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpLoadLocal, Int: 1},
			{Op: bytecode.OpAdd},
			{Op: bytecode.OpReturn},
		},
	}
	// mix(a) = a * 3 - 4 % 3
	mix := &bytecode.Function{
		Name: "mix", Params: []string{"a"}, ReturnType: "Int", NumLocals: 1,
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpConstInt, Int: 3},
			{Op: bytecode.OpMul},
			{Op: bytecode.OpConstInt, Int: 4},
			{Op: bytecode.OpConstInt, Int: 3},
			{Op: bytecode.OpMod},
			{Op: bytecode.OpSub},
			{Op: bytecode.OpReturn},
		},
	}
	vm := New(testProgram(t, add, mix))

	tests := []struct {
		name string
		fn   string
		args []object.Object
		want int64
	}{
		{"add small", "add", []object.Object{&object.Integer{Value: 2}, &object.Integer{Value: 3}}, 5},
		{"add negative", "add", []object.Object{&object.Integer{Value: -7}, &object.Integer{Value: 7}}, 0},
		{"mix", "mix", []object.Object{&object.Integer{Value: 10}}, 29},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := callInt(t, vm, tt.fn, tt.args...); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFloatPromotion(t *testing.T) {
	// half(a) = a / 2.0
	half := &bytecode.Function{
		Name: "half", Params: []string{"a"}, ReturnType: "Float", NumLocals: 1,
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpConstFloat, Float: 2.0},
			{Op: bytecode.OpDiv},
			{Op: bytecode.OpReturn},
		},
	}
	vm := New(testProgram(t, half))
	result, err := vm.CallFunction("half", []object.Object{&object.Integer{Value: 5}})
	if err != nil {
		t.Fatalf("half failed: %v", err)
	}
	f, ok := result.(*object.Float)
	if !ok {
		t.Fatalf("expected Float, got %s", result.Type())
	}
	if f.Value != 2.5 {
		t.Errorf("got %v, want 2.5", f.Value)
	}
}

func TestLoop(t *testing.T) {
	// sumTo(n) = 1 + 2 + ... + n
	sumTo := &bytecode.Function{
		Name: "sumTo", Params: []string{"n"}, ReturnType: "Int", NumLocals: 3,
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstInt, Int: 0},
			{Op: bytecode.OpStoreLocal, Int: 1},
			{Op: bytecode.OpConstInt, Int: 1},
			{Op: bytecode.OpStoreLocal, Int: 2},
			{Op: bytecode.OpLoadLocal, Int: 2}, // 4: loop head
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpLe},
			{Op: bytecode.OpJumpIfFalse, Int: 17},
			{Op: bytecode.OpLoadLocal, Int: 1},
			{Op: bytecode.OpLoadLocal, Int: 2},
			{Op: bytecode.OpAdd},
			{Op: bytecode.OpStoreLocal, Int: 1},
			{Op: bytecode.OpLoadLocal, Int: 2},
			{Op: bytecode.OpConstInt, Int: 1},
			{Op: bytecode.OpAdd},
			{Op: bytecode.OpStoreLocal, Int: 2},
			{Op: bytecode.OpJump, Int: 4},
			{Op: bytecode.OpLoadLocal, Int: 1}, // 17
			{Op: bytecode.OpReturn},
		},
	}
	vm := New(testProgram(t, sumTo))

	tests := []struct {
		n, want int64
	}{
		{0, 0},
		{1, 1},
		{5, 15},
		{100, 5050},
	}
	for _, tt := range tests {
		if got := callInt(t, vm, "sumTo", &object.Integer{Value: tt.n}); got != tt.want {
			t.Errorf("sumTo(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func fibFunction() *bytecode.Function {
	return &bytecode.Function{
		Name: "fib", Params: []string{"n"}, ReturnType: "Int", NumLocals: 1,
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpConstInt, Int: 2},
			{Op: bytecode.OpLt},
			{Op: bytecode.OpJumpIfFalse, Int: 6},
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpReturn},
			{Op: bytecode.OpLoadLocal, Int: 0}, // 6
			{Op: bytecode.OpConstInt, Int: 1},
			{Op: bytecode.OpSub},
			{Op: bytecode.OpCall, Str: "fib", Int: 1},
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpConstInt, Int: 2},
			{Op: bytecode.OpSub},
			{Op: bytecode.OpCall, Str: "fib", Int: 1},
			{Op: bytecode.OpAdd},
			{Op: bytecode.OpReturn},
		},
	}
}

func TestRecursiveCalls(t *testing.T) {
	vm := New(testProgram(t, fibFunction()))
	if got := callInt(t, vm, "fib", &object.Integer{Value: 10}); got != 55 {
		t.Errorf("fib(10) = %d, want 55", got)
	}
	if got := callInt(t, vm, "fib", &object.Integer{Value: 20}); got != 6765 {
		t.Errorf("fib(20) = %d, want 6765", got)
	}
}

func TestCallErrors(t *testing.T) {
	vm := New(testProgram(t, fibFunction()))

	_, err := vm.CallFunction("fib", nil)
	if err == nil || err.Error() != "invalid call to fib: expected 1 arguments, got 0" {
		t.Errorf("arity error: got %v", err)
	}

	_, err = vm.CallFunction("nope", nil)
	if err == nil || err.Error() != "unknown function: nope" {
		t.Errorf("unknown function error: got %v", err)
	}
}

func TestDivisionByZero(t *testing.T) {
	div := &bytecode.Function{
		Name: "div", Params: []string{"a", "b"}, ReturnType: "Int", NumLocals: 2,
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpLoadLocal, Int: 1},
			{Op: bytecode.OpDiv},
			{Op: bytecode.OpReturn},
		},
	}
	vm := New(testProgram(t, div))
	_, err := vm.CallFunction("div", []object.Object{&object.Integer{Value: 1}, &object.Integer{Value: 0}})
	if err == nil || !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("got %v, want division by zero", err)
	}

	// The VM stays usable after a runtime error.
	if got := callInt(t, vm, "div", &object.Integer{Value: 10}, &object.Integer{Value: 2}); got != 5 {
		t.Errorf("div(10, 2) = %d after error, want 5", got)
	}
}

func TestPrintBuiltins(t *testing.T) {
	greet := &bytecode.Function{
		Name: "greet", ReturnType: "Unit",
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstStr, Str: "hello"},
			{Op: bytecode.OpConstInt, Int: 42},
			{Op: bytecode.OpCall, Str: "println", Int: 2},
			{Op: bytecode.OpReturn},
		},
	}
	vm := New(testProgram(t, greet))
	var out bytes.Buffer
	vm.SetOutput(&out)

	if _, err := vm.CallFunction("greet", nil); err != nil {
		t.Fatalf("greet failed: %v", err)
	}
	if got := out.String(); got != "hello 42\n" {
		t.Errorf("output = %q, want %q", got, "hello 42\n")
	}
}

func TestAssertBuiltin(t *testing.T) {
	check := &bytecode.Function{
		Name: "check", Params: []string{"flag"}, ReturnType: "Unit", NumLocals: 1,
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpConstStr, Str: "flag must hold"},
			{Op: bytecode.OpCall, Str: "assert", Int: 2},
			{Op: bytecode.OpReturn},
		},
	}
	vm := New(testProgram(t, check))

	if _, err := vm.CallFunction("check", []object.Object{&object.Boolean{Value: true}}); err != nil {
		t.Fatalf("check(true) failed: %v", err)
	}
	_, err := vm.CallFunction("check", []object.Object{&object.Boolean{Value: false}})
	if err == nil || err.Error() != "assertion failed: flag must hold" {
		t.Errorf("got %v, want assertion failed: flag must hold", err)
	}
}

func TestBoxOps(t *testing.T) {
	cell := &bytecode.Function{
		Name: "cell", ReturnType: "Int", NumLocals: 1,
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstInt, Int: 1},
			{Op: bytecode.OpBox},
			{Op: bytecode.OpStoreLocal, Int: 0},
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpConstInt, Int: 5},
			{Op: bytecode.OpBoxSet},
			{Op: bytecode.OpPop},
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpBoxGet},
			{Op: bytecode.OpReturn},
		},
	}
	vm := New(testProgram(t, cell))
	if got := callInt(t, vm, "cell"); got != 5 {
		t.Errorf("cell() = %d, want 5", got)
	}
}

func TestEnumOps(t *testing.T) {
	// shape() builds Circle(7) and reads its payload when the tag matches.
	shape := &bytecode.Function{
		Name: "shape", ReturnType: "Int", NumLocals: 1,
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstInt, Int: 7},
			{Op: bytecode.OpMakeEnum, Str: "Shape", Syms: []string{"Circle"}, Int: 1},
			{Op: bytecode.OpStoreLocal, Int: 0},
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpMatchTag, Str: "Circle"},
			{Op: bytecode.OpJumpIfFalse, Int: 9},
			{Op: bytecode.OpEnumField, Int: 0},
			{Op: bytecode.OpReturn},
			{Op: bytecode.OpPop}, // 8: unreachable here
			{Op: bytecode.OpConstInt, Int: -1}, // 9
			{Op: bytecode.OpReturn},
		},
	}
	vm := New(testProgram(t, shape))
	if got := callInt(t, vm, "shape"); got != 7 {
		t.Errorf("shape() = %d, want 7", got)
	}
}

func TestConfigGet(t *testing.T) {
	port := &bytecode.Function{
		Name: "port", ReturnType: "Int",
		Code: []bytecode.Instr{
			{Op: bytecode.OpConfigGet, Str: "port"},
			{Op: bytecode.OpReturn},
		},
	}
	prog := testProgram(t, port)
	prog.ConfigDefaults = map[string]interface{}{"port": int64(8080)}

	vm := New(prog)
	if got := callInt(t, vm, "port"); got != 8080 {
		t.Errorf("port() = %d, want 8080", got)
	}

	// Loaded config overlays the program default.
	vm2 := New(prog)
	vm2.SetConfig(map[string]object.Object{"port": &object.Integer{Value: 9090}})
	if got := callInt(t, vm2, "port"); got != 9090 {
		t.Errorf("port() with overlay = %d, want 9090", got)
	}
}

func TestSpawnAwait(t *testing.T) {
	double := &bytecode.Function{
		Name: "double", Params: []string{"n"}, ReturnType: "Int", NumLocals: 1,
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpConstInt, Int: 2},
			{Op: bytecode.OpMul},
			{Op: bytecode.OpReturn},
		},
	}
	fail := &bytecode.Function{
		Name: "fail", ReturnType: "Result",
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstStr, Str: "no luck"},
			{Op: bytecode.OpCall, Str: "err", Int: 1},
			{Op: bytecode.OpReturn},
		},
	}
	crash := &bytecode.Function{
		Name: "crash", ReturnType: "Int",
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstInt, Int: 1},
			{Op: bytecode.OpConstInt, Int: 0},
			{Op: bytecode.OpDiv},
			{Op: bytecode.OpReturn},
		},
	}
	spawnDouble := &bytecode.Function{
		Name: "spawnDouble", ReturnType: "Result",
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstInt, Int: 21},
			{Op: bytecode.OpSpawn, Str: "double", Int: 1},
			{Op: bytecode.OpAwait},
			{Op: bytecode.OpReturn},
		},
	}
	spawnFail := &bytecode.Function{
		Name: "spawnFail", ReturnType: "Result",
		Code: []bytecode.Instr{
			{Op: bytecode.OpSpawn, Str: "fail", Int: 0},
			{Op: bytecode.OpAwait},
			{Op: bytecode.OpReturn},
		},
	}
	spawnCrash := &bytecode.Function{
		Name: "spawnCrash", ReturnType: "Result",
		Code: []bytecode.Instr{
			{Op: bytecode.OpSpawn, Str: "crash", Int: 0},
			{Op: bytecode.OpAwait},
			{Op: bytecode.OpReturn},
		},
	}
	vm := New(testProgram(t, double, fail, crash, spawnDouble, spawnFail, spawnCrash))

	result, err := vm.CallFunction("spawnDouble", nil)
	if err != nil {
		t.Fatalf("spawnDouble failed: %v", err)
	}
	res, ok := result.(*object.Result)
	if !ok || !res.Ok {
		t.Fatalf("spawnDouble: expected ok Result, got %s", result.Inspect())
	}
	if n, ok := res.Value.(*object.Integer); !ok || n.Value != 42 {
		t.Errorf("spawnDouble value = %s, want 42", res.Value.Inspect())
	}

	result, err = vm.CallFunction("spawnFail", nil)
	if err != nil {
		t.Fatalf("spawnFail failed: %v", err)
	}
	res, ok = result.(*object.Result)
	if !ok || res.Ok {
		t.Fatalf("spawnFail: expected err Result, got %s", result.Inspect())
	}
	if s, ok := res.Value.(*object.String); !ok || s.Value != "no luck" {
		t.Errorf("spawnFail value = %s, want no luck", res.Value.Inspect())
	}

	_, err = vm.CallFunction("spawnCrash", nil)
	if err == nil || !strings.Contains(err.Error(), "task failed") {
		t.Errorf("spawnCrash: got %v, want task failed error", err)
	}
}

func TestContainerOps(t *testing.T) {
	// pair() = ["a", "b"][1] ++ {"k": "v"}["k"]
	pick := &bytecode.Function{
		Name: "pick", ReturnType: "String",
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstStr, Str: "a"},
			{Op: bytecode.OpConstStr, Str: "b"},
			{Op: bytecode.OpMakeList, Int: 2},
			{Op: bytecode.OpConstInt, Int: 1},
			{Op: bytecode.OpIndex},
			{Op: bytecode.OpConstStr, Str: "v"},
			{Op: bytecode.OpMakeMap, Syms: []string{"k"}},
			{Op: bytecode.OpConstStr, Str: "k"},
			{Op: bytecode.OpIndex},
			{Op: bytecode.OpConcat},
			{Op: bytecode.OpReturn},
		},
	}
	field := &bytecode.Function{
		Name: "field", ReturnType: "Int",
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstInt, Int: 3},
			{Op: bytecode.OpConstInt, Int: 4},
			{Op: bytecode.OpMakeStruct, Str: "Point", Syms: []string{"x", "y"}},
			{Op: bytecode.OpField, Str: "y"},
			{Op: bytecode.OpReturn},
		},
	}
	vm := New(testProgram(t, pick, field))

	result, err := vm.CallFunction("pick", nil)
	if err != nil {
		t.Fatalf("pick failed: %v", err)
	}
	if s, ok := result.(*object.String); !ok || s.Value != "bv" {
		t.Errorf("pick() = %s, want bv", result.Inspect())
	}

	if got := callInt(t, vm, "field"); got != 4 {
		t.Errorf("field() = %d, want 4", got)
	}
}

func TestRunApp(t *testing.T) {
	main := &bytecode.Function{
		Name: "main", ReturnType: "Unit",
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstStr, Str: "started"},
			{Op: bytecode.OpCall, Str: "println", Int: 1},
			{Op: bytecode.OpReturn},
		},
	}
	prog, err := bytecode.NewProgram([]*bytecode.Function{main}, []string{"main"})
	if err != nil {
		t.Fatalf("NewProgram failed: %v", err)
	}
	vm := New(prog)
	var out bytes.Buffer
	vm.SetOutput(&out)

	if err := vm.RunApp(""); err != nil {
		t.Fatalf("RunApp failed: %v", err)
	}
	if got := out.String(); got != "started\n" {
		t.Errorf("output = %q", got)
	}
}
