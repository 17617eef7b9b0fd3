package backend

import (
	"bytes"
	"testing"

	"github.com/vela-lang/vela/internal/bytecode"
	"github.com/vela-lang/vela/internal/object"
)

func paritySuiteProgram(t *testing.T) *bytecode.Program {
	t.Helper()
	square := &bytecode.Function{
		Name: "square", Params: []string{"n"}, ReturnType: "Int", NumLocals: 1,
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpMul},
			{Op: bytecode.OpReturn},
		},
	}
	// failCheck asserts false with a fixed message; assert lives outside
	// the compiled subset so the assertion always runs interpreted.
	failCheck := &bytecode.Function{
		Name: "failCheck", ReturnType: "Unit",
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstBool, Int: 0},
			{Op: bytecode.OpConstStr, Str: "invariant violated"},
			{Op: bytecode.OpCall, Str: "assert", Int: 2},
			{Op: bytecode.OpReturn},
		},
	}
	greet := &bytecode.Function{
		Name: "greet", ReturnType: "Unit",
		Code: []bytecode.Instr{
			{Op: bytecode.OpConstStr, Str: "hello"},
			{Op: bytecode.OpCall, Str: "println", Int: 1},
			{Op: bytecode.OpReturn},
		},
	}
	prog, err := bytecode.NewProgram([]*bytecode.Function{square, failCheck, greet}, []string{"greet"})
	if err != nil {
		t.Fatalf("NewProgram failed: %v", err)
	}
	return prog
}

func TestBackendsAgreeOnResults(t *testing.T) {
	prog := paritySuiteProgram(t)
	engines := []Backend{NewVMBackend(prog), NewNativeBackend(prog)}

	for _, n := range []int64{-4, 0, 3, 12} {
		var results []object.Object
		for _, eng := range engines {
			result, err := eng.CallFunction("square", []object.Object{&object.Integer{Value: n}})
			if err != nil {
				t.Fatalf("%s square(%d): %v", eng.Name(), n, err)
			}
			results = append(results, result)
		}
		if !object.Equals(results[0], results[1]) {
			t.Errorf("square(%d): vm %s, native %s", n, results[0].Inspect(), results[1].Inspect())
		}
	}
}

func TestAssertFailureIdenticalAcrossBackends(t *testing.T) {
	prog := paritySuiteProgram(t)
	engines := []Backend{NewVMBackend(prog), NewNativeBackend(prog)}

	var messages []string
	for _, eng := range engines {
		_, err := eng.CallFunction("failCheck", nil)
		if err == nil {
			t.Fatalf("%s: failCheck must error", eng.Name())
		}
		messages = append(messages, err.Error())
	}
	if messages[0] != messages[1] {
		t.Errorf("error text differs: vm %q, native %q", messages[0], messages[1])
	}
	if want := "assertion failed: invariant violated"; messages[0] != want {
		t.Errorf("error = %q, want %q", messages[0], want)
	}
}

func TestIdenticalStdout(t *testing.T) {
	prog := paritySuiteProgram(t)

	var outputs []string
	for _, eng := range []Backend{NewVMBackend(prog), NewNativeBackend(prog)} {
		var out bytes.Buffer
		eng.SetOutput(&out)
		if err := eng.RunApp(""); err != nil {
			t.Fatalf("%s RunApp: %v", eng.Name(), err)
		}
		outputs = append(outputs, out.String())
	}
	if outputs[0] != outputs[1] {
		t.Errorf("stdout differs: vm %q, native %q", outputs[0], outputs[1])
	}
	if outputs[0] != "hello\n" {
		t.Errorf("stdout = %q, want %q", outputs[0], "hello\n")
	}
}

func TestBackendSelection(t *testing.T) {
	prog := paritySuiteProgram(t)
	if got := New("vm", prog).Name(); got != "vm" {
		t.Errorf("New(vm) = %s", got)
	}
	if got := New("native", prog).Name(); got != "native" {
		t.Errorf("New(native) = %s", got)
	}
}
