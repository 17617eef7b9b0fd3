package native

import (
	"regexp"
	"strings"
	"testing"

	"github.com/vela-lang/vela/internal/bytecode"
)

func TestEmitAOTPackage(t *testing.T) {
	isNeg := &bytecode.Function{
		Name: "isNeg?", Params: []string{"n"}, ReturnType: "Bool", NumLocals: 1,
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadLocal, Int: 0},
			{Op: bytecode.OpConstInt, Int: 0},
			{Op: bytecode.OpLt},
			{Op: bytecode.OpReturn},
		},
	}
	prog, err := bytecode.NewProgram([]*bytecode.Function{sumToFn(), fibFn(), isNeg}, nil)
	if err != nil {
		t.Fatalf("NewProgram failed: %v", err)
	}
	cp := CompileRegistry(prog)

	src, err := EmitAOTPackage(cp)
	if err != nil {
		t.Fatalf("EmitAOTPackage failed: %v", err)
	}
	text := string(src)

	if !strings.Contains(text, "package aot") {
		t.Error("missing package clause")
	}
	// Symbols are mangled: non-alphanumerics become underscores.
	if !strings.Contains(text, "func vela_sumTo(args []int64) int64") {
		t.Error("missing sumTo thunk")
	}
	if !strings.Contains(text, "func vela_isNeg_(args []int64) int64") {
		t.Error("missing mangled isNeg? thunk")
	}
	// Ineligible functions get no thunk; the shim interprets them.
	if strings.Contains(text, "vela_fib") {
		t.Error("fib must not be emitted")
	}
	// The formatter column-aligns the Entries map, so the whitespace
	// between key and value is not fixed.
	if !regexp.MustCompile(`"sumTo":\s+\{Fn: vela_sumTo, Arity: 1, Bool: false\}`).MatchString(text) {
		t.Error("missing sumTo registry entry")
	}
	if !regexp.MustCompile(`"isNeg\?":\s+\{Fn: vela_isNeg_, Arity: 1, Bool: true\}`).MatchString(text) {
		t.Error("missing isNeg? registry entry")
	}
	// The loop in sumTo must appear as structured gotos.
	if !strings.Contains(text, "goto b1") {
		t.Error("missing block labels in emitted code")
	}
}
