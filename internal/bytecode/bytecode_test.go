package bytecode

import (
	"strings"
	"testing"
)

func sampleProgram(t *testing.T) *Program {
	t.Helper()
	inc := &Function{
		Name: "inc", Params: []string{"n"}, ReturnType: "Int", NumLocals: 1,
		Code: []Instr{
			{Op: OpLoadLocal, Int: 0},
			{Op: OpConstInt, Int: 1},
			{Op: OpAdd},
			{Op: OpReturn},
		},
	}
	main := &Function{
		Name: "main", ReturnType: "Unit",
		Code: []Instr{
			{Op: OpConstInt, Int: 41},
			{Op: OpCall, Str: "inc", Int: 1},
			{Op: OpCall, Str: "println", Int: 1},
			{Op: OpReturn},
		},
	}
	prog, err := NewProgram([]*Function{inc, main}, []string{"main"})
	if err != nil {
		t.Fatalf("NewProgram failed: %v", err)
	}
	prog.ConfigDefaults = map[string]interface{}{"port": int64(8080)}
	return prog
}

func TestNewProgramRejectsDuplicates(t *testing.T) {
	f := &Function{Name: "f", ReturnType: "Int", Code: []Instr{{Op: OpReturn}}}
	_, err := NewProgram([]*Function{f, f}, nil)
	if err == nil {
		t.Error("expected duplicate function error")
	}
}

func TestProgramLookup(t *testing.T) {
	prog := sampleProgram(t)
	if prog.Function("inc") == nil {
		t.Error("inc should resolve")
	}
	if prog.Function("missing") != nil {
		t.Error("missing should not resolve")
	}
	if !prog.HasFunction("main") {
		t.Error("main should exist")
	}
}

func TestBundleRoundtrip(t *testing.T) {
	bundle := &Bundle{Program: sampleProgram(t), SourceFile: "app.vela"}

	data, err := bundle.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	restored, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if restored.SourceFile != "app.vela" {
		t.Errorf("SourceFile = %q", restored.SourceFile)
	}
	if len(restored.Program.Functions) != 2 {
		t.Fatalf("functions = %d, want 2", len(restored.Program.Functions))
	}
	// Name index must be rebuilt after decode.
	fn := restored.Program.Function("inc")
	if fn == nil {
		t.Fatal("inc lost in round trip")
	}
	if fn.Arity() != 1 || fn.ReturnType != "Int" {
		t.Errorf("inc metadata changed: arity %d, return %s", fn.Arity(), fn.ReturnType)
	}
	if len(fn.Code) != 4 || fn.Code[1].Int != 1 {
		t.Errorf("inc code changed: %v", fn.Code)
	}
	if restored.Program.ConfigDefaults["port"] != int64(8080) {
		t.Errorf("config defaults lost: %v", restored.Program.ConfigDefaults)
	}
}

func TestDeserializeRejectsBadInput(t *testing.T) {
	if _, err := Deserialize([]byte{0x01}); err == nil {
		t.Error("expected error for truncated data")
	}
	if _, err := Deserialize([]byte("XXXX garbage")); err == nil {
		t.Error("expected error for wrong magic")
	}
}

func TestDisassemble(t *testing.T) {
	prog := sampleProgram(t)
	listing := DisassembleProgram(prog)
	for _, want := range []string{"inc", "main", "LOAD_LOCAL", "CALL", "RETURN"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}
