package native

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/vela-lang/vela/internal/bytecode"
	"github.com/vela-lang/vela/internal/config"
	"github.com/vela-lang/vela/internal/object"
	"github.com/vela-lang/vela/internal/vm"
)

// CompiledProgram pairs a program with its compiled-function table. The
// table is append-only during CompileRegistry and immutable afterwards;
// lookups and calls need no synchronization.
type CompiledProgram struct {
	Program  *bytecode.Program
	compiled map[string]*CompiledFn
}

// CompileRegistry attempts to compile every function in the program.
// Ineligibility is expected and common, so failures are skipped without
// diagnostics; the env-gated debug log records the outcome per function.
func CompileRegistry(program *bytecode.Program) *CompiledProgram {
	log := jitLogger()

	cp := &CompiledProgram{
		Program:  program,
		compiled: make(map[string]*CompiledFn),
	}
	for _, fn := range program.Functions {
		starts, retKind, ok := AnalyzeFunction(fn)
		if !ok {
			log.Debug().Str("fn", fn.Name).Msg("jit: ineligible")
			continue
		}
		compiled, ok := Compile(fn, starts, retKind)
		if !ok {
			log.Debug().Str("fn", fn.Name).Int("blocks", len(starts)).Msg("jit: codegen aborted")
			continue
		}
		cp.compiled[fn.Name] = compiled
		log.Debug().Str("fn", fn.Name).Str("symbol", compiled.Symbol).Int("blocks", len(starts)).Msg("jit: compiled")
	}
	log.Debug().Int("compiled", len(cp.compiled)).Int("total", len(program.Functions)).Msg("jit: registry ready")
	return cp
}

// Compiled returns the table entry for a function name, if any.
func (cp *CompiledProgram) Compiled(name string) (*CompiledFn, bool) {
	c, ok := cp.compiled[name]
	return c, ok
}

// Symbols lists the compiled entries in no particular order, for AOT
// emission consumers.
func (cp *CompiledProgram) Symbols() []*CompiledFn {
	out := make([]*CompiledFn, 0, len(cp.compiled))
	for _, c := range cp.compiled {
		out = append(out, c)
	}
	return out
}

// Runtime is the native call frontend: a dispatcher over the compiled
// table with the bytecode VM as fallback. It is a drop-in for the VM —
// same call surface, same errors — plus a fast path.
type Runtime struct {
	compiled *CompiledProgram
	fallback *vm.VM
}

// NewRuntime builds a runtime over an already-compiled program.
func NewRuntime(cp *CompiledProgram) *Runtime {
	return &Runtime{
		compiled: cp,
		fallback: vm.New(cp.Program),
	}
}

// SetOutput forwards to the fallback VM, which owns all observable I/O.
func (rt *Runtime) SetOutput(w io.Writer) { rt.fallback.SetOutput(w) }

// SetConfig forwards loaded app-config values to the fallback VM.
func (rt *Runtime) SetConfig(values map[string]object.Object) { rt.fallback.SetConfig(values) }

// HasFunction reports whether the program declares the function.
func (rt *Runtime) HasFunction(name string) bool {
	return rt.compiled.Program.HasFunction(name)
}

// HasJITFunction reports whether the function was compiled.
func (rt *Runtime) HasJITFunction(name string) bool {
	_, ok := rt.compiled.Compiled(name)
	return ok
}

// CallFunction executes a named function. Compiled functions whose
// arguments all project to raw scalars run on the fast path; everything
// else — unknown names, non-scalar arguments, arity mismatches — is
// delegated verbatim to the bytecode VM so user-visible behavior never
// depends on which path ran.
func (rt *Runtime) CallFunction(name string, args []object.Object) (object.Object, error) {
	if c, ok := rt.compiled.Compiled(name); ok && len(args) == c.Arity {
		if raw, ok := projectScalars(args); ok {
			result := c.invoke(raw)
			if c.RetKind == RetBool {
				return &object.Boolean{Value: result != 0}, nil
			}
			return &object.Integer{Value: result}, nil
		}
	}
	return rt.fallback.CallFunction(name, args)
}

// RunApp executes an app entry point, empty name meaning the first
// declared app.
func (rt *Runtime) RunApp(name string) error {
	if name == "" {
		apps := rt.compiled.Program.Apps
		if len(apps) == 0 {
			return rt.fallback.RunApp("")
		}
		name = apps[0]
	}
	_, err := rt.CallFunction(name, nil)
	return err
}

// projectScalars packs arguments into the raw buffer. Only Int and Bool
// project; any other variant makes the fast path inapplicable.
func projectScalars(args []object.Object) ([]int64, bool) {
	raw := make([]int64, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *object.Integer:
			raw[i] = v.Value
		case *object.Boolean:
			if v.Value {
				raw[i] = 1
			}
		default:
			return nil, false
		}
	}
	return raw, true
}

// jitLogger returns a diagnostics logger that only emits when the
// VELA_JIT_LOG environment variable is set.
func jitLogger() zerolog.Logger {
	if os.Getenv(config.JITLogEnvVar) == "" {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.DebugLevel)
}
