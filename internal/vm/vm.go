// Package vm implements the stack-based bytecode virtual machine for Vela.
// It executes the full instruction set and serves as both the fallback
// executor and the correctness oracle for the native backend.
package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vela-lang/vela/internal/bytecode"
	"github.com/vela-lang/vela/internal/object"
)

var errStackUnderflow = errors.New("stack underflow")
var errTruncatedBytecode = errors.New("truncated bytecode")

// Initial sizes for stack and frames
const InitialStackSize = 2048
const InitialFrameCount = 256

// MaxFrameCount bounds call depth to prevent runaway recursion.
const MaxFrameCount = 4096

// MaxStackSize bounds the operand stack to prevent OOM.
const MaxStackSize = 1024 * 1024

// CallFrame represents a single ongoing function call
type CallFrame struct {
	fn   *bytecode.Function
	ip   int // Instruction pointer within fn.Code
	base int // Where this frame's locals start in the stack
}

// BuiltinFn is a Go function exposed to Vela programs.
type BuiltinFn func(args []object.Object) (object.Object, error)

// VM is the virtual machine that executes a lowered Program.
type VM struct {
	program *bytecode.Program

	stack []Value
	sp    int // Stack pointer (points to next free slot)

	frames     []CallFrame
	frameCount int

	builtins map[string]BuiltinFn

	// Config values served by OpConfigGet: program defaults overlaid with
	// the loaded app config.
	config map[string]object.Object

	out io.Writer

	// Context for cancellation of task-spawned work
	Context context.Context
}

// New creates a VM for a program with the standard builtins registered.
func New(program *bytecode.Program) *VM {
	vm := &VM{
		program:  program,
		stack:    make([]Value, InitialStackSize),
		frames:   make([]CallFrame, InitialFrameCount),
		builtins: make(map[string]BuiltinFn),
		config:   make(map[string]object.Object),
		out:      os.Stdout,
		Context:  context.Background(),
	}
	vm.registerBuiltins()
	vm.loadConfigDefaults()
	return vm
}

// Program returns the program this VM executes.
func (vm *VM) Program() *bytecode.Program { return vm.program }

// SetOutput sets the output writer for the VM (defaults to os.Stdout).
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// SetContext sets the context for cancellation.
func (vm *VM) SetContext(ctx context.Context) {
	vm.Context = ctx
}

// SetConfig overlays loaded app-config values over the program defaults.
func (vm *VM) SetConfig(values map[string]object.Object) {
	for k, v := range values {
		vm.config[k] = v
	}
}

// RegisterBuiltin installs or replaces a builtin function.
func (vm *VM) RegisterBuiltin(name string, fn BuiltinFn) {
	vm.builtins[name] = fn
}

func (vm *VM) loadConfigDefaults() {
	if vm.program == nil {
		return
	}
	for k, raw := range vm.program.ConfigDefaults {
		vm.config[k] = goScalarToObject(raw)
	}
}

// goScalarToObject lifts a plain Go scalar (as stored in Program config
// metadata) into the object domain.
func goScalarToObject(raw interface{}) object.Object {
	switch v := raw.(type) {
	case nil:
		return &object.Nil{}
	case bool:
		return &object.Boolean{Value: v}
	case int:
		return &object.Integer{Value: int64(v)}
	case int64:
		return &object.Integer{Value: v}
	case float64:
		return &object.Float{Value: v}
	case string:
		return &object.String{Value: v}
	default:
		return &object.String{Value: fmt.Sprintf("%v", v)}
	}
}

// Stack helpers

func (vm *VM) push(v Value) error {
	if vm.sp >= MaxStackSize {
		return vm.runtimeError("stack overflow")
	}
	if vm.sp >= len(vm.stack) {
		grown := make([]Value, len(vm.stack)*2)
		copy(grown, vm.stack[:vm.sp])
		vm.stack = grown
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() (Value, error) {
	if vm.sp == 0 || (vm.frameCount > 0 && vm.sp <= vm.currentFrame().base+vm.currentFrame().fn.NumLocals) {
		return NilVal(), errStackUnderflow
	}
	vm.sp--
	return vm.stack[vm.sp], nil
}

func (vm *VM) peek() (Value, error) {
	if vm.sp == 0 {
		return NilVal(), errStackUnderflow
	}
	return vm.stack[vm.sp-1], nil
}

func (vm *VM) currentFrame() *CallFrame {
	return &vm.frames[vm.frameCount-1]
}

// runtimeError formats an execution error with the current code location.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if vm.frameCount > 0 {
		f := vm.currentFrame()
		return fmt.Errorf("runtime error: %s (in %s at %d)", msg, f.fn.Name, f.ip)
	}
	return fmt.Errorf("runtime error: %s", msg)
}
