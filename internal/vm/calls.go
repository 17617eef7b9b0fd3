package vm

import (
	"fmt"

	"github.com/vela-lang/vela/internal/bytecode"
	"github.com/vela-lang/vela/internal/object"
)

// ErrInvalidCall builds the canonical arity-mismatch error. Every backend
// reports call-shape errors with exactly this text so that user-visible
// diagnostics stay backend-independent.
func ErrInvalidCall(name string, want, got int) error {
	return fmt.Errorf("invalid call to %s: expected %d arguments, got %d", name, want, got)
}

// ErrUnknownFunction builds the canonical unknown-callee error.
func ErrUnknownFunction(name string) error {
	return fmt.Errorf("unknown function: %s", name)
}

// CallFunction calls a named function with already-evaluated arguments and
// returns its result. This is the entry point used by the CLI, the native
// backend's fallback path, and the parity test suites.
func (vm *VM) CallFunction(name string, args []object.Object) (object.Object, error) {
	fn := vm.program.Function(name)
	if fn == nil {
		if builtin, ok := vm.builtins[name]; ok {
			return builtin(args)
		}
		return nil, ErrUnknownFunction(name)
	}
	if len(args) != fn.Arity() {
		return nil, ErrInvalidCall(name, fn.Arity(), len(args))
	}

	values := make([]Value, len(args))
	for i, a := range args {
		values[i] = ObjectToValue(a)
	}

	result, err := vm.run(fn, values)
	if err != nil {
		return nil, err
	}
	return result.AsObject(), nil
}

// RunApp executes an app entry point. An empty name selects the program's
// first declared app.
func (vm *VM) RunApp(name string) error {
	if name == "" {
		if len(vm.program.Apps) == 0 {
			return fmt.Errorf("program declares no apps")
		}
		name = vm.program.Apps[0]
	}
	_, err := vm.CallFunction(name, nil)
	return err
}

// pushFrame establishes a new call frame with args already evaluated.
// Locals beyond the parameters start out as Nil.
func (vm *VM) pushFrame(fn *bytecode.Function, args []Value) error {
	if vm.frameCount >= MaxFrameCount {
		return fmt.Errorf("runtime error: call stack exhausted calling %s", fn.Name)
	}
	base := vm.sp
	for _, a := range args {
		if err := vm.push(a); err != nil {
			return err
		}
	}
	for i := len(args); i < fn.NumLocals; i++ {
		if err := vm.push(NilVal()); err != nil {
			return err
		}
	}
	if vm.frameCount >= len(vm.frames) {
		grown := make([]CallFrame, len(vm.frames)*2)
		copy(grown, vm.frames[:vm.frameCount])
		vm.frames = grown
	}
	vm.frames[vm.frameCount] = CallFrame{fn: fn, ip: 0, base: base}
	vm.frameCount++
	return nil
}

// run executes fn to completion on this VM and returns its value. The
// operand stack must be balanced around the call; run restores it even on
// error so the VM stays usable (the REPL-style callers depend on that).
func (vm *VM) run(fn *bytecode.Function, args []Value) (Value, error) {
	savedSp := vm.sp
	savedFrames := vm.frameCount

	if err := vm.pushFrame(fn, args); err != nil {
		return NilVal(), err
	}

	result, err := vm.execLoop(savedFrames)
	if err != nil {
		vm.sp = savedSp
		vm.frameCount = savedFrames
		return NilVal(), err
	}
	return result, nil
}

// spawnTask starts fn in a fresh VM on its own goroutine and returns the
// task handle. The spawned VM shares the immutable program, the builtin
// table and the config view, but owns its stack: tasks never race on
// interpreter state.
func (vm *VM) spawnTask(fn *bytecode.Function, args []object.Object) *object.Task {
	task := object.NewTask()

	worker := &VM{
		program:  vm.program,
		stack:    make([]Value, InitialStackSize),
		frames:   make([]CallFrame, InitialFrameCount),
		builtins: vm.builtins,
		config:   vm.config,
		out:      vm.out,
		Context:  vm.Context,
	}

	go func() {
		result, err := worker.CallFunction(fn.Name, args)
		switch {
		case err != nil:
			task.Complete(object.TaskResult{Outcome: object.TaskRuntime, Message: err.Error()})
		default:
			if res, ok := result.(*object.Result); ok && !res.Ok {
				task.Complete(object.TaskResult{Outcome: object.TaskErr, Value: res.Value})
				return
			}
			task.Complete(object.TaskResult{Outcome: object.TaskOk, Value: result})
		}
	}()

	return task
}
