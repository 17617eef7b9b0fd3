// Package backend models the execution engines as one capability:
// execute a named function with evaluated arguments, returning a value
// or a classified error. The native engine is a decorator over the VM —
// it consults its compiled-function table first and delegates the rest.
package backend

import (
	"io"

	"github.com/vela-lang/vela/internal/bytecode"
	"github.com/vela-lang/vela/internal/native"
	"github.com/vela-lang/vela/internal/object"
	"github.com/vela-lang/vela/internal/vm"
)

// Backend is one execution engine for a loaded program.
type Backend interface {
	// Name returns the backend name for display.
	Name() string

	// CallFunction executes a named function with already-evaluated
	// arguments.
	CallFunction(name string, args []object.Object) (object.Object, error)

	// RunApp executes an app entry point; empty name selects the first
	// declared app.
	RunApp(name string) error

	// SetOutput redirects the program's observable output.
	SetOutput(w io.Writer)

	// SetConfig overlays loaded app-config values.
	SetConfig(values map[string]object.Object)
}

// VMBackend executes everything on the bytecode VM.
type VMBackend struct {
	vm *vm.VM
}

func NewVMBackend(program *bytecode.Program) *VMBackend {
	return &VMBackend{vm: vm.New(program)}
}

func (b *VMBackend) Name() string { return "vm" }

func (b *VMBackend) CallFunction(name string, args []object.Object) (object.Object, error) {
	return b.vm.CallFunction(name, args)
}

func (b *VMBackend) RunApp(name string) error { return b.vm.RunApp(name) }

func (b *VMBackend) SetOutput(w io.Writer) { b.vm.SetOutput(w) }

func (b *VMBackend) SetConfig(values map[string]object.Object) { b.vm.SetConfig(values) }

// NativeBackend compiles eligible functions at load time and dispatches
// each call to machine code or the VM fallback.
type NativeBackend struct {
	rt *native.Runtime
}

func NewNativeBackend(program *bytecode.Program) *NativeBackend {
	return &NativeBackend{rt: native.NewRuntime(native.CompileRegistry(program))}
}

func (b *NativeBackend) Name() string { return "native" }

func (b *NativeBackend) CallFunction(name string, args []object.Object) (object.Object, error) {
	return b.rt.CallFunction(name, args)
}

func (b *NativeBackend) RunApp(name string) error { return b.rt.RunApp(name) }

func (b *NativeBackend) SetOutput(w io.Writer) { b.rt.SetOutput(w) }

func (b *NativeBackend) SetConfig(values map[string]object.Object) { b.rt.SetConfig(values) }

// HasJITFunction exposes the compiled-table membership query for
// verification tooling.
func (b *NativeBackend) HasJITFunction(name string) bool { return b.rt.HasJITFunction(name) }

// New selects a backend by name; unknown names fall back to the native
// engine, which is behaviorally identical to the VM.
func New(name string, program *bytecode.Program) Backend {
	if name == "vm" {
		return NewVMBackend(program)
	}
	return NewNativeBackend(program)
}
