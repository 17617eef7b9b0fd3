package vm

import (
	"fmt"
	"strings"

	"github.com/vela-lang/vela/internal/object"
)

// registerBuiltins installs every builtin group on the VM. Builtins live
// in the same name space as program functions; program functions shadow
// them on lookup.
func (vm *VM) registerBuiltins() {
	vm.registerCoreBuiltins()
	vm.registerDBBuiltins()
	vm.registerHTTPBuiltins()
	vm.registerGrpcBuiltins()
	vm.registerYamlBuiltins()
}

func (vm *VM) registerCoreBuiltins() {
	vm.builtins["print"] = func(args []object.Object) (object.Object, error) {
		fmt.Fprint(vm.out, displayJoin(args))
		return &object.Nil{}, nil
	}
	vm.builtins["println"] = func(args []object.Object) (object.Object, error) {
		fmt.Fprintln(vm.out, displayJoin(args))
		return &object.Nil{}, nil
	}
	vm.builtins["len"] = builtinLen
	vm.builtins["str"] = builtinStr
	vm.builtins["typeOf"] = builtinTypeOf
	vm.builtins["assert"] = builtinAssert
	vm.builtins["ok"] = builtinOk
	vm.builtins["err"] = builtinErr
	vm.builtins["isOk"] = builtinIsOk
	vm.builtins["unwrap"] = builtinUnwrap
}

// displayJoin renders arguments for print/println. Strings print bare,
// everything else uses its Inspect form.
func displayJoin(args []object.Object) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if s, ok := a.(*object.String); ok {
			parts[i] = s.Value
		} else {
			parts[i] = a.Inspect()
		}
	}
	return strings.Join(parts, " ")
}

func builtinLen(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("len", 1, len(args))
	}
	switch v := args[0].(type) {
	case *object.String:
		return &object.Integer{Value: int64(len(v.Value))}, nil
	case *object.Bytes:
		return &object.Integer{Value: int64(len(v.Value))}, nil
	case *object.List:
		return &object.Integer{Value: int64(len(v.Elements))}, nil
	case *object.Map:
		return &object.Integer{Value: int64(len(v.Pairs))}, nil
	}
	return nil, fmt.Errorf("len: unsupported type %s", args[0].Type())
}

func builtinStr(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("str", 1, len(args))
	}
	if s, ok := args[0].(*object.String); ok {
		return s, nil
	}
	return &object.String{Value: args[0].Inspect()}, nil
}

func builtinTypeOf(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("typeOf", 1, len(args))
	}
	return &object.String{Value: string(args[0].Type())}, nil
}

// builtinAssert fails with the canonical assertion message. The message
// text is part of the backend-parity contract and must not vary per
// execution engine.
func builtinAssert(args []object.Object) (object.Object, error) {
	if len(args) != 2 {
		return nil, ErrInvalidCall("assert", 2, len(args))
	}
	cond, ok := args[0].(*object.Boolean)
	if !ok {
		return nil, fmt.Errorf("assert: condition must be Bool, got %s", args[0].Type())
	}
	msg, ok := args[1].(*object.String)
	if !ok {
		return nil, fmt.Errorf("assert: message must be String, got %s", args[1].Type())
	}
	if !cond.Value {
		return nil, fmt.Errorf("assertion failed: %s", msg.Value)
	}
	return &object.Nil{}, nil
}

// Result constructors and accessors.

func builtinOk(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("ok", 1, len(args))
	}
	return &object.Result{Ok: true, Value: args[0]}, nil
}

func builtinErr(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("err", 1, len(args))
	}
	return &object.Result{Ok: false, Value: args[0]}, nil
}

func builtinIsOk(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("isOk", 1, len(args))
	}
	res, ok := args[0].(*object.Result)
	if !ok {
		return nil, fmt.Errorf("isOk: expected Result, got %s", args[0].Type())
	}
	return &object.Boolean{Value: res.Ok}, nil
}

func builtinUnwrap(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("unwrap", 1, len(args))
	}
	res, ok := args[0].(*object.Result)
	if !ok {
		return nil, fmt.Errorf("unwrap: expected Result, got %s", args[0].Type())
	}
	if !res.Ok {
		return nil, fmt.Errorf("unwrap of err value: %s", res.Value.Inspect())
	}
	return res.Value, nil
}
