package vm

import (
	"strings"

	"github.com/vela-lang/vela/internal/bytecode"
	"github.com/vela-lang/vela/internal/object"
)

// execLoop runs frames until the frame count drops back to stopAt, then
// returns the value produced by the last frame to return.
func (vm *VM) execLoop(stopAt int) (Value, error) {
	for {
		frame := vm.currentFrame()
		if frame.ip < 0 || frame.ip >= len(frame.fn.Code) {
			return NilVal(), vm.runtimeError("%v", errTruncatedBytecode)
		}
		in := frame.fn.Code[frame.ip]
		frame.ip++

		switch in.Op {
		case bytecode.OpConstInt:
			if err := vm.push(IntVal(in.Int)); err != nil {
				return NilVal(), err
			}
		case bytecode.OpConstFloat:
			if err := vm.push(FloatVal(in.Float)); err != nil {
				return NilVal(), err
			}
		case bytecode.OpConstBool:
			if err := vm.push(BoolVal(in.Int != 0)); err != nil {
				return NilVal(), err
			}
		case bytecode.OpConstUnit:
			if err := vm.push(NilVal()); err != nil {
				return NilVal(), err
			}
		case bytecode.OpConstStr:
			if err := vm.push(ObjVal(&object.String{Value: in.Str})); err != nil {
				return NilVal(), err
			}

		case bytecode.OpLoadLocal:
			slot := int(in.Int)
			if slot < 0 || slot >= frame.fn.NumLocals {
				return NilVal(), vm.runtimeError("local slot %d out of range", slot)
			}
			if err := vm.push(vm.stack[frame.base+slot]); err != nil {
				return NilVal(), err
			}
		case bytecode.OpStoreLocal:
			slot := int(in.Int)
			if slot < 0 || slot >= frame.fn.NumLocals {
				return NilVal(), vm.runtimeError("local slot %d out of range", slot)
			}
			v, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			vm.stack[frame.base+slot] = v

		case bytecode.OpPop:
			if _, err := vm.pop(); err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
		case bytecode.OpDup:
			v, err := vm.peek()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			if err := vm.push(v); err != nil {
				return NilVal(), err
			}

		case bytecode.OpNeg:
			v, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			switch v.Type {
			case ValInt:
				err = vm.push(IntVal(-v.AsInt()))
			case ValFloat:
				err = vm.push(FloatVal(-v.AsFloat()))
			default:
				return NilVal(), vm.runtimeError("operand to NEG must be numeric, got %s", v.TypeName())
			}
			if err != nil {
				return NilVal(), err
			}
		case bytecode.OpNot:
			v, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			if !v.IsBool() {
				return NilVal(), vm.runtimeError("operand to NOT must be Bool, got %s", v.TypeName())
			}
			if err := vm.push(BoolVal(!v.AsBool())); err != nil {
				return NilVal(), err
			}

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
			if err := vm.binaryArith(in.Op); err != nil {
				return NilVal(), err
			}

		case bytecode.OpEq, bytecode.OpNe:
			b, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			a, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			eq := a.Equals(b)
			if in.Op == bytecode.OpNe {
				eq = !eq
			}
			if err := vm.push(BoolVal(eq)); err != nil {
				return NilVal(), err
			}

		case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			if err := vm.binaryCompare(in.Op); err != nil {
				return NilVal(), err
			}

		case bytecode.OpAnd, bytecode.OpOr:
			b, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			a, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			if !a.IsBool() || !b.IsBool() {
				return NilVal(), vm.runtimeError("operands to %s must be Bool", in.Op.Name())
			}
			var r bool
			if in.Op == bytecode.OpAnd {
				r = a.AsBool() && b.AsBool()
			} else {
				r = a.AsBool() || b.AsBool()
			}
			if err := vm.push(BoolVal(r)); err != nil {
				return NilVal(), err
			}

		case bytecode.OpJump:
			target := int(in.Int)
			if target < 0 || target > len(frame.fn.Code) {
				return NilVal(), vm.runtimeError("invalid jump target %d", target)
			}
			frame.ip = target
		case bytecode.OpJumpIfFalse:
			cond, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			if !cond.IsBool() {
				return NilVal(), vm.runtimeError("condition must be Bool, got %s", cond.TypeName())
			}
			if !cond.AsBool() {
				target := int(in.Int)
				if target < 0 || target > len(frame.fn.Code) {
					return NilVal(), vm.runtimeError("invalid jump target %d", target)
				}
				frame.ip = target
			}

		case bytecode.OpCall:
			if err := vm.execCall(in); err != nil {
				return NilVal(), err
			}

		case bytecode.OpReturn:
			ret, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			vm.sp = frame.base
			vm.frameCount--
			if vm.frameCount == stopAt {
				return ret, nil
			}
			if err := vm.push(ret); err != nil {
				return NilVal(), err
			}

		case bytecode.OpConcat:
			if err := vm.execConcat(); err != nil {
				return NilVal(), err
			}
		case bytecode.OpIndex:
			if err := vm.execIndex(); err != nil {
				return NilVal(), err
			}
		case bytecode.OpField:
			v, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			st, ok := v.Obj.(*object.Struct)
			if v.Type != ValObj || !ok {
				return NilVal(), vm.runtimeError("field access on non-struct %s", v.TypeName())
			}
			fv, present := st.Fields[in.Str]
			if !present {
				return NilVal(), vm.runtimeError("unknown field %s on %s", in.Str, st.Name)
			}
			if err := vm.push(ObjectToValue(fv)); err != nil {
				return NilVal(), err
			}

		case bytecode.OpMakeList:
			n := int(in.Int)
			elems := make([]object.Object, n)
			for i := n - 1; i >= 0; i-- {
				v, err := vm.pop()
				if err != nil {
					return NilVal(), vm.runtimeError("%v", err)
				}
				elems[i] = v.AsObject()
			}
			if err := vm.push(ObjVal(&object.List{Elements: elems})); err != nil {
				return NilVal(), err
			}
		case bytecode.OpMakeMap:
			pairs := make(map[string]object.Object, len(in.Syms))
			for i := len(in.Syms) - 1; i >= 0; i-- {
				v, err := vm.pop()
				if err != nil {
					return NilVal(), vm.runtimeError("%v", err)
				}
				pairs[in.Syms[i]] = v.AsObject()
			}
			if err := vm.push(ObjVal(&object.Map{Pairs: pairs})); err != nil {
				return NilVal(), err
			}
		case bytecode.OpMakeStruct:
			fields := make(map[string]object.Object, len(in.Syms))
			for i := len(in.Syms) - 1; i >= 0; i-- {
				v, err := vm.pop()
				if err != nil {
					return NilVal(), vm.runtimeError("%v", err)
				}
				fields[in.Syms[i]] = v.AsObject()
			}
			if err := vm.push(ObjVal(&object.Struct{Name: in.Str, Fields: fields})); err != nil {
				return NilVal(), err
			}
		case bytecode.OpMakeEnum:
			if len(in.Syms) == 0 {
				return NilVal(), vm.runtimeError("MAKE_ENUM without variant name")
			}
			n := int(in.Int)
			payload := make([]object.Object, n)
			for i := n - 1; i >= 0; i-- {
				v, err := vm.pop()
				if err != nil {
					return NilVal(), vm.runtimeError("%v", err)
				}
				payload[i] = v.AsObject()
			}
			enum := &object.Enum{Name: in.Str, Variant: in.Syms[0], Payload: payload}
			if err := vm.push(ObjVal(enum)); err != nil {
				return NilVal(), err
			}

		case bytecode.OpMatchTag:
			v, err := vm.peek()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			enum, ok := v.Obj.(*object.Enum)
			if v.Type != ValObj || !ok {
				return NilVal(), vm.runtimeError("MATCH_TAG on non-enum %s", v.TypeName())
			}
			if err := vm.push(BoolVal(enum.Variant == in.Str)); err != nil {
				return NilVal(), err
			}
		case bytecode.OpEnumField:
			v, err := vm.peek()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			enum, ok := v.Obj.(*object.Enum)
			if v.Type != ValObj || !ok {
				return NilVal(), vm.runtimeError("ENUM_FIELD on non-enum %s", v.TypeName())
			}
			idx := int(in.Int)
			if idx < 0 || idx >= len(enum.Payload) {
				return NilVal(), vm.runtimeError("enum payload index %d out of range", idx)
			}
			if err := vm.push(ObjectToValue(enum.Payload[idx])); err != nil {
				return NilVal(), err
			}

		case bytecode.OpConfigGet:
			val, ok := vm.config[in.Str]
			if !ok {
				return NilVal(), vm.runtimeError("unknown config field: %s", in.Str)
			}
			if err := vm.push(ObjectToValue(val)); err != nil {
				return NilVal(), err
			}

		case bytecode.OpBox:
			v, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			if err := vm.push(ObjVal(object.NewBox(v.AsObject()))); err != nil {
				return NilVal(), err
			}
		case bytecode.OpBoxGet:
			v, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			box, ok := v.Obj.(*object.Box)
			if v.Type != ValObj || !ok {
				return NilVal(), vm.runtimeError("BOX_GET on non-box %s", v.TypeName())
			}
			if err := vm.push(ObjectToValue(box.Get())); err != nil {
				return NilVal(), err
			}
		case bytecode.OpBoxSet:
			val, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			bv, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			box, ok := bv.Obj.(*object.Box)
			if bv.Type != ValObj || !ok {
				return NilVal(), vm.runtimeError("BOX_SET on non-box %s", bv.TypeName())
			}
			box.Set(val.AsObject())
			if err := vm.push(NilVal()); err != nil {
				return NilVal(), err
			}

		case bytecode.OpSpawn:
			fn := vm.program.Function(in.Str)
			if fn == nil {
				return NilVal(), ErrUnknownFunction(in.Str)
			}
			argc := int(in.Int)
			if argc != fn.Arity() {
				return NilVal(), ErrInvalidCall(in.Str, fn.Arity(), argc)
			}
			args := make([]object.Object, argc)
			for i := argc - 1; i >= 0; i-- {
				v, err := vm.pop()
				if err != nil {
					return NilVal(), vm.runtimeError("%v", err)
				}
				args[i] = v.AsObject()
			}
			task := vm.spawnTask(fn, args)
			if err := vm.push(ObjVal(task)); err != nil {
				return NilVal(), err
			}
		case bytecode.OpAwait:
			v, err := vm.pop()
			if err != nil {
				return NilVal(), vm.runtimeError("%v", err)
			}
			task, ok := v.Obj.(*object.Task)
			if v.Type != ValObj || !ok {
				return NilVal(), vm.runtimeError("AWAIT on non-task %s", v.TypeName())
			}
			res := task.Await()
			switch res.Outcome {
			case object.TaskOk:
				err = vm.push(ObjVal(&object.Result{Ok: true, Value: res.Value}))
			case object.TaskErr:
				err = vm.push(ObjVal(&object.Result{Ok: false, Value: res.Value}))
			case object.TaskRuntime:
				return NilVal(), vm.runtimeError("task failed: %s", res.Message)
			}
			if err != nil {
				return NilVal(), err
			}

		default:
			return NilVal(), vm.runtimeError("unknown opcode %d", in.Op)
		}
	}
}

// execCall dispatches OpCall to a program function or a builtin.
func (vm *VM) execCall(in bytecode.Instr) error {
	argc := int(in.Int)

	if fn := vm.program.Function(in.Str); fn != nil {
		if argc != fn.Arity() {
			return ErrInvalidCall(in.Str, fn.Arity(), argc)
		}
		args := make([]Value, argc)
		for i := argc - 1; i >= 0; i-- {
			v, err := vm.pop()
			if err != nil {
				return vm.runtimeError("%v", err)
			}
			args[i] = v
		}
		return vm.pushFrame(fn, args)
	}

	builtin, ok := vm.builtins[in.Str]
	if !ok {
		return ErrUnknownFunction(in.Str)
	}
	args := make([]object.Object, argc)
	for i := argc - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			return vm.runtimeError("%v", err)
		}
		args[i] = v.AsObject()
	}
	result, err := builtin(args)
	if err != nil {
		return err
	}
	if result == nil {
		result = &object.Nil{}
	}
	return vm.push(ObjectToValue(result))
}

// binaryArith pops two numeric operands and pushes the result, promoting
// to Float when either side is a Float.
func (vm *VM) binaryArith(op bytecode.Op) error {
	b, err := vm.pop()
	if err != nil {
		return vm.runtimeError("%v", err)
	}
	a, err := vm.pop()
	if err != nil {
		return vm.runtimeError("%v", err)
	}

	if a.IsInt() && b.IsInt() {
		x, y := a.AsInt(), b.AsInt()
		var r int64
		switch op {
		case bytecode.OpAdd:
			r = x + y
		case bytecode.OpSub:
			r = x - y
		case bytecode.OpMul:
			r = x * y
		case bytecode.OpDiv:
			if y == 0 {
				return vm.runtimeError("division by zero")
			}
			r = x / y
		case bytecode.OpMod:
			if y == 0 {
				return vm.runtimeError("division by zero")
			}
			r = x % y
		}
		return vm.push(IntVal(r))
	}

	if (a.IsFloat() || a.IsInt()) && (b.IsFloat() || b.IsInt()) {
		x := a.AsFloat()
		if a.IsInt() {
			x = float64(a.AsInt())
		}
		y := b.AsFloat()
		if b.IsInt() {
			y = float64(b.AsInt())
		}
		var r float64
		switch op {
		case bytecode.OpAdd:
			r = x + y
		case bytecode.OpSub:
			r = x - y
		case bytecode.OpMul:
			r = x * y
		case bytecode.OpDiv:
			if y == 0 {
				return vm.runtimeError("division by zero")
			}
			r = x / y
		case bytecode.OpMod:
			return vm.runtimeError("operands to MOD must be Int")
		}
		return vm.push(FloatVal(r))
	}

	return vm.runtimeError("operands to %s must be numeric, got %s and %s",
		op.Name(), a.TypeName(), b.TypeName())
}

// binaryCompare pops two ordered operands (numbers or strings) and pushes
// the boolean verdict.
func (vm *VM) binaryCompare(op bytecode.Op) error {
	b, err := vm.pop()
	if err != nil {
		return vm.runtimeError("%v", err)
	}
	a, err := vm.pop()
	if err != nil {
		return vm.runtimeError("%v", err)
	}

	var cmp int
	switch {
	case a.IsInt() && b.IsInt():
		x, y := a.AsInt(), b.AsInt()
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	case (a.IsFloat() || a.IsInt()) && (b.IsFloat() || b.IsInt()):
		x := a.AsFloat()
		if a.IsInt() {
			x = float64(a.AsInt())
		}
		y := b.AsFloat()
		if b.IsInt() {
			y = float64(b.AsInt())
		}
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	default:
		as, aok := a.Obj.(*object.String)
		bs, bok := b.Obj.(*object.String)
		if a.Type != ValObj || b.Type != ValObj || !aok || !bok {
			return vm.runtimeError("operands to %s must be comparable, got %s and %s",
				op.Name(), a.TypeName(), b.TypeName())
		}
		cmp = strings.Compare(as.Value, bs.Value)
	}

	var r bool
	switch op {
	case bytecode.OpLt:
		r = cmp < 0
	case bytecode.OpLe:
		r = cmp <= 0
	case bytecode.OpGt:
		r = cmp > 0
	case bytecode.OpGe:
		r = cmp >= 0
	}
	return vm.push(BoolVal(r))
}

// execConcat handles ++ on strings, lists and bytes.
func (vm *VM) execConcat() error {
	b, err := vm.pop()
	if err != nil {
		return vm.runtimeError("%v", err)
	}
	a, err := vm.pop()
	if err != nil {
		return vm.runtimeError("%v", err)
	}
	if a.Type == ValObj && b.Type == ValObj {
		switch av := a.Obj.(type) {
		case *object.String:
			if bv, ok := b.Obj.(*object.String); ok {
				return vm.push(ObjVal(&object.String{Value: av.Value + bv.Value}))
			}
		case *object.List:
			if bv, ok := b.Obj.(*object.List); ok {
				elems := make([]object.Object, 0, len(av.Elements)+len(bv.Elements))
				elems = append(elems, av.Elements...)
				elems = append(elems, bv.Elements...)
				return vm.push(ObjVal(&object.List{Elements: elems}))
			}
		case *object.Bytes:
			if bv, ok := b.Obj.(*object.Bytes); ok {
				joined := make([]byte, 0, len(av.Value)+len(bv.Value))
				joined = append(joined, av.Value...)
				joined = append(joined, bv.Value...)
				return vm.push(ObjVal(&object.Bytes{Value: joined}))
			}
		}
	}
	return vm.runtimeError("operands to CONCAT must both be String, List or Bytes, got %s and %s",
		a.TypeName(), b.TypeName())
}

// execIndex handles a[i] on lists, maps and bytes.
func (vm *VM) execIndex() error {
	idx, err := vm.pop()
	if err != nil {
		return vm.runtimeError("%v", err)
	}
	cont, err := vm.pop()
	if err != nil {
		return vm.runtimeError("%v", err)
	}
	if cont.Type != ValObj {
		return vm.runtimeError("cannot index %s", cont.TypeName())
	}
	switch c := cont.Obj.(type) {
	case *object.List:
		if !idx.IsInt() {
			return vm.runtimeError("list index must be Int, got %s", idx.TypeName())
		}
		i := idx.AsInt()
		if i < 0 || i >= int64(len(c.Elements)) {
			return vm.runtimeError("index out of range: %d", i)
		}
		return vm.push(ObjectToValue(c.Elements[i]))
	case *object.Map:
		key, ok := idx.Obj.(*object.String)
		if idx.Type != ValObj || !ok {
			return vm.runtimeError("map key must be String, got %s", idx.TypeName())
		}
		v, present := c.Pairs[key.Value]
		if !present {
			return vm.runtimeError("unknown key: %s", key.Value)
		}
		return vm.push(ObjectToValue(v))
	case *object.Bytes:
		if !idx.IsInt() {
			return vm.runtimeError("bytes index must be Int, got %s", idx.TypeName())
		}
		i := idx.AsInt()
		if i < 0 || i >= int64(len(c.Value)) {
			return vm.runtimeError("index out of range: %d", i)
		}
		return vm.push(IntVal(int64(c.Value[i])))
	}
	return vm.runtimeError("cannot index %s", cont.TypeName())
}
