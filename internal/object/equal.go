package object

import "bytes"

// Equals performs a deep structural equality check between two Vela objects.
// Box cells compare by contents, not identity; tasks compare by id.
func Equals(a, b Object) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Type() != b.Type() {
		return false
	}

	switch av := a.(type) {
	case *Nil:
		_, ok := b.(*Nil)
		return ok
	case *Integer:
		bv, ok := b.(*Integer)
		return ok && av.Value == bv.Value
	case *Float:
		bv, ok := b.(*Float)
		return ok && av.Value == bv.Value
	case *Boolean:
		bv, ok := b.(*Boolean)
		return ok && av.Value == bv.Value
	case *String:
		bv, ok := b.(*String)
		return ok && av.Value == bv.Value
	case *Bytes:
		bv, ok := b.(*Bytes)
		return ok && bytes.Equal(av.Value, bv.Value)
	case *List:
		bv, ok := b.(*List)
		if !ok || len(av.Elements) != len(bv.Elements) {
			return false
		}
		for i := range av.Elements {
			if !Equals(av.Elements[i], bv.Elements[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv, ok := b.(*Map)
		if !ok || len(av.Pairs) != len(bv.Pairs) {
			return false
		}
		for k, v := range av.Pairs {
			other, present := bv.Pairs[k]
			if !present || !Equals(v, other) {
				return false
			}
		}
		return true
	case *Struct:
		bv, ok := b.(*Struct)
		if !ok || av.Name != bv.Name || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for k, v := range av.Fields {
			other, present := bv.Fields[k]
			if !present || !Equals(v, other) {
				return false
			}
		}
		return true
	case *Enum:
		bv, ok := b.(*Enum)
		if !ok || av.Name != bv.Name || av.Variant != bv.Variant {
			return false
		}
		if len(av.Payload) != len(bv.Payload) {
			return false
		}
		for i := range av.Payload {
			if !Equals(av.Payload[i], bv.Payload[i]) {
				return false
			}
		}
		return true
	case *Box:
		bv, ok := b.(*Box)
		return ok && Equals(av.Get(), bv.Get())
	case *Result:
		bv, ok := b.(*Result)
		return ok && av.Ok == bv.Ok && Equals(av.Value, bv.Value)
	case *Task:
		bv, ok := b.(*Task)
		return ok && av.ID == bv.ID
	}
	return false
}
