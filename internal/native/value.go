// Package native implements the compiled execution backend: an
// eligibility analysis over bytecode functions, a basic-block code
// generator for the flat int64 ABI, a tagged value representation for
// moving arbitrary values across the compiled boundary, and the runtime
// dispatcher that falls back to the bytecode VM whenever the fast path
// does not apply.
package native

import (
	"math"

	"github.com/vela-lang/vela/internal/object"
)

// Tag discriminates the payload of a NativeValue.
type Tag uint8

const (
	TagNull Tag = iota
	TagInt      // payload = two's-complement bits
	TagBool     // payload = 0 or 1
	TagFloat    // payload = IEEE-754 bit pattern
	TagHeap     // payload = index into a NativeHeap
)

// NativeValue is a fixed-size tagged value. Scalars live in the payload
// directly; composites live in an auxiliary heap and are referenced by
// index. Copy semantics, cheap to pass by value.
type NativeValue struct {
	Tag  Tag
	Bits uint64
}

func NullNative() NativeValue       { return NativeValue{Tag: TagNull} }
func IntNative(v int64) NativeValue { return NativeValue{Tag: TagInt, Bits: uint64(v)} }

func FloatNative(v float64) NativeValue {
	return NativeValue{Tag: TagFloat, Bits: math.Float64bits(v)}
}
func BoolNative(v bool) NativeValue {
	if v {
		return NativeValue{Tag: TagBool, Bits: 1}
	}
	return NativeValue{Tag: TagBool, Bits: 0}
}

// HeapKind discriminates HeapValue variants.
type HeapKind uint8

const (
	HeapString HeapKind = iota
	HeapBytes
	HeapList
	HeapMap
	HeapStruct
	HeapEnum
	HeapBox
	HeapTask
	HeapResult
)

// TaskPayload carries a task's folded completion result through the ABI.
// The three-way split (delivered value, delivered domain error, abnormal
// termination message) is what callers branch on and must survive
// conversion exactly.
type TaskPayload struct {
	Outcome object.TaskOutcome
	Value   NativeValue
	Message string
}

// HeapValue is one composite node. Which fields are meaningful depends
// on Kind.
type HeapValue struct {
	Kind    HeapKind
	Str     string                 // HeapString
	Raw     []byte                 // HeapBytes
	List    []NativeValue          // HeapList, HeapEnum payload
	Map     map[string]NativeValue // HeapMap, HeapStruct fields
	Name    string                 // HeapStruct, HeapEnum
	Variant string                 // HeapEnum
	Cell    NativeValue            // HeapBox, HeapResult
	Ok      bool                   // HeapResult
	Task    TaskPayload            // HeapTask
}

// NativeHeap is an append-only container of composite nodes. Handles are
// stable for the heap's lifetime; there is no reclamation. A heap is
// scoped to one conversion operation and never shared across calls.
type NativeHeap struct {
	slots []HeapValue
}

func NewHeap() *NativeHeap { return &NativeHeap{} }

// Len reports the number of allocated slots.
func (h *NativeHeap) Len() int { return len(h.slots) }

func (h *NativeHeap) alloc(v HeapValue) NativeValue {
	h.slots = append(h.slots, v)
	return NativeValue{Tag: TagHeap, Bits: uint64(len(h.slots) - 1)}
}

// Get returns the heap node for a handle, checking the range rather than
// trusting it.
func (h *NativeHeap) Get(idx uint64) (*HeapValue, bool) {
	if idx >= uint64(len(h.slots)) {
		return nil, false
	}
	return &h.slots[idx], true
}

// FromObject converts a dynamic value into the tagged representation,
// allocating one heap slot per composite node. The conversion is
// single-pass and depth-first; structurally equal subvalues are not
// shared and cyclic box graphs are not detected. The second result is
// false only for values with no native representation.
func FromObject(obj object.Object, heap *NativeHeap) (NativeValue, bool) {
	switch v := obj.(type) {
	case *object.Nil:
		return NullNative(), true
	case *object.Integer:
		return IntNative(v.Value), true
	case *object.Float:
		return FloatNative(v.Value), true
	case *object.Boolean:
		return BoolNative(v.Value), true
	case *object.String:
		return heap.alloc(HeapValue{Kind: HeapString, Str: v.Value}), true
	case *object.Bytes:
		raw := append([]byte(nil), v.Value...)
		return heap.alloc(HeapValue{Kind: HeapBytes, Raw: raw}), true
	case *object.List:
		elems := make([]NativeValue, len(v.Elements))
		for i, el := range v.Elements {
			nv, ok := FromObject(el, heap)
			if !ok {
				return NativeValue{}, false
			}
			elems[i] = nv
		}
		return heap.alloc(HeapValue{Kind: HeapList, List: elems}), true
	case *object.Map:
		pairs := make(map[string]NativeValue, len(v.Pairs))
		for k, el := range v.Pairs {
			nv, ok := FromObject(el, heap)
			if !ok {
				return NativeValue{}, false
			}
			pairs[k] = nv
		}
		return heap.alloc(HeapValue{Kind: HeapMap, Map: pairs}), true
	case *object.Struct:
		fields := make(map[string]NativeValue, len(v.Fields))
		for k, el := range v.Fields {
			nv, ok := FromObject(el, heap)
			if !ok {
				return NativeValue{}, false
			}
			fields[k] = nv
		}
		return heap.alloc(HeapValue{Kind: HeapStruct, Name: v.Name, Map: fields}), true
	case *object.Enum:
		payload := make([]NativeValue, len(v.Payload))
		for i, el := range v.Payload {
			nv, ok := FromObject(el, heap)
			if !ok {
				return NativeValue{}, false
			}
			payload[i] = nv
		}
		return heap.alloc(HeapValue{Kind: HeapEnum, Name: v.Name, Variant: v.Variant, List: payload}), true
	case *object.Box:
		// Conversion produces a fresh, unaliased cell: converting the
		// same box twice yields two independent heap nodes.
		inner, ok := FromObject(v.Get(), heap)
		if !ok {
			return NativeValue{}, false
		}
		return heap.alloc(HeapValue{Kind: HeapBox, Cell: inner}), true
	case *object.Result:
		inner, ok := FromObject(v.Value, heap)
		if !ok {
			return NativeValue{}, false
		}
		return heap.alloc(HeapValue{Kind: HeapResult, Ok: v.Ok, Cell: inner}), true
	case *object.Task:
		res := v.Await()
		payload := TaskPayload{Outcome: res.Outcome, Message: res.Message}
		if res.Outcome != object.TaskRuntime {
			inner, ok := FromObject(res.Value, heap)
			if !ok {
				return NativeValue{}, false
			}
			payload.Value = inner
		}
		return heap.alloc(HeapValue{Kind: HeapTask, Task: payload}), true
	}
	return NativeValue{}, false
}

// ToObject is the structural inverse of FromObject. It returns false if
// a heap handle is out of range.
func ToObject(nv NativeValue, heap *NativeHeap) (object.Object, bool) {
	switch nv.Tag {
	case TagNull:
		return &object.Nil{}, true
	case TagInt:
		return &object.Integer{Value: int64(nv.Bits)}, true
	case TagBool:
		return &object.Boolean{Value: nv.Bits != 0}, true
	case TagFloat:
		return &object.Float{Value: math.Float64frombits(nv.Bits)}, true
	case TagHeap:
		node, ok := heap.Get(nv.Bits)
		if !ok {
			return nil, false
		}
		return heapNodeToObject(node, heap)
	}
	return nil, false
}

func heapNodeToObject(node *HeapValue, heap *NativeHeap) (object.Object, bool) {
	switch node.Kind {
	case HeapString:
		return &object.String{Value: node.Str}, true
	case HeapBytes:
		return &object.Bytes{Value: append([]byte(nil), node.Raw...)}, true
	case HeapList:
		elems := make([]object.Object, len(node.List))
		for i, nv := range node.List {
			obj, ok := ToObject(nv, heap)
			if !ok {
				return nil, false
			}
			elems[i] = obj
		}
		return &object.List{Elements: elems}, true
	case HeapMap:
		pairs := make(map[string]object.Object, len(node.Map))
		for k, nv := range node.Map {
			obj, ok := ToObject(nv, heap)
			if !ok {
				return nil, false
			}
			pairs[k] = obj
		}
		return &object.Map{Pairs: pairs}, true
	case HeapStruct:
		fields := make(map[string]object.Object, len(node.Map))
		for k, nv := range node.Map {
			obj, ok := ToObject(nv, heap)
			if !ok {
				return nil, false
			}
			fields[k] = obj
		}
		return &object.Struct{Name: node.Name, Fields: fields}, true
	case HeapEnum:
		payload := make([]object.Object, len(node.List))
		for i, nv := range node.List {
			obj, ok := ToObject(nv, heap)
			if !ok {
				return nil, false
			}
			payload[i] = obj
		}
		return &object.Enum{Name: node.Name, Variant: node.Variant, Payload: payload}, true
	case HeapBox:
		inner, ok := ToObject(node.Cell, heap)
		if !ok {
			return nil, false
		}
		return object.NewBox(inner), true
	case HeapResult:
		inner, ok := ToObject(node.Cell, heap)
		if !ok {
			return nil, false
		}
		return &object.Result{Ok: node.Ok, Value: inner}, true
	case HeapTask:
		res := object.TaskResult{Outcome: node.Task.Outcome, Message: node.Task.Message}
		if node.Task.Outcome != object.TaskRuntime {
			inner, ok := ToObject(node.Task.Value, heap)
			if !ok {
				return nil, false
			}
			res.Value = inner
		}
		return object.NewCompletedTask(res), true
	}
	return nil, false
}
