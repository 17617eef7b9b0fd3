package native

import (
	"testing"

	"github.com/vela-lang/vela/internal/object"
)

func roundTrip(t *testing.T, v object.Object) object.Object {
	t.Helper()
	heap := NewHeap()
	nv, ok := FromObject(v, heap)
	if !ok {
		t.Fatalf("FromObject(%s) failed", v.Inspect())
	}
	back, ok := ToObject(nv, heap)
	if !ok {
		t.Fatalf("ToObject(%s) failed", v.Inspect())
	}
	return back
}

func TestRoundTripScalars(t *testing.T) {
	tests := []struct {
		name string
		in   object.Object
	}{
		{"nil", &object.Nil{}},
		{"int", &object.Integer{Value: 42}},
		{"negative int", &object.Integer{Value: -7}},
		{"float", &object.Float{Value: 3.5}},
		{"bool true", &object.Boolean{Value: true}},
		{"bool false", &object.Boolean{Value: false}},
		{"string", &object.String{Value: "hello"}},
		{"empty string", &object.String{Value: ""}},
		{"bytes", &object.Bytes{Value: []byte{0, 1, 255}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			back := roundTrip(t, tt.in)
			if !object.Equals(tt.in, back) {
				t.Errorf("round trip changed value: %s -> %s", tt.in.Inspect(), back.Inspect())
			}
		})
	}
}

func TestRoundTripComposites(t *testing.T) {
	list := &object.List{Elements: []object.Object{
		&object.Integer{Value: 1},
		&object.String{Value: "two"},
		&object.List{Elements: []object.Object{&object.Boolean{Value: true}}},
	}}
	m := &object.Map{Pairs: map[string]object.Object{
		"greeting": &object.String{Value: "hi"},
		"target":   &object.String{Value: "world"},
	}}
	st := &object.Struct{Name: "Point", Fields: map[string]object.Object{
		"x": &object.Integer{Value: 3},
		"y": &object.Integer{Value: 4},
	}}
	enum := &object.Enum{Name: "Shape", Variant: "Triangle", Payload: []object.Object{
		&object.Integer{Value: 3},
		&object.Integer{Value: 4},
		&object.Integer{Value: 5},
	}}
	resOk := &object.Result{Ok: true, Value: &object.Integer{Value: 9}}
	resErr := &object.Result{Ok: false, Value: &object.String{Value: "boom"}}

	for _, v := range []object.Object{list, m, st, enum, resOk, resErr} {
		back := roundTrip(t, v)
		if !object.Equals(v, back) {
			t.Errorf("round trip changed value: %s -> %s", v.Inspect(), back.Inspect())
		}
	}
}

func TestHeapLiteralFidelity(t *testing.T) {
	heap := NewHeap()

	list := &object.List{Elements: []object.Object{
		&object.String{Value: "alpha"},
		&object.String{Value: "beta"},
	}}
	nv, ok := FromObject(list, heap)
	if !ok {
		t.Fatal("FromObject list failed")
	}
	node, ok := heap.Get(nv.Bits)
	if !ok || node.Kind != HeapList {
		t.Fatalf("expected HeapList node")
	}
	if len(node.List) != 2 {
		t.Errorf("list length = %d, want 2", len(node.List))
	}

	enum := &object.Enum{Name: "Triple", Variant: "Of", Payload: []object.Object{
		&object.Integer{Value: 10},
		&object.Integer{Value: 20},
		&object.Integer{Value: 30},
	}}
	nv, ok = FromObject(enum, heap)
	if !ok {
		t.Fatal("FromObject enum failed")
	}
	node, ok = heap.Get(nv.Bits)
	if !ok || node.Kind != HeapEnum {
		t.Fatalf("expected HeapEnum node")
	}
	if node.Name != "Triple" || node.Variant != "Of" {
		t.Errorf("enum identity = %s.%s", node.Name, node.Variant)
	}
	// Payload order must survive exactly.
	for i, want := range []int64{10, 20, 30} {
		if node.List[i].Tag != TagInt || int64(node.List[i].Bits) != want {
			t.Errorf("payload[%d] = %v, want %d", i, node.List[i], want)
		}
	}

	st := &object.Struct{Name: "Config", Fields: map[string]object.Object{
		"host": &object.String{Value: "localhost"},
		"port": &object.Integer{Value: 8080},
	}}
	nv, ok = FromObject(st, heap)
	if !ok {
		t.Fatal("FromObject struct failed")
	}
	node, ok = heap.Get(nv.Bits)
	if !ok || node.Kind != HeapStruct || node.Name != "Config" {
		t.Fatalf("expected HeapStruct Config node")
	}
	if _, present := node.Map["host"]; !present {
		t.Error("field host missing")
	}
	if _, present := node.Map["port"]; !present {
		t.Error("field port missing")
	}
}

func TestTaskOutcomePreserved(t *testing.T) {
	tests := []struct {
		name string
		task *object.Task
	}{
		{"ok", object.NewCompletedTask(object.TaskResult{Outcome: object.TaskOk, Value: &object.Integer{Value: 5}})},
		{"err", object.NewCompletedTask(object.TaskResult{Outcome: object.TaskErr, Value: &object.String{Value: "domain"}})},
		{"runtime", object.NewCompletedTask(object.TaskResult{Outcome: object.TaskRuntime, Message: "crashed"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			back := roundTrip(t, tt.task)
			task, ok := back.(*object.Task)
			if !ok {
				t.Fatalf("expected Task, got %s", back.Type())
			}
			got := task.Await()
			want := tt.task.Await()
			if got.Outcome != want.Outcome {
				t.Errorf("outcome = %d, want %d", got.Outcome, want.Outcome)
			}
			if want.Outcome == object.TaskRuntime {
				if got.Message != want.Message {
					t.Errorf("message = %q, want %q", got.Message, want.Message)
				}
			} else if !object.Equals(got.Value, want.Value) {
				t.Errorf("value = %s, want %s", got.Value.Inspect(), want.Value.Inspect())
			}
		})
	}
}

func TestBoxConversionProducesFreshCell(t *testing.T) {
	box := object.NewBox(&object.Integer{Value: 1})
	back := roundTrip(t, box)

	cell, ok := back.(*object.Box)
	if !ok {
		t.Fatalf("expected Box, got %s", back.Type())
	}
	if !object.Equals(cell.Get(), box.Get()) {
		t.Errorf("contents = %s, want %s", cell.Get().Inspect(), box.Get().Inspect())
	}

	// The converted cell is independent: mutations do not propagate to
	// the original.
	cell.Set(&object.Integer{Value: 2})
	if n := box.Get().(*object.Integer); n.Value != 1 {
		t.Errorf("original box mutated through converted cell")
	}
}

func TestHeapHandleRangeChecked(t *testing.T) {
	heap := NewHeap()
	_, ok := ToObject(NativeValue{Tag: TagHeap, Bits: 99}, heap)
	if ok {
		t.Error("out-of-range heap handle must not convert")
	}
}

func TestNoSharingOfEqualSubvalues(t *testing.T) {
	// Two structurally equal strings get two heap slots: the conversion
	// does not deduplicate.
	heap := NewHeap()
	list := &object.List{Elements: []object.Object{
		&object.String{Value: "same"},
		&object.String{Value: "same"},
	}}
	if _, ok := FromObject(list, heap); !ok {
		t.Fatal("FromObject failed")
	}
	if heap.Len() != 3 { // two strings plus the list node
		t.Errorf("heap slots = %d, want 3", heap.Len())
	}
}
