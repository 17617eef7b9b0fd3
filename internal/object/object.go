// Package object defines the dynamic value domain shared by every Vela
// execution backend. The tree-walk interpreter, the bytecode VM and the
// native backend all exchange values of this one sum type; keeping a single
// domain is what makes the cross-backend parity contract checkable at all.
package object

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ObjectType identifies the runtime variant of an Object.
type ObjectType string

const (
	NIL_OBJ        ObjectType = "NIL"
	INTEGER_OBJ    ObjectType = "INTEGER"
	FLOAT_OBJ      ObjectType = "FLOAT"
	BOOLEAN_OBJ    ObjectType = "BOOLEAN"
	STRING_OBJ     ObjectType = "STRING"
	BYTES_OBJ      ObjectType = "BYTES"
	LIST_OBJ       ObjectType = "LIST"
	MAP_OBJ        ObjectType = "MAP"
	STRUCT_OBJ     ObjectType = "STRUCT"
	ENUM_OBJ       ObjectType = "ENUM"
	BOX_OBJ        ObjectType = "BOX"
	TASK_OBJ       ObjectType = "TASK"
	RESULT_OK_OBJ  ObjectType = "RESULT_OK"
	RESULT_ERR_OBJ ObjectType = "RESULT_ERR"
)

type Object interface {
	Type() ObjectType
	Inspect() string
	Hash() uint32
}

// Helper for hashing strings
func hashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Nil
type Nil struct{}

func (n *Nil) Type() ObjectType { return NIL_OBJ }
func (n *Nil) Inspect() string  { return "Nil" }
func (n *Nil) Hash() uint32     { return 0 }

// Integer
type Integer struct {
	Value int64
}

func (i *Integer) Type() ObjectType { return INTEGER_OBJ }
func (i *Integer) Inspect() string  { return fmt.Sprintf("%d", i.Value) }
func (i *Integer) Hash() uint32 {
	return uint32(i.Value ^ (i.Value >> 32))
}

// Float
type Float struct {
	Value float64
}

func (f *Float) Type() ObjectType { return FLOAT_OBJ }
func (f *Float) Inspect() string  { return fmt.Sprintf("%g", f.Value) }
func (f *Float) Hash() uint32 {
	return hashString(f.Inspect())
}

// Boolean
type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ObjectType { return BOOLEAN_OBJ }
func (b *Boolean) Inspect() string  { return fmt.Sprintf("%t", b.Value) }
func (b *Boolean) Hash() uint32 {
	if b.Value {
		return 1
	}
	return 0
}

// String
type String struct {
	Value string
}

func (s *String) Type() ObjectType { return STRING_OBJ }
func (s *String) Inspect() string  { return fmt.Sprintf("%q", s.Value) }
func (s *String) Hash() uint32     { return hashString(s.Value) }

// Bytes
type Bytes struct {
	Value []byte
}

func (b *Bytes) Type() ObjectType { return BYTES_OBJ }
func (b *Bytes) Inspect() string  { return fmt.Sprintf("<<%d bytes>>", len(b.Value)) }
func (b *Bytes) Hash() uint32     { return hashString(string(b.Value)) }

// List
type List struct {
	Elements []Object
}

func (l *List) Type() ObjectType { return LIST_OBJ }
func (l *List) Inspect() string {
	parts := make([]string, len(l.Elements))
	for i, el := range l.Elements {
		parts[i] = el.Inspect()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (l *List) Hash() uint32 {
	h := uint32(17)
	for _, el := range l.Elements {
		h = 31*h + el.Hash()
	}
	return h
}

// Map holds string-keyed values. Keys are unique; Inspect renders them in
// sorted order so output is deterministic across backends.
type Map struct {
	Pairs map[string]Object
}

func NewMap() *Map {
	return &Map{Pairs: make(map[string]Object)}
}

func (m *Map) Type() ObjectType { return MAP_OBJ }
func (m *Map) Inspect() string {
	keys := make([]string, 0, len(m.Pairs))
	for k := range m.Pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%q: %s", k, m.Pairs[k].Inspect())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (m *Map) Hash() uint32 {
	var h uint32
	for k, v := range m.Pairs {
		h ^= hashString(k) * 31
		h ^= v.Hash()
	}
	return h
}

// Struct is a nominal record instance: a type name plus named fields.
type Struct struct {
	Name   string
	Fields map[string]Object
}

func (s *Struct) Type() ObjectType { return STRUCT_OBJ }
func (s *Struct) Inspect() string {
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, s.Fields[k].Inspect())
	}
	return s.Name + "{" + strings.Join(parts, ", ") + "}"
}
func (s *Struct) Hash() uint32 {
	h := hashString(s.Name)
	for k, v := range s.Fields {
		h ^= hashString(k) * 31
		h ^= v.Hash()
	}
	return h
}

// Enum is a tagged variant instance with an ordered payload.
type Enum struct {
	Name    string
	Variant string
	Payload []Object
}

func (e *Enum) Type() ObjectType { return ENUM_OBJ }
func (e *Enum) Inspect() string {
	if len(e.Payload) == 0 {
		return e.Variant
	}
	parts := make([]string, len(e.Payload))
	for i, p := range e.Payload {
		parts[i] = p.Inspect()
	}
	return e.Variant + "(" + strings.Join(parts, ", ") + ")"
}
func (e *Enum) Hash() uint32 {
	h := hashString(e.Name) ^ hashString(e.Variant)
	for _, p := range e.Payload {
		h = 31*h + p.Hash()
	}
	return h
}

// Box is a shared mutable cell. Aliasing is carried by pointer identity:
// every holder of the same *Box observes mutations through Set.
type Box struct {
	mu    sync.Mutex
	value Object
}

func NewBox(v Object) *Box {
	return &Box{value: v}
}

func (b *Box) Type() ObjectType { return BOX_OBJ }
func (b *Box) Inspect() string  { return "box(" + b.Get().Inspect() + ")" }
func (b *Box) Hash() uint32     { return b.Get().Hash() }

func (b *Box) Get() Object {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

func (b *Box) Set(v Object) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = v
}

// Result is the language-level Ok/Err sum.
type Result struct {
	Ok    bool
	Value Object
}

func (r *Result) Type() ObjectType {
	if r.Ok {
		return RESULT_OK_OBJ
	}
	return RESULT_ERR_OBJ
}
func (r *Result) Inspect() string {
	if r.Ok {
		return "Ok(" + r.Value.Inspect() + ")"
	}
	return "Err(" + r.Value.Inspect() + ")"
}
func (r *Result) Hash() uint32 {
	h := r.Value.Hash()
	if r.Ok {
		return h ^ 0x9e3779b9
	}
	return h
}

// TaskOutcome classifies how a task terminated.
type TaskOutcome int

const (
	// TaskOk: the task function returned a value (including an Ok result).
	TaskOk TaskOutcome = iota
	// TaskErr: the task function returned a domain error (an Err result).
	TaskErr
	// TaskRuntime: the task terminated abnormally; only a message survives.
	TaskRuntime
)

// TaskResult is the delivered completion of a task. Callers branch on
// Outcome; the three-way split must survive any value-representation
// boundary unchanged.
type TaskResult struct {
	Outcome TaskOutcome
	Value   Object // set for TaskOk and TaskErr
	Message string // set for TaskRuntime
}

// Task is an asynchronous handle. Complete may be called exactly once;
// Await blocks until it has been.
type Task struct {
	ID string

	done   chan struct{}
	once   sync.Once
	result TaskResult
}

func NewTask() *Task {
	return &Task{
		ID:   uuid.NewString(),
		done: make(chan struct{}),
	}
}

// NewCompletedTask builds a task that already holds its result. Used when a
// task value is reconstructed at a representation boundary.
func NewCompletedTask(res TaskResult) *Task {
	t := NewTask()
	t.Complete(res)
	return t
}

func (t *Task) Type() ObjectType { return TASK_OBJ }
func (t *Task) Inspect() string  { return "<task " + t.ID + ">" }
func (t *Task) Hash() uint32     { return hashString(t.ID) }

func (t *Task) Complete(res TaskResult) {
	t.once.Do(func() {
		t.result = res
		close(t.done)
	})
}

// Await blocks until the task completes and returns its result.
func (t *Task) Await() TaskResult {
	<-t.done
	return t.result
}

// Done reports completion without blocking.
func (t *Task) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
