package vm

import (
	"testing"

	"github.com/vela-lang/vela/internal/bytecode"
	"github.com/vela-lang/vela/internal/object"
)

func unwrapOk(t *testing.T, obj object.Object) object.Object {
	t.Helper()
	res, ok := obj.(*object.Result)
	if !ok {
		t.Fatalf("expected Result, got %s (%s)", obj.Type(), obj.Inspect())
	}
	if !res.Ok {
		t.Fatalf("expected ok Result, got err: %s", res.Value.Inspect())
	}
	return res.Value
}

func TestDBBuiltins(t *testing.T) {
	prog, err := bytecode.NewProgram(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	vm := New(prog)

	opened, err := vm.builtins["dbOpen"]([]object.Object{&object.String{Value: ":memory:"}})
	if err != nil {
		t.Fatalf("dbOpen: %v", err)
	}
	handle := unwrapOk(t, opened)

	exec := func(query string, params ...object.Object) object.Object {
		t.Helper()
		result, err := vm.builtins["dbExec"]([]object.Object{
			handle,
			&object.String{Value: query},
			&object.List{Elements: params},
		})
		if err != nil {
			t.Fatalf("dbExec %q: %v", query, err)
		}
		return unwrapOk(t, result)
	}

	exec("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	exec("INSERT INTO users (name) VALUES (?)", &object.String{Value: "ada"})
	affected := exec("INSERT INTO users (name) VALUES (?)", &object.String{Value: "grace"})
	if n, ok := affected.(*object.Integer); !ok || n.Value != 1 {
		t.Errorf("rows affected = %s, want 1", affected.Inspect())
	}

	queried, err := vm.builtins["dbQuery"]([]object.Object{
		handle,
		&object.String{Value: "SELECT name FROM users ORDER BY id"},
		&object.List{},
	})
	if err != nil {
		t.Fatalf("dbQuery: %v", err)
	}
	rows, ok := unwrapOk(t, queried).(*object.List)
	if !ok || len(rows.Elements) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	first, ok := rows.Elements[0].(*object.Map)
	if !ok {
		t.Fatalf("row 0 = %s", rows.Elements[0].Type())
	}
	if name, ok := first.Pairs["name"].(*object.String); !ok || name.Value != "ada" {
		t.Errorf("row 0 name = %v", first.Pairs["name"])
	}

	closed, err := vm.builtins["dbClose"]([]object.Object{handle})
	if err != nil {
		t.Fatalf("dbClose: %v", err)
	}
	unwrapOk(t, closed)

	// Using a closed handle is a hard error, not a Result.
	if _, err := vm.builtins["dbExec"]([]object.Object{
		handle, &object.String{Value: "SELECT 1"}, &object.List{},
	}); err == nil {
		t.Error("expected error on closed handle")
	}
}
