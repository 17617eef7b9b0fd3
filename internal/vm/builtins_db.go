package vm

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/vela-lang/vela/internal/object"
	_ "modernc.org/sqlite"
)

// Open database handles shared by all VMs in the process. Handles are
// plain Int values on the language side.
var (
	dbHandles       = make(map[int64]*sql.DB)
	dbHandlesMu     sync.Mutex
	dbHandleCounter int64
)

func (vm *VM) registerDBBuiltins() {
	vm.builtins["dbOpen"] = builtinDbOpen
	vm.builtins["dbExec"] = builtinDbExec
	vm.builtins["dbQuery"] = builtinDbQuery
	vm.builtins["dbClose"] = builtinDbClose
}

func dbResultErr(format string, args ...interface{}) object.Object {
	return &object.Result{Ok: false, Value: &object.String{Value: fmt.Sprintf(format, args...)}}
}

func dbLookup(arg object.Object) (*sql.DB, error) {
	handle, ok := arg.(*object.Integer)
	if !ok {
		return nil, fmt.Errorf("db handle must be Int, got %s", arg.Type())
	}
	dbHandlesMu.Lock()
	defer dbHandlesMu.Unlock()
	db, ok := dbHandles[handle.Value]
	if !ok {
		return nil, fmt.Errorf("unknown db handle %d", handle.Value)
	}
	return db, nil
}

// dbOpen: (String) -> Result<Int, String>
func builtinDbOpen(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("dbOpen", 1, len(args))
	}
	path, ok := args[0].(*object.String)
	if !ok {
		return nil, fmt.Errorf("dbOpen: path must be String, got %s", args[0].Type())
	}
	db, err := sql.Open("sqlite", path.Value)
	if err != nil {
		return dbResultErr("dbOpen: %s", err), nil
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return dbResultErr("dbOpen: %s", err), nil
	}

	dbHandlesMu.Lock()
	dbHandleCounter++
	handle := dbHandleCounter
	dbHandles[handle] = db
	dbHandlesMu.Unlock()

	return &object.Result{Ok: true, Value: &object.Integer{Value: handle}}, nil
}

// dbExec: (Int, String, List) -> Result<Int, String> with rows affected
func builtinDbExec(args []object.Object) (object.Object, error) {
	if len(args) != 3 {
		return nil, ErrInvalidCall("dbExec", 3, len(args))
	}
	db, err := dbLookup(args[0])
	if err != nil {
		return nil, err
	}
	query, ok := args[1].(*object.String)
	if !ok {
		return nil, fmt.Errorf("dbExec: query must be String, got %s", args[1].Type())
	}
	params, err := dbParams(args[2])
	if err != nil {
		return nil, err
	}

	res, err := db.Exec(query.Value, params...)
	if err != nil {
		return dbResultErr("dbExec: %s", err), nil
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &object.Result{Ok: true, Value: &object.Integer{Value: affected}}, nil
}

// dbQuery: (Int, String, List) -> Result<List<Map>, String>
func builtinDbQuery(args []object.Object) (object.Object, error) {
	if len(args) != 3 {
		return nil, ErrInvalidCall("dbQuery", 3, len(args))
	}
	db, err := dbLookup(args[0])
	if err != nil {
		return nil, err
	}
	query, ok := args[1].(*object.String)
	if !ok {
		return nil, fmt.Errorf("dbQuery: query must be String, got %s", args[1].Type())
	}
	params, err := dbParams(args[2])
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(query.Value, params...)
	if err != nil {
		return dbResultErr("dbQuery: %s", err), nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return dbResultErr("dbQuery: %s", err), nil
	}

	var out []object.Object
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return dbResultErr("dbQuery: %s", err), nil
		}
		row := make(map[string]object.Object, len(cols))
		for i, col := range cols {
			row[col] = dbCellToObject(raw[i])
		}
		out = append(out, &object.Map{Pairs: row})
	}
	if err := rows.Err(); err != nil {
		return dbResultErr("dbQuery: %s", err), nil
	}
	return &object.Result{Ok: true, Value: &object.List{Elements: out}}, nil
}

// dbClose: (Int) -> Result<Unit, String>
func builtinDbClose(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("dbClose", 1, len(args))
	}
	handle, ok := args[0].(*object.Integer)
	if !ok {
		return nil, fmt.Errorf("dbClose: handle must be Int, got %s", args[0].Type())
	}

	dbHandlesMu.Lock()
	db, present := dbHandles[handle.Value]
	delete(dbHandles, handle.Value)
	dbHandlesMu.Unlock()

	if !present {
		return dbResultErr("unknown db handle %d", handle.Value), nil
	}
	if err := db.Close(); err != nil {
		return dbResultErr("dbClose: %s", err), nil
	}
	return &object.Result{Ok: true, Value: &object.Nil{}}, nil
}

func dbParams(arg object.Object) ([]interface{}, error) {
	list, ok := arg.(*object.List)
	if !ok {
		return nil, fmt.Errorf("db params must be List, got %s", arg.Type())
	}
	params := make([]interface{}, len(list.Elements))
	for i, el := range list.Elements {
		switch v := el.(type) {
		case *object.Nil:
			params[i] = nil
		case *object.Integer:
			params[i] = v.Value
		case *object.Float:
			params[i] = v.Value
		case *object.Boolean:
			params[i] = v.Value
		case *object.String:
			params[i] = v.Value
		case *object.Bytes:
			params[i] = v.Value
		default:
			return nil, fmt.Errorf("unsupported db param type %s", el.Type())
		}
	}
	return params, nil
}

func dbCellToObject(raw interface{}) object.Object {
	switch v := raw.(type) {
	case nil:
		return &object.Nil{}
	case int64:
		return &object.Integer{Value: v}
	case float64:
		return &object.Float{Value: v}
	case bool:
		return &object.Boolean{Value: v}
	case string:
		return &object.String{Value: v}
	case []byte:
		return &object.Bytes{Value: append([]byte(nil), v...)}
	default:
		return &object.String{Value: fmt.Sprintf("%v", v)}
	}
}
