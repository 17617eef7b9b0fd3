package vm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vela-lang/vela/internal/object"
)

// HTTP client timeout (default 30 seconds)
var httpTimeout = 30 * time.Second

// Default server stop timeout
const defaultServerStopTimeout = 5 * time.Second

// Running HTTP servers, keyed by the Int handle handed to the program.
var (
	httpServers       = make(map[int64]*http.Server)
	httpServersMu     sync.Mutex
	httpServerCounter int64
)

func (vm *VM) registerHTTPBuiltins() {
	vm.builtins["httpGet"] = builtinHttpGet
	vm.builtins["httpPost"] = builtinHttpPost
	vm.builtins["httpRequest"] = builtinHttpRequest
	vm.builtins["httpServeAsync"] = vm.builtinHttpServeAsync
	vm.builtins["httpServerStop"] = builtinHttpServerStop
}

func httpResultErr(format string, args ...interface{}) object.Object {
	return &object.Result{Ok: false, Value: &object.String{Value: fmt.Sprintf(format, args...)}}
}

// httpGet: (String) -> Result<Struct, String>
func builtinHttpGet(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("httpGet", 1, len(args))
	}
	url, ok := args[0].(*object.String)
	if !ok {
		return nil, fmt.Errorf("httpGet: url must be String, got %s", args[0].Type())
	}
	return doHttpRequest("GET", url.Value, nil, nil), nil
}

// httpPost: (String, String) -> Result<Struct, String>
func builtinHttpPost(args []object.Object) (object.Object, error) {
	if len(args) != 2 {
		return nil, ErrInvalidCall("httpPost", 2, len(args))
	}
	url, ok := args[0].(*object.String)
	if !ok {
		return nil, fmt.Errorf("httpPost: url must be String, got %s", args[0].Type())
	}
	body, err := httpBodyReader(args[1])
	if err != nil {
		return nil, fmt.Errorf("httpPost: %s", err)
	}
	return doHttpRequest("POST", url.Value, nil, body), nil
}

// httpRequest: (String, String, Map, String) -> Result<Struct, String>
func builtinHttpRequest(args []object.Object) (object.Object, error) {
	if len(args) != 4 {
		return nil, ErrInvalidCall("httpRequest", 4, len(args))
	}
	method, ok := args[0].(*object.String)
	if !ok {
		return nil, fmt.Errorf("httpRequest: method must be String, got %s", args[0].Type())
	}
	url, ok := args[1].(*object.String)
	if !ok {
		return nil, fmt.Errorf("httpRequest: url must be String, got %s", args[1].Type())
	}
	headerMap, ok := args[2].(*object.Map)
	if !ok {
		return nil, fmt.Errorf("httpRequest: headers must be Map, got %s", args[2].Type())
	}
	headers := make(map[string]string, len(headerMap.Pairs))
	for k, v := range headerMap.Pairs {
		s, ok := v.(*object.String)
		if !ok {
			return nil, fmt.Errorf("httpRequest: header %s must be String, got %s", k, v.Type())
		}
		headers[k] = s.Value
	}
	body, err := httpBodyReader(args[3])
	if err != nil {
		return nil, fmt.Errorf("httpRequest: %s", err)
	}
	return doHttpRequest(strings.ToUpper(method.Value), url.Value, headers, body), nil
}

func httpBodyReader(obj object.Object) (io.Reader, error) {
	switch o := obj.(type) {
	case *object.String:
		if o.Value == "" {
			return nil, nil
		}
		return strings.NewReader(o.Value), nil
	case *object.Bytes:
		return strings.NewReader(string(o.Value)), nil
	case *object.Nil:
		return nil, nil
	}
	return nil, fmt.Errorf("body must be String or Bytes, got %s", obj.Type())
}

func doHttpRequest(method, url string, headers map[string]string, body io.Reader) object.Object {
	client := &http.Client{Timeout: httpTimeout}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return httpResultErr("failed to create request: %s", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return httpResultErr("request failed: %s", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpResultErr("failed to read response: %s", err)
	}

	respHeaders := make(map[string]object.Object, len(resp.Header))
	for key, values := range resp.Header {
		respHeaders[key] = &object.String{Value: strings.Join(values, ", ")}
	}

	response := &object.Struct{
		Name: "HttpResponse",
		Fields: map[string]object.Object{
			"status":  &object.Integer{Value: int64(resp.StatusCode)},
			"body":    &object.String{Value: string(respBody)},
			"headers": &object.Map{Pairs: respHeaders},
		},
	}
	return &object.Result{Ok: true, Value: response}
}

// httpServeAsync: (Int, String) -> Result<Int, String>
//
// Starts a server on the given port whose every request is handled by the
// named program function (request struct in, response struct out) and
// returns the server handle without blocking.
func (vm *VM) builtinHttpServeAsync(args []object.Object) (object.Object, error) {
	if len(args) != 2 {
		return nil, ErrInvalidCall("httpServeAsync", 2, len(args))
	}
	port, ok := args[0].(*object.Integer)
	if !ok {
		return nil, fmt.Errorf("httpServeAsync: port must be Int, got %s", args[0].Type())
	}
	handlerName, ok := args[1].(*object.String)
	if !ok {
		return nil, fmt.Errorf("httpServeAsync: handler must be String, got %s", args[1].Type())
	}
	handlerFn := vm.program.Function(handlerName.Value)
	if handlerFn == nil {
		return nil, ErrUnknownFunction(handlerName.Value)
	}
	if handlerFn.Arity() != 1 {
		return nil, ErrInvalidCall(handlerName.Value, 1, handlerFn.Arity())
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", port.Value),
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqBody, _ := io.ReadAll(r.Body)
			reqHeaders := make(map[string]object.Object, len(r.Header))
			for key, values := range r.Header {
				reqHeaders[key] = &object.String{Value: strings.Join(values, ", ")}
			}
			request := &object.Struct{
				Name: "HttpRequest",
				Fields: map[string]object.Object{
					"method":  &object.String{Value: r.Method},
					"path":    &object.String{Value: r.URL.Path},
					"body":    &object.String{Value: string(reqBody)},
					"headers": &object.Map{Pairs: reqHeaders},
				},
			}

			// Each request runs on its own worker VM, same isolation as
			// spawned tasks.
			task := vm.spawnTask(handlerFn, []object.Object{request})
			res := task.Await()
			if res.Outcome != object.TaskOk {
				http.Error(w, "handler failed", http.StatusInternalServerError)
				return
			}
			writeHandlerResponse(w, res.Value)
		}),
	}

	httpServersMu.Lock()
	httpServerCounter++
	handle := httpServerCounter
	httpServers[handle] = server
	httpServersMu.Unlock()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpServersMu.Lock()
			delete(httpServers, handle)
			httpServersMu.Unlock()
		}
	}()

	return &object.Result{Ok: true, Value: &object.Integer{Value: handle}}, nil
}

func writeHandlerResponse(w http.ResponseWriter, result object.Object) {
	st, ok := result.(*object.Struct)
	if !ok {
		fmt.Fprint(w, result.Inspect())
		return
	}
	status := http.StatusOK
	if s, ok := st.Fields["status"].(*object.Integer); ok {
		status = int(s.Value)
	}
	body := ""
	if b, ok := st.Fields["body"].(*object.String); ok {
		body = b.Value
	}
	if hm, ok := st.Fields["headers"].(*object.Map); ok {
		for k, v := range hm.Pairs {
			if s, ok := v.(*object.String); ok {
				w.Header().Set(k, s.Value)
			}
		}
	}
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

// httpServerStop: (Int) -> Result<Unit, String>
func builtinHttpServerStop(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("httpServerStop", 1, len(args))
	}
	handle, ok := args[0].(*object.Integer)
	if !ok {
		return nil, fmt.Errorf("httpServerStop: handle must be Int, got %s", args[0].Type())
	}

	httpServersMu.Lock()
	server, present := httpServers[handle.Value]
	delete(httpServers, handle.Value)
	httpServersMu.Unlock()

	if !present {
		return httpResultErr("unknown server handle %d", handle.Value), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultServerStopTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return httpResultErr("shutdown failed: %s", err), nil
	}
	return &object.Result{Ok: true, Value: &object.Nil{}}, nil
}
