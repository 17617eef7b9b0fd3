package vm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/vela-lang/vela/internal/object"
)

// Loaded proto descriptors and open client connections, shared per process.
var (
	protoRegistry   = make(map[string]*desc.FileDescriptor)
	protoRegistryMu sync.RWMutex

	grpcConns       = make(map[int64]*grpc.ClientConn)
	grpcConnsMu     sync.Mutex
	grpcConnCounter int64
)

func (vm *VM) registerGrpcBuiltins() {
	vm.builtins["grpcLoadProto"] = builtinGrpcLoadProto
	vm.builtins["grpcConnect"] = builtinGrpcConnect
	vm.builtins["grpcInvoke"] = builtinGrpcInvoke
	vm.builtins["grpcClose"] = builtinGrpcClose
	vm.builtins["protoEncode"] = builtinProtoEncode
	vm.builtins["protoDecode"] = builtinProtoDecode
}

func grpcResultErr(format string, args ...interface{}) object.Object {
	return &object.Result{Ok: false, Value: &object.String{Value: fmt.Sprintf(format, args...)}}
}

// grpcLoadProto: (String) -> Result<Unit, String>
func builtinGrpcLoadProto(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("grpcLoadProto", 1, len(args))
	}
	path, ok := args[0].(*object.String)
	if !ok {
		return nil, fmt.Errorf("grpcLoadProto: path must be String, got %s", args[0].Type())
	}

	parser := protoparse.Parser{ImportPaths: []string{"."}}
	fds, err := parser.ParseFiles(path.Value)
	if err != nil {
		return grpcResultErr("failed to parse proto: %s", err), nil
	}

	protoRegistryMu.Lock()
	for _, fd := range fds {
		protoRegistry[fd.GetName()] = fd
	}
	protoRegistryMu.Unlock()

	return &object.Result{Ok: true, Value: &object.Nil{}}, nil
}

// grpcConnect: (String) -> Result<Int, String>
func builtinGrpcConnect(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("grpcConnect", 1, len(args))
	}
	target, ok := args[0].(*object.String)
	if !ok {
		return nil, fmt.Errorf("grpcConnect: target must be String, got %s", args[0].Type())
	}
	conn, err := grpc.NewClient(target.Value, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return grpcResultErr("%s", err), nil
	}

	grpcConnsMu.Lock()
	grpcConnCounter++
	handle := grpcConnCounter
	grpcConns[handle] = conn
	grpcConnsMu.Unlock()

	return &object.Result{Ok: true, Value: &object.Integer{Value: handle}}, nil
}

// grpcInvoke: (Int, String, Map) -> Result<Map, String>
//
// Method path uses the "package.Service/Method" form. The request map is
// converted to a dynamic message against the loaded descriptors.
func builtinGrpcInvoke(args []object.Object) (object.Object, error) {
	if len(args) != 3 {
		return nil, ErrInvalidCall("grpcInvoke", 3, len(args))
	}
	handle, ok := args[0].(*object.Integer)
	if !ok {
		return nil, fmt.Errorf("grpcInvoke: conn must be Int, got %s", args[0].Type())
	}
	methodPath, ok := args[1].(*object.String)
	if !ok {
		return nil, fmt.Errorf("grpcInvoke: method must be String, got %s", args[1].Type())
	}

	grpcConnsMu.Lock()
	conn, present := grpcConns[handle.Value]
	grpcConnsMu.Unlock()
	if !present {
		return nil, fmt.Errorf("unknown grpc conn %d", handle.Value)
	}

	md, err := findMethodDescriptor(methodPath.Value)
	if err != nil {
		return grpcResultErr("%s", err), nil
	}

	reqMsg := dynamic.NewMessage(md.GetInputType())
	if err := objectToDynamicMessage(args[2], reqMsg); err != nil {
		return grpcResultErr("failed to build request: %s", err), nil
	}
	respMsg := dynamic.NewMessage(md.GetOutputType())

	path := methodPath.Value
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if err := conn.Invoke(context.Background(), path, reqMsg, respMsg); err != nil {
		return grpcResultErr("RPC failed: %s", err), nil
	}

	return &object.Result{Ok: true, Value: dynamicMessageToObject(respMsg)}, nil
}

// grpcClose: (Int) -> Result<Unit, String>
func builtinGrpcClose(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("grpcClose", 1, len(args))
	}
	handle, ok := args[0].(*object.Integer)
	if !ok {
		return nil, fmt.Errorf("grpcClose: conn must be Int, got %s", args[0].Type())
	}

	grpcConnsMu.Lock()
	conn, present := grpcConns[handle.Value]
	delete(grpcConns, handle.Value)
	grpcConnsMu.Unlock()

	if !present {
		return grpcResultErr("unknown grpc conn %d", handle.Value), nil
	}
	if err := conn.Close(); err != nil {
		return grpcResultErr("%s", err), nil
	}
	return &object.Result{Ok: true, Value: &object.Nil{}}, nil
}

// protoEncode: (String, Map) -> Result<Bytes, String>
func builtinProtoEncode(args []object.Object) (object.Object, error) {
	if len(args) != 2 {
		return nil, ErrInvalidCall("protoEncode", 2, len(args))
	}
	msgName, ok := args[0].(*object.String)
	if !ok {
		return nil, fmt.Errorf("protoEncode: message name must be String, got %s", args[0].Type())
	}
	md, err := findMessageDescriptor(msgName.Value)
	if err != nil {
		return grpcResultErr("%s", err), nil
	}
	msg := dynamic.NewMessage(md)
	if err := objectToDynamicMessage(args[1], msg); err != nil {
		return grpcResultErr("%s", err), nil
	}
	data, err := msg.Marshal()
	if err != nil {
		return grpcResultErr("%s", err), nil
	}
	return &object.Result{Ok: true, Value: &object.Bytes{Value: data}}, nil
}

// protoDecode: (String, Bytes) -> Result<Map, String>
func builtinProtoDecode(args []object.Object) (object.Object, error) {
	if len(args) != 2 {
		return nil, ErrInvalidCall("protoDecode", 2, len(args))
	}
	msgName, ok := args[0].(*object.String)
	if !ok {
		return nil, fmt.Errorf("protoDecode: message name must be String, got %s", args[0].Type())
	}
	data, ok := args[1].(*object.Bytes)
	if !ok {
		return nil, fmt.Errorf("protoDecode: data must be Bytes, got %s", args[1].Type())
	}
	md, err := findMessageDescriptor(msgName.Value)
	if err != nil {
		return grpcResultErr("%s", err), nil
	}
	msg := dynamic.NewMessage(md)
	if err := msg.Unmarshal(data.Value); err != nil {
		return grpcResultErr("%s", err), nil
	}
	return &object.Result{Ok: true, Value: dynamicMessageToObject(msg)}, nil
}

func findMethodDescriptor(path string) (*desc.MethodDescriptor, error) {
	slash := strings.LastIndex(path, "/")
	if slash < 0 {
		return nil, fmt.Errorf("invalid method path %q, expected 'package.Service/Method'", path)
	}
	serviceName, methodName := path[:slash], path[slash+1:]

	protoRegistryMu.RLock()
	defer protoRegistryMu.RUnlock()
	for _, fd := range protoRegistry {
		if svc := fd.FindService(serviceName); svc != nil {
			if method := svc.FindMethodByName(methodName); method != nil {
				return method, nil
			}
		}
	}
	return nil, fmt.Errorf("method %q not found (did you load the proto?)", path)
}

func findMessageDescriptor(name string) (*desc.MessageDescriptor, error) {
	protoRegistryMu.RLock()
	defer protoRegistryMu.RUnlock()
	for _, fd := range protoRegistry {
		if msg := fd.FindMessage(name); msg != nil {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("message type %q not found", name)
}

// objectToDynamicMessage populates msg from a Map or Struct. Unknown
// fields are ignored, matching proto3 semantics for absent fields.
func objectToDynamicMessage(obj object.Object, msg *dynamic.Message) error {
	var fields map[string]object.Object
	switch o := obj.(type) {
	case *object.Map:
		fields = o.Pairs
	case *object.Struct:
		fields = o.Fields
	default:
		return fmt.Errorf("expected Map or Struct, got %s", obj.Type())
	}

	for name, val := range fields {
		fd := msg.GetMessageDescriptor().FindFieldByName(name)
		if fd == nil {
			continue
		}
		v, err := convertToProtoValue(val, fd)
		if err != nil {
			return fmt.Errorf("field %s: %v", name, err)
		}
		if v != nil {
			msg.SetField(fd, v)
		}
	}
	return nil
}

func convertToProtoValue(val object.Object, fd *desc.FieldDescriptor) (interface{}, error) {
	if fd.IsRepeated() {
		list, ok := val.(*object.List)
		if !ok {
			return nil, fmt.Errorf("expected List for repeated field")
		}
		var slice []interface{}
		for _, item := range list.Elements {
			v, err := convertToProtoSingleValue(item, fd)
			if err != nil {
				return nil, err
			}
			slice = append(slice, v)
		}
		return slice, nil
	}
	if _, isNil := val.(*object.Nil); isNil {
		return nil, nil
	}
	return convertToProtoSingleValue(val, fd)
}

func convertToProtoSingleValue(val object.Object, fd *desc.FieldDescriptor) (interface{}, error) {
	switch fd.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_INT32, descriptorpb.FieldDescriptorProto_TYPE_SINT32, descriptorpb.FieldDescriptorProto_TYPE_SFIXED32:
		if i, ok := val.(*object.Integer); ok {
			return int32(i.Value), nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_INT64, descriptorpb.FieldDescriptorProto_TYPE_SINT64, descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		if i, ok := val.(*object.Integer); ok {
			return i.Value, nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32, descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		if i, ok := val.(*object.Integer); ok {
			return uint32(i.Value), nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64, descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		if i, ok := val.(*object.Integer); ok {
			return uint64(i.Value), nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		if f, ok := val.(*object.Float); ok {
			return float32(f.Value), nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		if f, ok := val.(*object.Float); ok {
			return f.Value, nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		if b, ok := val.(*object.Boolean); ok {
			return b.Value, nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		if s, ok := val.(*object.String); ok {
			return s.Value, nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		if b, ok := val.(*object.Bytes); ok {
			return b.Value, nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE:
		msg := dynamic.NewMessage(fd.GetMessageType())
		if err := objectToDynamicMessage(val, msg); err != nil {
			return nil, err
		}
		return msg, nil
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		if i, ok := val.(*object.Integer); ok {
			return int32(i.Value), nil
		}
		if s, ok := val.(*object.String); ok {
			if ev := fd.GetEnumType().FindValueByName(s.Value); ev != nil {
				return ev.GetNumber(), nil
			}
		}
	}
	return nil, fmt.Errorf("unsupported conversion for %s to %v", val.Type(), fd.GetType())
}

func dynamicMessageToObject(msg *dynamic.Message) object.Object {
	fields := make(map[string]object.Object)
	for _, fd := range msg.GetMessageDescriptor().GetFields() {
		fields[fd.GetName()] = convertFromProtoValue(msg.GetField(fd), fd)
	}
	return &object.Map{Pairs: fields}
}

func convertFromProtoValue(val interface{}, fd *desc.FieldDescriptor) object.Object {
	if fd.IsRepeated() {
		slice, ok := val.([]interface{})
		if !ok {
			return &object.List{}
		}
		elems := make([]object.Object, 0, len(slice))
		for _, v := range slice {
			elems = append(elems, convertFromProtoSingleValue(v))
		}
		return &object.List{Elements: elems}
	}
	return convertFromProtoSingleValue(val)
}

func convertFromProtoSingleValue(val interface{}) object.Object {
	switch v := val.(type) {
	case nil:
		return &object.Nil{}
	case int32:
		return &object.Integer{Value: int64(v)}
	case int64:
		return &object.Integer{Value: v}
	case uint32:
		return &object.Integer{Value: int64(v)}
	case uint64:
		return &object.Integer{Value: int64(v)}
	case float32:
		return &object.Float{Value: float64(v)}
	case float64:
		return &object.Float{Value: v}
	case bool:
		return &object.Boolean{Value: v}
	case string:
		return &object.String{Value: v}
	case []byte:
		return &object.Bytes{Value: v}
	case *dynamic.Message:
		return dynamicMessageToObject(v)
	case int:
		return &object.Integer{Value: int64(v)}
	}
	return &object.Nil{}
}
