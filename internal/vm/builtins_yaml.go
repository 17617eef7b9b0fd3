package vm

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/vela-lang/vela/internal/config"
	"github.com/vela-lang/vela/internal/object"
)

func (vm *VM) registerYamlBuiltins() {
	vm.builtins["yamlDecode"] = builtinYamlDecode
	vm.builtins["yamlEncode"] = builtinYamlEncode
}

// yamlDecode: (String) -> Result<A, String>
func builtinYamlDecode(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("yamlDecode", 1, len(args))
	}
	content, ok := args[0].(*object.String)
	if !ok {
		return nil, fmt.Errorf("yamlDecode: content must be String, got %s", args[0].Type())
	}

	var data interface{}
	if err := yaml.Unmarshal([]byte(content.Value), &data); err != nil {
		return &object.Result{Ok: false, Value: &object.String{Value: fmt.Sprintf("YAML parse error: %v", err)}}, nil
	}
	obj, err := config.ObjectFromYAML(data)
	if err != nil {
		return &object.Result{Ok: false, Value: &object.String{Value: err.Error()}}, nil
	}
	return &object.Result{Ok: true, Value: obj}, nil
}

// yamlEncode: (A) -> Result<String, String>
func builtinYamlEncode(args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCall("yamlEncode", 1, len(args))
	}
	raw, err := config.YAMLFromObject(args[0])
	if err != nil {
		return &object.Result{Ok: false, Value: &object.String{Value: err.Error()}}, nil
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return &object.Result{Ok: false, Value: &object.String{Value: err.Error()}}, nil
	}
	return &object.Result{Ok: true, Value: &object.String{Value: string(data)}}, nil
}
