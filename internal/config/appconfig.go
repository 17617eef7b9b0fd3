package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vela-lang/vela/internal/object"
)

// LoadAppConfig reads a YAML config file and returns its top-level fields
// as language objects. A missing file is not an error: programs fall back
// to their declared config defaults.
func LoadAppConfig(path string) (map[string]object.Object, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var data map[string]interface{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	out := make(map[string]object.Object, len(data))
	for k, v := range data {
		obj, err := ObjectFromYAML(v)
		if err != nil {
			return nil, fmt.Errorf("config field %s: %w", k, err)
		}
		out[k] = obj
	}
	return out, nil
}

// ObjectFromYAML converts a value produced by yaml.Unmarshal into a
// language object. Mappings become Maps, sequences become Lists, scalars
// become Int/Float/Bool/String/Nil. yaml.v3 returns int for integers, so
// both int and float64 paths are needed.
func ObjectFromYAML(data interface{}) (object.Object, error) {
	switch v := data.(type) {
	case nil:
		return &object.Nil{}, nil
	case bool:
		return &object.Boolean{Value: v}, nil
	case int:
		return &object.Integer{Value: int64(v)}, nil
	case int64:
		return &object.Integer{Value: v}, nil
	case float64:
		if v == float64(int64(v)) {
			return &object.Integer{Value: int64(v)}, nil
		}
		return &object.Float{Value: v}, nil
	case string:
		return &object.String{Value: v}, nil
	case []interface{}:
		elements := make([]object.Object, len(v))
		for i, item := range v {
			obj, err := ObjectFromYAML(item)
			if err != nil {
				return nil, err
			}
			elements[i] = obj
		}
		return &object.List{Elements: elements}, nil
	case map[string]interface{}:
		pairs := make(map[string]object.Object, len(v))
		for k, val := range v {
			obj, err := ObjectFromYAML(val)
			if err != nil {
				return nil, err
			}
			pairs[k] = obj
		}
		return &object.Map{Pairs: pairs}, nil
	case map[interface{}]interface{}:
		pairs := make(map[string]object.Object, len(v))
		for k, val := range v {
			obj, err := ObjectFromYAML(val)
			if err != nil {
				return nil, err
			}
			pairs[fmt.Sprintf("%v", k)] = obj
		}
		return &object.Map{Pairs: pairs}, nil
	}
	return nil, fmt.Errorf("unsupported YAML value %T", data)
}

// YAMLFromObject converts a language object back to a value yaml.Marshal
// understands. Structs flatten to mappings; their name is not preserved.
func YAMLFromObject(obj object.Object) (interface{}, error) {
	switch v := obj.(type) {
	case *object.Nil:
		return nil, nil
	case *object.Boolean:
		return v.Value, nil
	case *object.Integer:
		return v.Value, nil
	case *object.Float:
		return v.Value, nil
	case *object.String:
		return v.Value, nil
	case *object.List:
		out := make([]interface{}, len(v.Elements))
		for i, el := range v.Elements {
			raw, err := YAMLFromObject(el)
			if err != nil {
				return nil, err
			}
			out[i] = raw
		}
		return out, nil
	case *object.Map:
		out := make(map[string]interface{}, len(v.Pairs))
		for k, el := range v.Pairs {
			raw, err := YAMLFromObject(el)
			if err != nil {
				return nil, err
			}
			out[k] = raw
		}
		return out, nil
	case *object.Struct:
		out := make(map[string]interface{}, len(v.Fields))
		for k, el := range v.Fields {
			raw, err := YAMLFromObject(el)
			if err != nil {
				return nil, err
			}
			out[k] = raw
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot encode %s to YAML", obj.Type())
}
