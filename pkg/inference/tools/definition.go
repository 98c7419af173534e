package tools

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ToolDefinition is a tool that can be called by the model.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
	Function    ToolFunc           `json:"-"`
}

// ToolFunc wraps the Go function behind a tool.
type ToolFunc struct {
	Fn       interface{}
	executor func(context.Context, []byte) (interface{}, error)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// NewToolFromFunc creates a ToolDefinition from a Go function with one of the signatures
//
//	func(Input) (Result, error)
//	func(context.Context, Input) (Result, error)
//	func(context.Context) (Result, error)
//
// The input schema is reflected from Input.
func NewToolFromFunc(name, description string, fn interface{}) (*ToolDefinition, error) {
	funcType := reflect.TypeOf(fn)
	if funcType == nil || funcType.Kind() != reflect.Func {
		return nil, errors.New("provided value is not a function")
	}
	if funcType.NumOut() == 0 || funcType.NumOut() > 2 {
		return nil, errors.New("function must return (result) or (result, error)")
	}
	if funcType.NumOut() == 2 && !funcType.Out(1).Implements(errorType) {
		return nil, errors.New("second return value must be an error")
	}

	var inType reflect.Type
	withCtx := false
	switch funcType.NumIn() {
	case 0:
	case 1:
		if funcType.In(0) == contextType {
			withCtx = true
		} else {
			inType = funcType.In(0)
		}
	case 2:
		if funcType.In(0) != contextType {
			return nil, errors.New("two-arg tool function must be (context.Context, Input)")
		}
		withCtx = true
		inType = funcType.In(1)
	default:
		return nil, errors.New("function must take (Input), (context.Context, Input) or (context.Context)")
	}

	schema := &jsonschema.Schema{Type: "object"}
	if inType != nil {
		reflector := jsonschema.Reflector{
			// Expand definitions inline instead of using $refs
			DoNotReference: true,
		}
		schema = reflector.Reflect(reflect.New(inType).Elem().Interface())
		if schema.Type == "" && schema.Ref == "" {
			schema.Type = "object"
		}
	}

	funcValue := reflect.ValueOf(fn)
	executor := func(ctx context.Context, args []byte) (interface{}, error) {
		var in []reflect.Value
		if withCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		if inType != nil {
			input := reflect.New(inType)
			if len(args) > 0 {
				if err := json.Unmarshal(args, input.Interface()); err != nil {
					log.Debug().Err(err).Str("tool", name).Str("args", string(args)).Msg("tools: failed to unmarshal arguments")
					return nil, errors.Wrap(ErrInvalidInput, err.Error())
				}
			}
			in = append(in, input.Elem())
		}
		return extractResults(funcValue.Call(in))
	}

	return &ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Function:    ToolFunc{Fn: fn, executor: executor},
	}, nil
}

// Execute calls the tool function with JSON arguments.
func (tf *ToolFunc) Execute(ctx context.Context, args []byte) (interface{}, error) {
	if tf.executor == nil {
		return nil, errors.New("tool function not properly initialized")
	}
	return tf.executor(ctx, args)
}

// Spec returns the provider-facing specification of the tool.
func (d *ToolDefinition) Spec() (ToolSpec, error) {
	schema := map[string]any{"type": "object"}
	if d.Parameters != nil {
		b, err := json.Marshal(d.Parameters)
		if err != nil {
			return ToolSpec{}, errors.Wrapf(err, "encoding schema of %s", d.Name)
		}
		schema = map[string]any{}
		if err := json.Unmarshal(b, &schema); err != nil {
			return ToolSpec{}, errors.Wrapf(err, "decoding schema of %s", d.Name)
		}
		delete(schema, "$schema")
		delete(schema, "$id")
	}
	return ToolSpec{Name: d.Name, Description: d.Description, InputSchema: schema}, nil
}

func extractResults(results []reflect.Value) (interface{}, error) {
	switch len(results) {
	case 1:
		return results[0].Interface(), nil
	case 2:
		if errVal := results[1].Interface(); errVal != nil {
			return results[0].Interface(), errVal.(error)
		}
		return results[0].Interface(), nil
	default:
		return nil, errors.Errorf("unexpected number of return values: %d", len(results))
	}
}
