package fnagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	gschema "github.com/google/jsonschema-go/jsonschema"
)

// Function is a Callable built from an ordinary Go function by NewFunction.
type Function struct {
	schema   CallSchema
	sig      *signature
	resolved *gschema.Resolved
	opts     functionOptions
}

// NewFunction derives the call schema of fn (see Derive) and prepares it for
// invocation. fn must have the shape func([ctx context.Context,] [Args]) ([R,] [error])
// where Args is a struct (or pointer to struct) describing the parameters.
func NewFunction(name, doc string, fn any, opts ...FunctionOption) (*Function, error) {
	var o functionOptions
	for _, opt := range opts {
		opt(&o)
	}
	d, err := describe(name, doc, fn)
	if err != nil {
		return nil, err
	}
	resolved, err := compileSchema(d.schema)
	if err != nil {
		return nil, &SchemaError{Function: name, Err: fmt.Errorf("%w: %v", ErrUnsupportedType, err)}
	}
	return &Function{
		schema:   d.schema,
		sig:      d.sig,
		resolved: resolved,
		opts:     o,
	}, nil
}

func (f *Function) Name() string { return f.schema.Name }

// Schema returns the call schema derived at construction.
// Nested schemas are shared; callers must not mutate them.
func (f *Function) Schema() CallSchema { return f.schema }

// Timeout returns the per-function timeout set with WithTimeout (0 when unset).
func (f *Function) Timeout() time.Duration { return f.opts.timeout }

// Call parses and validates argsJSON, applies defaults, decodes the argument
// struct and invokes the function. Bad input yields *ArgumentError; an error
// returned by the function yields *ExecutionError.
func (f *Function) Call(ctx context.Context, argsJSON []byte) (string, error) {
	in, err := f.decodeArgs(argsJSON)
	if err != nil {
		return "", err
	}
	if f.sig.withCtx {
		in = append([]reflect.Value{reflect.ValueOf(&ctx).Elem()}, in...)
	}
	out := f.sig.fn.Call(in)

	if f.sig.withErr {
		if errV := out[len(out)-1]; !errV.IsNil() {
			return "", wrapHandlerError(errV.Interface().(error))
		}
	}
	if f.sig.result == nil {
		return "null", nil
	}
	s, err := stringify(out[0].Interface())
	if err != nil {
		return "", &ExecutionError{Err: fmt.Errorf("encode result: %w", err)}
	}
	return s, nil
}

// decodeArgs returns the reflected argument list (without context).
func (f *Function) decodeArgs(argsJSON []byte) ([]reflect.Value, error) {
	argsJSON = bytes.TrimSpace(argsJSON)
	if len(argsJSON) == 0 || bytes.Equal(argsJSON, []byte("null")) {
		argsJSON = []byte("{}")
	}
	var v any
	if err := json.Unmarshal(argsJSON, &v); err != nil {
		return nil, wrapJSONParseError(err)
	}
	if err := validateAgainstSchema(f.resolved, v); err != nil {
		return nil, err
	}
	if f.sig.args == nil {
		return nil, nil
	}

	ptr := reflect.New(f.sig.args)
	args := ptr.Elem()
	for _, name := range f.sig.order {
		fd := f.sig.fields[name]
		if fd.def != nil {
			args.FieldByIndex(fd.index).Set(cloneValue(*fd.def))
		}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(argsJSON, &raw); err != nil {
		return nil, wrapJSONParseError(err)
	}
	// Only documented parameters are decoded; other keys are ignored and
	// their fields keep the default or zero value.
	for pair := f.schema.Parameters.Properties.Oldest(); pair != nil; pair = pair.Next() {
		msg, ok := raw[pair.Key]
		if !ok {
			continue
		}
		dst := args.FieldByIndex(f.sig.fields[pair.Key].index).Addr().Interface()
		if err := json.Unmarshal(msg, dst); err != nil {
			return nil, wrapJSONParseError(err)
		}
	}
	if err := validateCustom(args.Interface(), ptr.Interface()); err != nil {
		return nil, err
	}
	if f.sig.argsPtr {
		return []reflect.Value{ptr}, nil
	}
	return []reflect.Value{args}, nil
}

// cloneValue copies slice defaults so one call cannot mutate the default of the next.
func cloneValue(v reflect.Value) reflect.Value {
	if v.Kind() != reflect.Slice || v.IsNil() {
		return v
	}
	c := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(c, v)
	return c
}

// stringify renders a function result for the model.
func stringify(res any) (string, error) {
	switch r := res.(type) {
	case string:
		return r, nil
	case fmt.Stringer:
		return r.String(), nil
	}
	if rv := reflect.ValueOf(res); rv.IsValid() && rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ Callable = (*Function)(nil)
