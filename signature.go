package fnagent

import (
	"context"
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// signature is the reflected shape of a registrable function:
// func([ctx context.Context,] [Args]) ([R,] [error]).
type signature struct {
	fn      reflect.Value
	withCtx bool
	args    reflect.Type // struct type; nil when the function takes no arguments
	argsPtr bool
	result  reflect.Type // nil when the function returns no value
	withErr bool
	fields  map[string]field
	order   []string // parameter names in struct order
}

// field is one parameter of the argument struct.
type field struct {
	name     string
	index    []int
	typ      reflect.Type
	def      *reflect.Value // parsed default tag; nil when absent
	literals []string       // enum tag tokens; nil when absent
}

func inspectSignature(fn any) (*signature, error) {
	if fn == nil {
		return nil, ErrNotAFunction
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: got %s", ErrNotAFunction, t)
	}
	if v.IsNil() {
		return nil, fmt.Errorf("%w: nil %s", ErrNotAFunction, t)
	}
	if t.IsVariadic() {
		return nil, fmt.Errorf("%w: variadic functions are not supported", ErrBadSignature)
	}
	sig := &signature{fn: v}

	in := 0
	if t.NumIn() > in && t.In(in) == contextType {
		sig.withCtx = true
		in++
	}
	if t.NumIn() > in {
		at := t.In(in)
		if at.Kind() == reflect.Pointer && at.Elem().Kind() == reflect.Struct {
			sig.argsPtr = true
			at = at.Elem()
		}
		if at.Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: arguments must be a struct, got %s", ErrBadSignature, t.In(in))
		}
		sig.args = at
		in++
	}
	if t.NumIn() != in {
		return nil, fmt.Errorf("%w: want func([context.Context,] [Args]), got %s", ErrBadSignature, t)
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			sig.withErr = true
		} else {
			sig.result = t.Out(0)
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("%w: second result must be error, got %s", ErrBadSignature, t.Out(1))
		}
		sig.result = t.Out(0)
		sig.withErr = true
	default:
		return nil, fmt.Errorf("%w: too many results in %s", ErrBadSignature, t)
	}
	return sig, nil
}

// collectFields indexes the exported fields of the argument struct by their JSON
// name, parsing default tags. Promoted fields of embedded value structs are included.
func (s *signature) collectFields(function string) error {
	s.fields = make(map[string]field)
	if s.args == nil {
		return nil
	}
	for _, sf := range reflect.VisibleFields(s.args) {
		if sf.Anonymous || !sf.IsExported() || throughPointer(s.args, sf.Index) {
			continue
		}
		tag := sf.Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if tag == "-" {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if _, dup := s.fields[name]; dup {
			continue
		}
		f := field{name: name, index: sf.Index, typ: sf.Type}
		if lit, ok := sf.Tag.Lookup("enum"); ok {
			f.literals = splitLiterals(lit)
		}
		if raw, ok := sf.Tag.Lookup("default"); ok {
			dv := reflect.New(sf.Type).Elem()
			if err := setFromString(dv, raw); err != nil {
				return &SchemaError{
					Function:  function,
					Parameter: name,
					Type:      sf.Type,
					Err:       fmt.Errorf("%w: %q: %v", ErrInvalidDefault, raw, err),
				}
			}
			f.def = &dv
		}
		s.fields[name] = f
		s.order = append(s.order, name)
	}
	return nil
}

// throughPointer reports whether reaching index from t dereferences an embedded pointer.
func throughPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		sf := t.Field(i)
		if sf.Type.Kind() == reflect.Pointer {
			return true
		}
		t = sf.Type
	}
	return false
}

// setFromString parses s into v according to v's type.
func setFromString(v reflect.Value, s string) error {
	if tu, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return tu.UnmarshalText([]byte(s))
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	default:
		return json.Unmarshal([]byte(s), v.Addr().Interface())
	}
	return nil
}
