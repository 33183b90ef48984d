package fnagent

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// JSON Schema primitive type names used in call schemas.
const (
	typeInteger = "integer"
	typeNumber  = "number"
	typeString  = "string"
	typeBoolean = "boolean"
	typeArray   = "array"
	typeObject  = "object"
)

var (
	enumType            = reflect.TypeFor[Enum]()
	jsonUnmarshalerType = reflect.TypeFor[json.Unmarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// expandError is returned by expandType; the caller attaches function and parameter names.
type expandError struct {
	typ reflect.Type
	err error
}

func (e *expandError) Error() string { return e.err.Error() }
func (e *expandError) Unwrap() error { return e.err }

// expandType resolves t to a parameter schema. literals holds the tokens of an
// enum tag, applied to the innermost element type; nil means no tag.
func expandType(t reflect.Type, literals []string) (*jsonschema.Schema, error) {
	if k := t.Kind(); k == reflect.Interface || k == reflect.Pointer {
		return nil, &expandError{typ: t, err: ErrUnsupportedType}
	}
	if t.Implements(enumType) {
		if literals != nil {
			return nil, &expandError{typ: t, err: fmt.Errorf("%w: enum tag on a type that already declares its values", ErrMixedEnumTypes)}
		}
		return expandEnumType(t)
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return nil, &expandError{typ: t, err: ErrUnsupportedType}
		}
		items, err := expandType(t.Elem(), literals)
		if err != nil {
			return nil, err
		}
		return &jsonschema.Schema{Type: typeArray, Items: items}, nil
	}
	prim, ok := primitiveOf(t.Kind())
	if !ok {
		return nil, &expandError{typ: t, err: ErrUnsupportedType}
	}
	if literals == nil {
		return &jsonschema.Schema{Type: prim}, nil
	}
	values := make([]any, 0, len(literals))
	for _, lit := range literals {
		v, err := parseLiteral(t, lit)
		if err != nil {
			return nil, &expandError{typ: t, err: fmt.Errorf("%w: %q is not a %s", ErrMixedEnumTypes, lit, prim)}
		}
		values = append(values, v)
	}
	return &jsonschema.Schema{Type: prim, Enum: values}, nil
}

// expandEnumType expands a type implementing Enum into {type, enum}.
func expandEnumType(t reflect.Type) (*jsonschema.Schema, error) {
	raw := reflect.Zero(t).Interface().(Enum).EnumValues()
	if len(raw) == 0 {
		return nil, &expandError{typ: t, err: fmt.Errorf("%w: no values declared", ErrMixedEnumTypes)}
	}
	var prim string
	values := make([]any, 0, len(raw))
	for _, v := range raw {
		if v == nil {
			return nil, &expandError{typ: t, err: fmt.Errorf("%w: nil value", ErrMixedEnumTypes)}
		}
		rv := reflect.ValueOf(v)
		p, ok := primitiveOf(rv.Kind())
		if !ok {
			return nil, &expandError{typ: rv.Type(), err: ErrUnsupportedType}
		}
		if prim != "" && p != prim {
			return nil, &expandError{typ: t, err: fmt.Errorf("%w: found %s and %s", ErrMixedEnumTypes, prim, p)}
		}
		prim = p
		values = append(values, normalizeValue(rv))
	}
	// Decoding goes through the Go type, so its own kind must accept the values
	// unless it brings its own unmarshaler.
	if own, ok := primitiveOf(t.Kind()); ok && own != prim && !customDecoding(t) {
		return nil, &expandError{typ: t, err: fmt.Errorf("%w: %s values for a %s type", ErrMixedEnumTypes, prim, own)}
	}
	return &jsonschema.Schema{Type: prim, Enum: values}, nil
}

func customDecoding(t reflect.Type) bool {
	pt := reflect.PointerTo(t)
	return pt.Implements(jsonUnmarshalerType) || pt.Implements(textUnmarshalerType)
}

// primitiveOf maps a reflect kind to a JSON Schema primitive type name.
func primitiveOf(k reflect.Kind) (string, bool) {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return typeInteger, true
	case reflect.Float32, reflect.Float64:
		return typeNumber, true
	case reflect.String:
		return typeString, true
	case reflect.Bool:
		return typeBoolean, true
	default:
		return "", false
	}
}

// normalizeValue strips named types so both enum representations compare equal.
func normalizeValue(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return v.Bool()
	default:
		return v.Interface()
	}
}

// parseLiteral parses one enum tag token as the primitive kind of t.
func parseLiteral(t reflect.Type, lit string) (any, error) {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.ParseInt(lit, 10, t.Bits())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.ParseUint(lit, 10, t.Bits())
	case reflect.Float32, reflect.Float64:
		return strconv.ParseFloat(lit, t.Bits())
	case reflect.Bool:
		return strconv.ParseBool(lit)
	case reflect.String:
		if unq, err := strconv.Unquote(lit); err == nil {
			return unq, nil
		}
		return lit, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// splitLiterals splits an enum tag into trimmed tokens.
func splitLiterals(tag string) []string {
	parts := strings.Split(tag, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
