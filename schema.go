package fnagent

import (
	"encoding/json"
	"errors"
	"regexp"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var validName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// CallSchema describes a function to the model: its name, its summary and an
// object schema whose properties follow documentation order.
type CallSchema struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// MarshalJSON renders the schema in the chat-completions tool format:
// {"type":"function","function":{"name","description","parameters"}}.
func (s CallSchema) MarshalJSON() ([]byte, error) {
	type function struct {
		Name        string             `json:"name"`
		Description string             `json:"description"`
		Parameters  *jsonschema.Schema `json:"parameters"`
	}
	return json.Marshal(struct {
		Type     string   `json:"type"`
		Function function `json:"function"`
	}{
		Type:     "function",
		Function: function{Name: s.Name, Description: s.Description, Parameters: s.Parameters},
	})
}

// PropertyNames returns the advertised parameter names in order.
func (s CallSchema) PropertyNames() []string {
	if s.Parameters == nil || s.Parameters.Properties == nil {
		return nil
	}
	names := make([]string, 0, s.Parameters.Properties.Len())
	for pair := s.Parameters.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Property returns the schema of one advertised parameter.
func (s CallSchema) Property(name string) (*jsonschema.Schema, bool) {
	if s.Parameters == nil || s.Parameters.Properties == nil {
		return nil, false
	}
	return s.Parameters.Properties.Get(name)
}

// Derive builds the call schema of fn from its argument struct and its
// Google-style docstring. It is pure: the same function and doc always yield the
// same schema. Errors are *SchemaError wrapping one of the derivation sentinels.
func Derive(name, doc string, fn any) (CallSchema, error) {
	d, err := describe(name, doc, fn)
	if err != nil {
		return CallSchema{}, err
	}
	return d.schema, nil
}

// description is everything learned about a function at registration time.
type description struct {
	schema CallSchema
	sig    *signature
}

func describe(name, doc string, fn any) (*description, error) {
	sig, err := inspectSignature(fn)
	if err != nil {
		return nil, &SchemaError{Function: name, Err: err}
	}
	if !validName.MatchString(name) {
		return nil, &SchemaError{Function: name, Err: ErrInvalidName}
	}
	if err := sig.collectFields(name); err != nil {
		return nil, err
	}
	parsed, err := parseDocstring(doc)
	if err != nil {
		return nil, &SchemaError{Function: name, Err: err}
	}

	props := orderedmap.New[string, *jsonschema.Schema]()
	var required []string
	for _, p := range parsed.Params {
		f, ok := sig.fields[p.Name]
		if !ok {
			return nil, &SchemaError{Function: name, Parameter: p.Name, Err: ErrUnknownParameter}
		}
		prop, err := expandType(f.typ, f.literals)
		if err != nil {
			se := &SchemaError{Function: name, Parameter: p.Name, Type: f.typ, Err: err}
			var ee *expandError
			if errors.As(err, &ee) {
				se.Type = ee.typ
				se.Err = ee.err
			}
			return nil, se
		}
		prop.Description = p.Description
		props.Set(p.Name, prop)
		if f.def == nil {
			required = append(required, p.Name)
		}
	}

	params := &jsonschema.Schema{
		Type:       typeObject,
		Properties: props,
		Required:   required,
	}
	if len(required) == 0 {
		// Required is omitempty; an empty list still goes on the wire.
		params.Extras = map[string]any{"required": []string{}}
	}
	return &description{
		schema: CallSchema{
			Name:        name,
			Description: parsed.Summary,
			Parameters:  params,
		},
		sig: sig,
	}, nil
}
