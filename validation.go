package fnagent

import (
	"encoding/json"

	gschema "github.com/google/jsonschema-go/jsonschema"
)

// Validatable is implemented by argument structs that need custom business validation.
// Called after schema validation and decoding.
type Validatable interface {
	Validate() error
}

// schemaValidator validates a JSON-like value (e.g. map[string]any from json.Unmarshal).
// *gschema.Resolved implements it.
type schemaValidator interface {
	Validate(v any) error
}

// compileSchema compiles the advertised parameters schema into a resolved validator,
// so incoming arguments are checked against exactly what the model was shown.
func compileSchema(s CallSchema) (*gschema.Resolved, error) {
	data, err := json.Marshal(s.Parameters)
	if err != nil {
		return nil, err
	}
	var compiled gschema.Schema
	if err := json.Unmarshal(data, &compiled); err != nil {
		return nil, err
	}
	return compiled.Resolve(nil)
}

// validateAgainstSchema runs Layer 1 validation on an already-parsed value v.
func validateAgainstSchema(validate schemaValidator, v any) error {
	if err := validate.Validate(v); err != nil {
		return &ArgumentError{Reason: err.Error(), Err: ErrValidation}
	}
	return nil
}

// validateCustom runs Layer 2 (Validatable) if args implements it, trying the
// pointer receiver when the value does not.
func validateCustom(args any, addr any) error {
	v, ok := args.(Validatable)
	if !ok {
		v, ok = addr.(Validatable)
	}
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if IsArgumentError(err) {
			return err
		}
		return &ArgumentError{Reason: err.Error(), Err: ErrValidation}
	}
	return nil
}
