package fnagent

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors for fnagent. Use errors.Is to check.
var (
	// Derivation (registration-time) errors.
	ErrNotAFunction     = errors.New("not a function")
	ErrBadSignature     = errors.New("unsupported function signature")
	ErrInvalidName      = errors.New("invalid function name")
	ErrMalformedDoc     = errors.New("malformed documentation")
	ErrUnknownParameter = errors.New("documented parameter not in signature")
	ErrMixedEnumTypes   = errors.New("enum values must share exactly one primitive type")
	ErrUnsupportedType  = errors.New("unsupported parameter type")
	ErrInvalidDefault   = errors.New("invalid default value")

	// Registry and execution errors.
	ErrDuplicateFunction = errors.New("function already registered")
	ErrFunctionNotFound  = errors.New("function not found")
	ErrTimeout           = errors.New("function execution timeout")
	ErrValidation        = errors.New("validation failed")
)

// SchemaError reports why a function could not be described. Err is one of the
// derivation sentinels; Type is the rejected Go type when one is involved.
type SchemaError struct {
	Function  string
	Parameter string
	Type      reflect.Type
	Err       error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("fnagent: function %q", e.Function)
	if e.Parameter != "" {
		msg += fmt.Sprintf(" parameter %q", e.Parameter)
	}
	msg += ": " + e.Err.Error()
	if e.Type != nil {
		msg += fmt.Sprintf(" (type %s)", e.Type)
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ArgumentError is an error that should be sent back to the model for self-correction
// (e.g. invalid JSON, schema validation failure, bad enum value).
// Err optionally wraps a sentinel (e.g. ErrValidation) for errors.Is/errors.As.
type ArgumentError struct {
	Reason string
	Err    error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments: %s", e.Reason)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// ExecutionError wraps a failure raised by the function body (returned error or panic).
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return "execution failed: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsArgumentError returns true if err is or wraps an ArgumentError.
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// IsExecutionError returns true if err is or wraps an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// wrapJSONParseError returns an ArgumentError for JSON unmarshal failures.
func wrapJSONParseError(err error) error {
	return &ArgumentError{Reason: "json parse error: " + err.Error()}
}

// wrapHandlerError passes through ArgumentError; wraps other errors as ExecutionError.
func wrapHandlerError(err error) error {
	if err == nil {
		return nil
	}
	if IsArgumentError(err) {
		return err
	}
	return &ExecutionError{Err: err}
}

// panicError wraps a recovered panic value for ExecutionError.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
