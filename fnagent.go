package fnagent

import (
	"context"
	"encoding/json"
)

// FailurePrefix marks tool-result content produced by a failed call.
const FailurePrefix = "CALL FAILED: "

// Callable is a registered function as seen by Registry and the agent loop.
// It is provider-agnostic (no knowledge of OpenAI, Anthropic, etc.).
type Callable interface {
	Name() string
	// Schema returns the call schema advertised to the model. It is derived once.
	Schema() CallSchema
	// Call decodes argsJSON, invokes the function and returns its displayable result.
	Call(ctx context.Context, argsJSON []byte) (string, error)
}

// Enum is implemented by named types with a fixed set of values. EnumValues must
// return the values in declared order; it is called on the zero value of the type.
type Enum interface {
	EnumValues() []any
}

// ToolCall is a single invocation request (as produced by the model).
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"arguments,omitempty"` // JSON payload of arguments
}

// ToolResult is the outcome of one ToolCall. Exactly one of Output and Err is meaningful.
type ToolResult struct {
	CallID string
	Name   string
	Output string
	Err    error
}

// Failed reports whether the call did not produce an output.
func (r ToolResult) Failed() bool { return r.Err != nil }

// Content returns the text sent back to the model: the output on success,
// or FailurePrefix followed by the error text.
func (r ToolResult) Content() string {
	if r.Err != nil {
		return FailurePrefix + r.Err.Error()
	}
	return r.Output
}
