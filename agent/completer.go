package agent

import (
	"context"
	"errors"

	"github.com/skosovsky/fnagent"
)

// Request is what the agent sends to the completion service for one attempt.
type Request struct {
	Model     string
	Messages  []Message
	Functions []fnagent.CallSchema
	Options   map[string]any
}

// Response is the single message returned by the completion service.
type Response struct {
	Message Message
}

// Completer is the remote completion service. Implementations report failures
// worth retrying as *TransientError; anything else is treated as permanent.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (*Response, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// TransientKind classifies a retryable completion failure.
type TransientKind int

const (
	TransientTimeout TransientKind = iota + 1
	TransientRateLimit
	TransientService
)

func (k TransientKind) String() string {
	switch k {
	case TransientTimeout:
		return "timeout"
	case TransientRateLimit:
		return "rate limit"
	case TransientService:
		return "service error"
	default:
		return "unknown"
	}
}

// TransientError marks a completion failure the agent may retry.
type TransientError struct {
	Kind TransientKind
	Err  error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return "transient " + e.Kind.String()
	}
	return "transient " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is or wraps a *TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
