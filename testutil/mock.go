// Package testutil provides test helpers for fnagent (fake functions and a
// scripted completion service).
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/skosovsky/fnagent"
	"github.com/skosovsky/fnagent/agent"
)

// MockFunction is a configurable Callable for tests.
type MockFunction struct {
	NameVal   string
	SchemaVal fnagent.CallSchema
	CallFn    func(ctx context.Context, args []byte) (string, error)

	mu    sync.Mutex
	calls [][]byte
}

// Name returns the function name.
func (m *MockFunction) Name() string {
	if m.NameVal != "" {
		return m.NameVal
	}
	return "mock"
}

// Schema returns SchemaVal, named after the function when it has no name.
func (m *MockFunction) Schema() fnagent.CallSchema {
	s := m.SchemaVal
	if s.Name == "" {
		s.Name = m.Name()
	}
	return s
}

// Call records args and runs CallFn if set, otherwise returns "ok".
func (m *MockFunction) Call(ctx context.Context, args []byte) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]byte(nil), args...))
	m.mu.Unlock()
	if m.CallFn != nil {
		return m.CallFn(ctx, args)
	}
	return "ok", nil
}

// Calls returns the argument payloads received so far.
func (m *MockFunction) Calls() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.calls...)
}

var _ fnagent.Callable = (*MockFunction)(nil)

// NewTestRegistry returns a Registry with long timeout and panic recovery enabled,
// suitable for tests.
func NewTestRegistry(fns ...fnagent.Callable) *fnagent.Registry {
	reg := fnagent.NewRegistry(
		fnagent.WithDefaultTimeout(30*time.Second),
		fnagent.WithRecoverPanics(true),
	)
	for _, fn := range fns {
		_ = reg.Register(fn)
	}
	return reg
}

// ErrScriptExhausted is returned by ScriptedCompleter when no step is left.
var ErrScriptExhausted = errors.New("testutil: completer script exhausted")

// Step is one scripted completion outcome.
type Step struct {
	Message agent.Message
	Err     error
}

// Reply is a step answering with final text.
func Reply(text string) Step {
	return Step{Message: agent.AssistantMessage(text)}
}

// CallFunctions is a step requesting the given calls.
func CallFunctions(calls ...fnagent.ToolCall) Step {
	return Step{Message: agent.ToolCallsMessage(calls...)}
}

// Fail is a step failing with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// ScriptedCompleter is an agent.Completer that plays back Steps in order and
// records every request it receives.
type ScriptedCompleter struct {
	mu       sync.Mutex
	steps    []Step
	requests []agent.Request
}

// NewScriptedCompleter returns a completer that answers with steps in order.
func NewScriptedCompleter(steps ...Step) *ScriptedCompleter {
	return &ScriptedCompleter{steps: steps}
}

// Complete records req and plays the next step.
func (s *ScriptedCompleter) Complete(ctx context.Context, req agent.Request) (*agent.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	return &agent.Response{Message: step.Message}, nil
}

// Requests returns the requests received so far.
func (s *ScriptedCompleter) Requests() []agent.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.Request(nil), s.requests...)
}

// Remaining returns the number of unplayed steps.
func (s *ScriptedCompleter) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

var _ agent.Completer = (*ScriptedCompleter)(nil)
