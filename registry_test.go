package fnagent

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(s string) json.RawMessage { return []byte(s) }

type doubleArgs struct {
	X int `json:"x"`
}

const doubleDoc = "Double x\n\nArgs:\n    x: the number to double"

func double(_ context.Context, a doubleArgs) (int, error) { return a.X * 2, nil }

func TestRegistry_RegisterFunc_Execute(t *testing.T) {
	reg := NewRegistry(WithDefaultTimeout(time.Second))
	require.NoError(t, reg.RegisterFunc("double", doubleDoc, double))
	require.Equal(t, 1, reg.Len())

	res := reg.Execute(context.Background(), ToolCall{ID: "1", Name: "double", Args: raw(`{"x": 7}`)})
	require.NoError(t, res.Err)
	assert.Equal(t, "1", res.CallID)
	assert.Equal(t, "double", res.Name)
	assert.Equal(t, "14", res.Output)
	assert.Equal(t, "14", res.Content())
}

func TestRegistry_Get(t *testing.T) {
	f, err := NewFunction("double", doubleDoc, double)
	require.NoError(t, err)
	reg := NewRegistry()
	require.NoError(t, reg.Register(f))
	got, ok := reg.Get("double")
	require.True(t, ok)
	require.Same(t, f, got)
	_, ok = reg.Get("missing")
	require.False(t, ok)
}

func TestRegistry_RegisterNil(t *testing.T) {
	reg := NewRegistry()
	require.Error(t, reg.Register(nil))
	assert.Zero(t, reg.Len())
}

func TestRegistry_SchemasInRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterFunc("get_current_weather", weatherDoc, weatherEnum))
	require.NoError(t, reg.RegisterFunc("double", doubleDoc, double))
	require.NoError(t, reg.RegisterFunc("alpha", "First letter", func() string { return "a" }))

	schemas := reg.Schemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "get_current_weather", schemas[0].Name)
	assert.Equal(t, "double", schemas[1].Name)
	assert.Equal(t, "alpha", schemas[2].Name)
	assert.JSONEq(t, expectedWeatherSchema, mustJSON(t, schemas[0]))
}

func TestRegistry_DuplicateReplacesWithWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	reg := NewRegistry(WithLogger(logger))
	require.NoError(t, reg.RegisterFunc("double", doubleDoc, double))
	require.NoError(t, reg.RegisterFunc("other", "Other", func() {}))
	require.NoError(t, reg.RegisterFunc("double", doubleDoc, func(a doubleArgs) int { return a.X * 3 }))

	assert.Contains(t, buf.String(), "function replaced")
	assert.Contains(t, buf.String(), "double")
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, "double", reg.Schemas()[0].Name, "replacement keeps the original position")

	res := reg.Execute(context.Background(), ToolCall{ID: "1", Name: "double", Args: raw(`{"x":2}`)})
	require.NoError(t, res.Err)
	assert.Equal(t, "6", res.Output)
}

func TestRegistry_DuplicateStrict(t *testing.T) {
	reg := NewRegistry(WithStrictNames())
	require.NoError(t, reg.RegisterFunc("double", doubleDoc, double))
	err := reg.RegisterFunc("double", doubleDoc, double)
	require.ErrorIs(t, err, ErrDuplicateFunction)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_RegisterFunc_DerivationError(t *testing.T) {
	reg := NewRegistry()
	err := reg.RegisterFunc("broken", "S\n\nArgs:\n    ghost: missing", double)
	require.ErrorIs(t, err, ErrUnknownParameter)
	assert.Zero(t, reg.Len())
}

func TestRegistry_Execute_FunctionNotFound(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	res := reg.Execute(context.Background(), ToolCall{ID: "1", Name: "missing", Args: raw("{}")})
	require.ErrorIs(t, res.Err, ErrFunctionNotFound)
	assert.True(t, res.Failed())
	assert.Equal(t, `CALL FAILED: function not found: "missing" is not registered`, res.Content())
	assert.Contains(t, buf.String(), "unknown function requested")
}

func TestRegistry_Execute_ArgumentError(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterFunc("double", doubleDoc, double))
	res := reg.Execute(context.Background(), ToolCall{ID: "1", Name: "double", Args: raw(`{"x":"seven"}`)})
	require.Error(t, res.Err)
	assert.True(t, IsArgumentError(res.Err))
	assert.Contains(t, res.Content(), FailurePrefix+"invalid arguments")
}

func TestRegistry_Execute_PanicRecovery(t *testing.T) {
	reg := NewRegistry(WithRecoverPanics(true))
	require.NoError(t, reg.RegisterFunc("panic", "Panics", func() string { panic("oops") }))
	res := reg.Execute(context.Background(), ToolCall{ID: "1", Name: "panic"})
	require.Error(t, res.Err)
	var ee *ExecutionError
	require.ErrorAs(t, res.Err, &ee)
	assert.Contains(t, ee.Err.Error(), "panic: oops")
	assert.Empty(t, res.Output)
}

func TestRegistry_Execute_Timeout(t *testing.T) {
	reg := NewRegistry(WithDefaultTimeout(10 * time.Millisecond))
	require.NoError(t, reg.RegisterFunc("slow", "Slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	res := reg.Execute(context.Background(), ToolCall{ID: "1", Name: "slow"})
	require.ErrorIs(t, res.Err, ErrTimeout)
	assert.True(t, IsExecutionError(res.Err))
}

func TestRegistry_Execute_FunctionTimeoutOverridesDefault(t *testing.T) {
	reg := NewRegistry(WithDefaultTimeout(time.Hour))
	f, err := NewFunction("slow", "Slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(5*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, reg.Register(f))

	start := time.Now()
	res := reg.Execute(context.Background(), ToolCall{ID: "1", Name: "slow"})
	require.ErrorIs(t, res.Err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestRegistry_Execute_Hooks(t *testing.T) {
	var before, after atomic.Int32
	var last ToolResult
	reg := NewRegistry(
		WithOnBeforeExecute(func(_ context.Context, call ToolCall) {
			assert.Equal(t, "double", call.Name)
			before.Add(1)
		}),
		WithOnAfterExecute(func(_ context.Context, _ ToolCall, res ToolResult, dur time.Duration) {
			assert.GreaterOrEqual(t, dur, time.Duration(0))
			last = res
			after.Add(1)
		}),
	)
	require.NoError(t, reg.RegisterFunc("double", doubleDoc, double))

	reg.Execute(context.Background(), ToolCall{ID: "1", Name: "double", Args: raw(`{"x":1}`)})
	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
	assert.Equal(t, "2", last.Output)

	// Lookup failures skip the before hook but are still observed afterwards.
	reg.Execute(context.Background(), ToolCall{ID: "2", Name: "missing"})
	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(2), after.Load())
	assert.ErrorIs(t, last.Err, ErrFunctionNotFound)
}

func TestRegistry_ExecuteBatch(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterFunc("double", doubleDoc, double))
	results := reg.ExecuteBatch(context.Background(), []ToolCall{
		{ID: "a", Name: "double", Args: raw(`{"x":1}`)},
		{ID: "b", Name: "missing"},
		{ID: "c", Name: "double", Args: raw(`{"x":3}`)},
	})
	require.Len(t, results, 3)
	assert.Equal(t, "2", results[0].Output)
	assert.ErrorIs(t, results[1].Err, ErrFunctionNotFound)
	assert.Equal(t, "c", results[2].CallID)
	assert.Equal(t, "6", results[2].Output)
}
