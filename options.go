package fnagent

import (
	"context"
	"log/slog"
	"time"
)

// functionOptions hold optional per-function settings.
type functionOptions struct {
	timeout time.Duration
}

// FunctionOption configures a Function (e.g. WithTimeout).
type FunctionOption func(*functionOptions)

// WithTimeout sets a per-function timeout; Registry uses it instead of its default.
func WithTimeout(d time.Duration) FunctionOption {
	return func(o *functionOptions) {
		o.timeout = d
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	timeout       time.Duration
	recoverPanics bool
	strictNames   bool
	logger        *slog.Logger
	onBefore      func(context.Context, ToolCall)
	onAfter       func(context.Context, ToolCall, ToolResult, time.Duration)
}

// WithDefaultTimeout sets the default execution timeout for functions.
// Zero disables it.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(o *registryOptions) {
		o.timeout = d
	}
}

// WithRecoverPanics enables panic recovery in Execute (returns ExecutionError).
func WithRecoverPanics(enable bool) RegistryOption {
	return func(o *registryOptions) {
		o.recoverPanics = enable
	}
}

// WithStrictNames makes Register fail with ErrDuplicateFunction instead of
// replacing a function registered under the same name.
func WithStrictNames() RegistryOption {
	return func(o *registryOptions) {
		o.strictNames = true
	}
}

// WithLogger sets the logger for registry warnings and lookup failures.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(o *registryOptions) {
		o.logger = logger
	}
}

// WithOnBeforeExecute sets a hook called before each function execution.
func WithOnBeforeExecute(fn func(context.Context, ToolCall)) RegistryOption {
	return func(o *registryOptions) {
		o.onBefore = fn
	}
}

// WithOnAfterExecute sets a hook called after each execution, including failed
// lookups, so absorbed failures stay observable.
func WithOnAfterExecute(fn func(context.Context, ToolCall, ToolResult, time.Duration)) RegistryOption {
	return func(o *registryOptions) {
		o.onAfter = fn
	}
}
