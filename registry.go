package fnagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry holds functions by name and executes tool calls against them with
// timeout and panic recovery. Registration order is kept for advertising.
type Registry struct {
	funcs       map[string]Callable // wrapped with middlewares, used by Execute
	rawFuncs    map[string]Callable // unwrapped, used by Use() to re-apply middlewares from scratch
	order       []string
	opts        registryOptions
	mu          sync.Mutex
	middlewares []Middleware
}

// NewRegistry creates a Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		timeout:       30 * time.Second,
		recoverPanics: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Registry{
		funcs:    make(map[string]Callable),
		rawFuncs: make(map[string]Callable),
		opts:     o,
	}
}

// Register adds a function. Stored middlewares (see Use) are applied first.
// A function with the same name is replaced (keeping its position) and a warning
// is logged, unless the registry was built WithStrictNames.
func (r *Registry) Register(c Callable) error {
	if c == nil {
		return fmt.Errorf("fnagent: register nil function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.Name()
	if _, exists := r.rawFuncs[name]; exists {
		if r.opts.strictNames {
			return fmt.Errorf("%w: %q", ErrDuplicateFunction, name)
		}
		r.opts.logger.Warn("function replaced", "function", name)
	} else {
		r.order = append(r.order, name)
	}
	r.rawFuncs[name] = c
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		c = r.middlewares[i](c)
	}
	r.funcs[name] = c
	return nil
}

// RegisterFunc builds a Function with NewFunction and registers it. A derivation
// error leaves the registry untouched.
func (r *Registry) RegisterFunc(name, doc string, fn any, opts ...FunctionOption) error {
	f, err := NewFunction(name, doc, fn, opts...)
	if err != nil {
		return err
	}
	return r.Register(f)
}

// Get returns the function with the given name (after middlewares are applied), or (nil, false).
func (r *Registry) Get(name string) (Callable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.funcs[name]
	return c, ok
}

// All returns the registered functions in registration order.
func (r *Registry) All() []Callable {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Callable, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.funcs[name])
	}
	return out
}

// Schemas returns the call schemas of all functions in registration order.
func (r *Registry) Schemas() []CallSchema {
	all := r.All()
	out := make([]CallSchema, len(all))
	for i, c := range all {
		out[i] = c.Schema()
	}
	return out
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Execute runs one tool call. It never returns a bare error: lookup, argument and
// execution failures are reported in ToolResult.Err. The after-execution hook is
// always invoked.
func (r *Registry) Execute(ctx context.Context, call ToolCall) (res ToolResult) {
	res = ToolResult{CallID: call.ID, Name: call.Name}
	start := time.Now()
	defer func() {
		if r.opts.onAfter != nil {
			r.opts.onAfter(ctx, call, res, time.Since(start))
		}
	}()

	fn, ok := r.Get(call.Name)
	if !ok {
		res.Err = fmt.Errorf("%w: %q is not registered", ErrFunctionNotFound, call.Name)
		r.opts.logger.Error("unknown function requested", "function", call.Name, "call_id", call.ID)
		return res
	}

	timeout := r.opts.timeout
	if tm, ok := fn.(interface{ Timeout() time.Duration }); ok && tm.Timeout() > 0 {
		timeout = tm.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if r.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				res.Output = ""
				res.Err = &ExecutionError{Err: &panicError{p: p}}
			}
		}()
	}

	if r.opts.onBefore != nil {
		r.opts.onBefore(ctx, call)
	}

	out, err := fn.Call(ctx, call.Args)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		err = &ExecutionError{Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)}
	}
	res.Output, res.Err = out, err
	return res
}

// ExecuteBatch runs calls sequentially in the given order and returns one result
// per call. A failing call does not stop the others.
func (r *Registry) ExecuteBatch(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, r.Execute(ctx, call))
	}
	return results
}
