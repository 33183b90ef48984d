package fnagent

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a Callable with cross-cutting behavior (logging, timeout).
type Middleware func(Callable) Callable

// WithLogging returns a middleware that logs start, end, duration, and errors.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Callable) Callable {
		return &loggingCallable{callableBase: callableBase{next: next}, logger: logger}
	}
}

// WithTimeoutMiddleware returns a middleware that enforces a per-function timeout.
// Named with "Middleware" suffix to avoid collision with FunctionOption WithTimeout.
// When both the registry timeout and this middleware apply, the shorter one wins.
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return func(next Callable) Callable {
		return &timeoutCallable{callableBase: callableBase{next: next}, timeout: d}
	}
}

// callableBase delegates Name, Schema and Timeout to the wrapped Callable.
type callableBase struct{ next Callable }

func (b *callableBase) Name() string       { return b.next.Name() }
func (b *callableBase) Schema() CallSchema { return b.next.Schema() }

func (b *callableBase) Timeout() time.Duration {
	if tm, ok := b.next.(interface{ Timeout() time.Duration }); ok {
		return tm.Timeout()
	}
	return 0
}

type loggingCallable struct {
	callableBase
	logger *slog.Logger
}

func (m *loggingCallable) Call(ctx context.Context, args []byte) (string, error) {
	m.logger.DebugContext(ctx, "function start", "function", m.next.Name())
	start := time.Now()
	res, err := m.next.Call(ctx, args)
	dur := time.Since(start)
	if err != nil {
		m.logger.ErrorContext(ctx, "function error", "function", m.next.Name(), "duration", dur, "error", err)
		return "", err
	}
	m.logger.DebugContext(ctx, "function end", "function", m.next.Name(), "duration", dur)
	return res, nil
}

type timeoutCallable struct {
	callableBase
	timeout time.Duration
}

func (t *timeoutCallable) Timeout() time.Duration {
	if t.timeout > 0 {
		return t.timeout
	}
	return t.callableBase.Timeout()
}

func (t *timeoutCallable) Call(ctx context.Context, args []byte) (string, error) {
	if t.timeout <= 0 {
		return t.next.Call(ctx, args)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Call(ctx, args)
}

// Use stores the given middlewares and reapplies them from scratch to all registered
// functions (onion order: first middleware is outermost). Functions registered after
// Use also get them. Calling Use again replaces the chain without double-wrapping.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = middlewares
	for name, raw := range r.rawFuncs {
		c := raw
		for i := len(middlewares) - 1; i >= 0; i-- {
			c = middlewares[i](c)
		}
		r.funcs[name] = c
	}
}
