package agent

import (
	"log/slog"
	"maps"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/fnagent"
)

// DefaultSystemPrompt is used when Config.SystemPrompt is empty.
const DefaultSystemPrompt = "You are a helpful assistant."

const (
	defaultMaxAttempts = 3
	defaultMaxRounds   = 10
)

// Config holds the per-agent settings.
type Config struct {
	Model        string
	SystemPrompt string
	// MaxAttempts bounds completion attempts per round (default 3).
	MaxAttempts int
	// MaxRounds bounds the rounds of one Run (default 10).
	MaxRounds int
	// RequestTimeout limits each completion attempt; zero means no limit.
	RequestTimeout time.Duration
	// Options are sent with every request (temperature, max_tokens, ...).
	Options map[string]any
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = defaultMaxRounds
	}
	c.Options = maps.Clone(c.Options)
	return c
}

// Option configures an Agent.
type Option func(*options)

type options struct {
	registry       *fnagent.Registry
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	newBackOff     func() backoff.BackOff
	failOnUnknown  bool
}

// WithRegistry makes the agent dispatch through reg instead of a private registry.
func WithRegistry(reg *fnagent.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithLogger sets the logger for retries and failed calls.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracerProvider sets the provider for round and call spans.
// The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithBackOff sets the back-off policy between completion attempts. newBackOff
// is called once per round so policies with state start fresh.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(o *options) {
		o.newBackOff = newBackOff
	}
}

// WithFailOnUnknownFunction turns a tool call naming an unregistered function
// into a round error instead of a failure result sent back to the model.
func WithFailOnUnknownFunction() Option {
	return func(o *options) {
		o.failOnUnknown = true
	}
}

// RoundOption configures a single Round or Run.
type RoundOption func(*roundOptions)

type roundOptions struct {
	save    bool
	request map[string]any
}

// WithoutSave keeps the round out of the durable history.
func WithoutSave() RoundOption {
	return func(o *roundOptions) {
		o.save = false
	}
}

// WithRequestOptions merges opts over Config.Options for this call only.
func WithRequestOptions(opts map[string]any) RoundOption {
	return func(o *roundOptions) {
		if o.request == nil {
			o.request = make(map[string]any, len(opts))
		}
		maps.Copy(o.request, opts)
	}
}
