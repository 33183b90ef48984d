// Package agent runs a conversation with a function-calling chat model: it
// advertises the registered functions, dispatches the calls the model requests
// and feeds the results back until the model produces a final answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/fnagent"
)

const tracerName = "github.com/skosovsky/fnagent/agent"

var (
	// ErrNoModel is returned by New when Config.Model is empty.
	ErrNoModel = errors.New("agent: model is required")
	// ErrMaxRounds is returned by Run when MaxRounds pass without a final answer.
	ErrMaxRounds = errors.New("agent: round limit reached without a final answer")
	// ErrBusy is returned when Round or Run is called while another is in progress.
	ErrBusy = errors.New("agent: a run is already in progress")
	// ErrEmptyResponse is returned when the model answers with neither text nor calls.
	ErrEmptyResponse = errors.New("agent: final response has no content")
	// ErrRetriesExhausted wraps the last transient error once MaxAttempts are used.
	ErrRetriesExhausted = errors.New("agent: completion retries exhausted")
)

// RoundResult is the outcome of one round. When Done is set, Text holds the
// final answer; otherwise Results holds one entry per requested call, in the
// order the model listed them.
type RoundResult struct {
	Done    bool
	Text    string
	Message Message
	Results []fnagent.ToolResult
}

// Agent owns one conversation. Its history starts with the system message and
// only grows. An Agent serves one Run or Round at a time; use one Agent per
// concurrent conversation.
type Agent struct {
	id            string
	cfg           Config
	completer     Completer
	registry      *fnagent.Registry
	logger        *slog.Logger
	tracer        trace.Tracer
	newBackOff    func() backoff.BackOff
	failOnUnknown bool

	state atomic.Int32
	busy  atomic.Bool

	mu      sync.Mutex
	history []Message
}

// New creates an Agent talking to c.
func New(cfg Config, c Completer, opts ...Option) (*Agent, error) {
	if c == nil {
		return nil, errors.New("agent: nil completer")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, ErrNoModel
	}
	if cfg.MaxAttempts < 0 || cfg.MaxRounds < 0 || cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("agent: negative limit in config (attempts %d, rounds %d, timeout %s)",
			cfg.MaxAttempts, cfg.MaxRounds, cfg.RequestTimeout)
	}
	cfg = cfg.withDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = fnagent.NewRegistry(fnagent.WithLogger(o.logger))
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.newBackOff == nil {
		o.newBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}

	return &Agent{
		id:            uuid.NewString(),
		cfg:           cfg,
		completer:     c,
		registry:      o.registry,
		logger:        o.logger,
		tracer:        o.tracerProvider.Tracer(tracerName),
		newBackOff:    o.newBackOff,
		failOnUnknown: o.failOnUnknown,
		history:       []Message{SystemMessage(cfg.SystemPrompt)},
	}, nil
}

// ID returns the agent's session identifier.
func (a *Agent) ID() string { return a.id }

// Config returns the configuration with defaults applied.
func (a *Agent) Config() Config { return a.cfg }

// Registry returns the registry calls are dispatched through.
func (a *Agent) Registry() *fnagent.Registry { return a.registry }

// Register derives the schema of fn once and makes it available to the model.
func (a *Agent) Register(name, doc string, fn any, opts ...fnagent.FunctionOption) error {
	return a.registry.RegisterFunc(name, doc, fn, opts...)
}

// State reports where the agent is in its round lifecycle.
func (a *Agent) State() State { return State(a.state.Load()) }

// History returns a copy of the durable conversation history.
func (a *Agent) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneMessages(a.history)
}

// Round sends the history, plus prompt when it is not empty, and resolves the
// single response: a final answer, or a batch of calls that are all dispatched.
// An empty prompt resumes after a previous tool round.
func (a *Agent) Round(ctx context.Context, prompt string, opts ...RoundOption) (RoundResult, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return RoundResult{}, ErrBusy
	}
	defer a.busy.Store(false)

	ro := a.roundOptions(opts)
	res, scratch, err := a.round(ctx, 1, a.scratch(prompt), ro)
	if err != nil {
		return RoundResult{}, err
	}
	if ro.save {
		a.commit(scratch)
	}
	return res, nil
}

// Run repeats rounds until the model answers with text, sending prompt with the
// first one only. The new messages are committed to history once, at the end;
// a failed Run leaves history as it was.
func (a *Agent) Run(ctx context.Context, prompt string, opts ...RoundOption) (string, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer a.busy.Store(false)

	ctx, span := a.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("fnagent.agent_id", a.id),
		attribute.String("fnagent.model", a.cfg.Model),
	))
	defer span.End()

	ro := a.roundOptions(opts)
	scratch := a.scratch(prompt)
	for n := 1; n <= a.cfg.MaxRounds; n++ {
		res, next, err := a.round(ctx, n, scratch, ro)
		if err != nil {
			failSpan(span, err)
			return "", err
		}
		scratch = next
		if res.Done {
			if ro.save {
				a.commit(scratch)
			}
			span.SetAttributes(attribute.Int("fnagent.rounds", n))
			return res.Text, nil
		}
	}
	err := fmt.Errorf("%w (%d rounds)", ErrMaxRounds, a.cfg.MaxRounds)
	failSpan(span, err)
	return "", err
}

func (a *Agent) roundOptions(opts []RoundOption) roundOptions {
	ro := roundOptions{save: true, request: maps.Clone(a.cfg.Options)}
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}

// scratch returns a private copy of history with prompt appended.
func (a *Agent) scratch(prompt string) []Message {
	msgs := a.History()
	if prompt != "" {
		msgs = append(msgs, UserMessage(prompt))
	}
	return msgs
}

func (a *Agent) commit(msgs []Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = msgs
}

func (a *Agent) setState(s State) { a.state.Store(int32(s)) }

// round performs one request/response cycle on scratch and returns the
// extended scratch.
func (a *Agent) round(ctx context.Context, n int, scratch []Message, ro roundOptions) (RoundResult, []Message, error) {
	ctx, span := a.tracer.Start(ctx, "agent.round", trace.WithAttributes(
		attribute.String("fnagent.agent_id", a.id),
		attribute.Int("fnagent.round", n),
	))
	defer span.End()
	defer a.setState(StateIdle)

	a.setState(StateAwaitingCompletion)
	resp, err := a.complete(ctx, Request{
		Model:     a.cfg.Model,
		Messages:  cloneMessages(scratch),
		Functions: a.registry.Schemas(),
		Options:   ro.request,
	})
	if err != nil {
		failSpan(span, err)
		return RoundResult{}, nil, err
	}

	msg := resp.Message
	msg.Role = RoleAssistant
	if !msg.HasToolCalls() {
		if strings.TrimSpace(msg.Content) == "" {
			failSpan(span, ErrEmptyResponse)
			return RoundResult{}, nil, ErrEmptyResponse
		}
		span.SetAttributes(attribute.Bool("fnagent.final", true))
		return RoundResult{Done: true, Text: msg.Content, Message: msg}, append(scratch, msg), nil
	}

	if a.failOnUnknown {
		for _, call := range msg.ToolCalls {
			if _, ok := a.registry.Get(call.Name); !ok {
				err := fmt.Errorf("%w: model requested %q", fnagent.ErrFunctionNotFound, call.Name)
				a.logger.ErrorContext(ctx, "unknown function requested", "agent_id", a.id, "function", call.Name, "call_id", call.ID)
				failSpan(span, err)
				return RoundResult{}, nil, err
			}
		}
	}

	a.setState(StateDispatching)
	scratch = append(scratch, msg)
	results := make([]fnagent.ToolResult, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		res := a.dispatch(ctx, call)
		results = append(results, res)
		scratch = append(scratch, ToolMessage(res))
	}
	span.SetAttributes(attribute.Int("fnagent.tool_calls", len(results)))
	return RoundResult{Message: msg, Results: results}, scratch, nil
}

func (a *Agent) dispatch(ctx context.Context, call fnagent.ToolCall) fnagent.ToolResult {
	ctx, span := a.tracer.Start(ctx, "agent.call", trace.WithAttributes(
		attribute.String("fnagent.function", call.Name),
		attribute.String("fnagent.call_id", call.ID),
	))
	defer span.End()

	res := a.registry.Execute(ctx, call)
	if res.Failed() {
		failSpan(span, res.Err)
		a.logger.WarnContext(ctx, "function call failed",
			"agent_id", a.id, "function", call.Name, "call_id", call.ID, "error", res.Err)
	}
	return res
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
