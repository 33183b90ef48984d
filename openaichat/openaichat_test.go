package openaichat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/fnagent"
	"github.com/skosovsky/fnagent/agent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type weatherArgs struct {
	Unit     string `json:"unit" enum:"celsius,fahrenheit" default:"fahrenheit"`
	Location string `json:"location"`
}

const weatherDoc = `Get the current weather

Args:
    location: The city and state, e.g. San Francisco, CA
    unit: The temperature unit to use.`

func weatherSchema(t *testing.T) fnagent.CallSchema {
	t.Helper()
	s, err := fnagent.Derive("get_current_weather", weatherDoc, func(weatherArgs) string { return "sunny" })
	require.NoError(t, err)
	return s
}

const textCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-test",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "logprobs": null,
    "message": {"role": "assistant", "content": "It is sunny.", "refusal": null}
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
}`

const toolCompletion = `{
  "id": "chatcmpl-2",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-test",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "logprobs": null,
    "message": {
      "role": "assistant",
      "content": null,
      "refusal": null,
      "tool_calls": [
        {"id": "call_1", "type": "function", "function": {"name": "get_current_weather", "arguments": "{\"location\":\"Paris\"}"}},
        {"id": "call_2", "type": "function", "function": {"name": "get_current_weather", "arguments": "{\"location\":\"Rome\"}"}}
      ]
    }
  }]
}`

type capture struct {
	hits   atomic.Int32
	body   atomic.Value
	header atomic.Value
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.hits.Add(1)
		b, _ := io.ReadAll(r.Body)
		c.body.Store(string(b))
		c.header.Store(r.Header.Clone())
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newCompleter(t *testing.T, srv *httptest.Server) *Completer {
	t.Helper()
	c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL, Organization: "org-test", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c
}

func TestComplete_Text(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, textCompletion)
	c := newCompleter(t, srv)

	resp, err := c.Complete(context.Background(), agent.Request{
		Model: "gpt-test",
		Messages: []agent.Message{
			agent.SystemMessage("You are a helpful assistant."),
			agent.UserMessage("What is the weather in Paris?"),
		},
		Functions: []fnagent.CallSchema{weatherSchema(t)},
		Options:   map[string]any{"temperature": 0.2, "max_tokens": 64},
	})
	require.NoError(t, err)
	assert.Equal(t, agent.AssistantMessage("It is sunny."), resp.Message)
	assert.Equal(t, int32(1), got.hits.Load())

	header := got.header.Load().(http.Header)
	assert.Equal(t, "Bearer sk-test", header.Get("Authorization"))
	assert.Equal(t, "org-test", header.Get("OpenAI-Organization"))

	body := got.body.Load().(string)
	var req struct {
		Model    string  `json:"model"`
		Temp     float64 `json:"temperature"`
		MaxToken int     `json:"max_tokens"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Tools []struct {
			Type     string `json:"type"`
			Function struct {
				Name        string          `json:"name"`
				Description string          `json:"description"`
				Parameters  json.RawMessage `json:"parameters"`
			} `json:"function"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, "gpt-test", req.Model)
	assert.InDelta(t, 0.2, req.Temp, 1e-9)
	assert.Equal(t, 64, req.MaxToken)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "function", req.Tools[0].Type)
	assert.Equal(t, "get_current_weather", req.Tools[0].Function.Name)
	assert.Equal(t, "Get the current weather", req.Tools[0].Function.Description)

	params := string(req.Tools[0].Function.Parameters)
	loc, unit := strings.Index(params, `"location"`), strings.Index(params, `"unit"`)
	require.True(t, loc >= 0 && unit >= 0, params)
	assert.Less(t, loc, unit, "properties follow documentation order")
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"location": {"type": "string", "description": "The city and state, e.g. San Francisco, CA"},
			"unit": {"type": "string", "enum": ["celsius", "fahrenheit"], "description": "The temperature unit to use."}
		},
		"required": ["location"]
	}`, params)
}

func TestComplete_ToolCalls(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, toolCompletion)
	c := newCompleter(t, srv)

	resp, err := c.Complete(context.Background(), agent.Request{
		Model: "gpt-test",
		Messages: []agent.Message{
			agent.SystemMessage("sys"),
			agent.UserMessage("Weather in Paris and Rome?"),
			agent.ToolCallsMessage(fnagent.ToolCall{ID: "old", Name: "get_current_weather", Args: []byte(`{"location":"Oslo"}`)}),
			{Role: agent.RoleTool, Content: "cold", ToolCallID: "old", Name: "get_current_weather"},
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Message.HasToolCalls())
	require.Len(t, resp.Message.ToolCalls, 2)
	assert.Equal(t, "call_1", resp.Message.ToolCalls[0].ID)
	assert.Equal(t, "get_current_weather", resp.Message.ToolCalls[0].Name)
	assert.JSONEq(t, `{"location":"Paris"}`, string(resp.Message.ToolCalls[0].Args))
	assert.Equal(t, "call_2", resp.Message.ToolCalls[1].ID)

	var req struct {
		Messages []struct {
			Role       string `json:"role"`
			Content    any    `json:"content"`
			ToolCallID string `json:"tool_call_id"`
			ToolCalls  []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"messages"`
		Tools []any `json:"tools"`
	}
	require.NoError(t, json.Unmarshal([]byte(got.body.Load().(string)), &req))
	require.Len(t, req.Messages, 4)
	assert.Empty(t, req.Tools)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	require.Len(t, req.Messages[2].ToolCalls, 1)
	assert.Equal(t, "old", req.Messages[2].ToolCalls[0].ID)
	assert.JSONEq(t, `{"location":"Oslo"}`, req.Messages[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool", req.Messages[3].Role)
	assert.Equal(t, "old", req.Messages[3].ToolCallID)
	assert.Equal(t, "cold", req.Messages[3].Content)
}

func TestComplete_ErrorClassification(t *testing.T) {
	const errBody = `{"error":{"message":"nope","type":"invalid_request_error","param":null,"code":null}}`
	tests := []struct {
		status    int
		transient bool
		kind      agent.TransientKind
	}{
		{http.StatusTooManyRequests, true, agent.TransientRateLimit},
		{http.StatusRequestTimeout, true, agent.TransientService},
		{http.StatusConflict, true, agent.TransientService},
		{http.StatusInternalServerError, true, agent.TransientService},
		{http.StatusServiceUnavailable, true, agent.TransientService},
		{http.StatusBadRequest, false, 0},
		{http.StatusUnauthorized, false, 0},
		{http.StatusNotFound, false, 0},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, got := newServer(t, tt.status, errBody)
			c := newCompleter(t, srv)
			_, err := c.Complete(context.Background(), agent.Request{Model: "gpt-test", Messages: []agent.Message{agent.UserMessage("hi")}})
			require.Error(t, err)
			assert.Equal(t, int32(1), got.hits.Load(), "the SDK must not retry on its own")
			var te *agent.TransientError
			if !tt.transient {
				assert.False(t, agent.IsTransient(err))
				return
			}
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.kind, te.Kind)
		})
	}
}

func TestComplete_NetworkErrors(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		base := srv.URL
		srv.Close()
		c, err := New(Config{APIKey: "sk-test", BaseURL: base})
		require.NoError(t, err)
		_, err = c.Complete(context.Background(), agent.Request{Model: "m", Messages: []agent.Message{agent.UserMessage("hi")}})
		var te *agent.TransientError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, agent.TransientService, te.Kind)
	})

	t.Run("client timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}))
		defer srv.Close()
		defer close(release)
		client := srv.Client()
		client.Timeout = 20 * time.Millisecond
		c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL, HTTPClient: client})
		require.NoError(t, err)
		_, err = c.Complete(context.Background(), agent.Request{Model: "m", Messages: []agent.Message{agent.UserMessage("hi")}})
		var te *agent.TransientError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, agent.TransientTimeout, te.Kind)
	})

	t.Run("caller deadline is not classified", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}))
		defer srv.Close()
		defer close(release)
		c := newCompleter(t, srv)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := c.Complete(ctx, agent.Request{Model: "m", Messages: []agent.Message{agent.UserMessage("hi")}})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, agent.IsTransient(err))
	})
}

func TestFunctionParameters_NoParameters(t *testing.T) {
	params, err := functionParameters(fnagent.CallSchema{Name: "ping"})
	require.NoError(t, err)
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{},"required":[]}`, string(raw))

	s, err := fnagent.Derive("ping", "Ping", func() {})
	require.NoError(t, err)
	params, err = functionParameters(s)
	require.NoError(t, err)
	raw, err = json.Marshal(params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{},"required":[]}`, string(raw))
}

func TestComplete_NoChoices(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	c := newCompleter(t, srv)
	_, err := c.Complete(context.Background(), agent.Request{Model: "m", Messages: []agent.Message{agent.UserMessage("hi")}})
	require.ErrorIs(t, err, ErrNoChoices)
}

func TestNew_APIKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNoAPIKey)

	_, err = New(Config{APIKey: "   "})
	require.ErrorIs(t, err, ErrNoAPIKey)

	t.Setenv(APIKeyEnv, "sk-from-env")
	c, err := New(Config{})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestAgentWithOpenAICompleter(t *testing.T) {
	var step atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		if step.Add(1) == 1 {
			_, _ = io.WriteString(w, toolCompletion)
			return
		}
		_, _ = io.WriteString(w, textCompletion)
	}))
	defer srv.Close()

	a, err := agent.New(agent.Config{Model: "gpt-test"}, newCompleter(t, srv))
	require.NoError(t, err)
	require.NoError(t, a.Register("get_current_weather", weatherDoc, func(a weatherArgs) string {
		return "sunny in " + a.Location
	}))

	out, err := a.Run(context.Background(), "Weather in Paris and Rome?")
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", out)
	history := a.History()
	require.Len(t, history, 6)
	assert.Equal(t, "sunny in Paris", history[3].Content)
	assert.Equal(t, "sunny in Rome", history[4].Content)
}
