// Package openaichat implements agent.Completer on the OpenAI chat-completions API.
package openaichat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/skosovsky/fnagent"
	"github.com/skosovsky/fnagent/agent"
)

// APIKeyEnv is read when Config.APIKey is empty.
const APIKeyEnv = "OPENAI_API_KEY"

var (
	ErrNoAPIKey  = errors.New("openaichat: api key required")
	ErrNoChoices = errors.New("openaichat: response has no choices")
)

// Config configures the OpenAI client.
type Config struct {
	APIKey       string
	BaseURL      string // Optional: for Azure or proxies
	Organization string
	HTTPClient   *http.Client
}

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Completer sends agent requests to the chat-completions endpoint.
type Completer struct {
	completions chatCompletions
}

// New builds a Completer. The SDK's own retries are disabled; the agent
// decides how often a request is attempted.
func New(cfg Config) (*Completer, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv(APIKeyEnv))
	}
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := openai.NewClient(opts...)
	return &Completer{completions: &client.Chat.Completions}, nil
}

// Complete issues one non-streaming completion. Free-form request options are
// set on the request body as-is.
func (c *Completer) Complete(ctx context.Context, req agent.Request) (*agent.Response, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}
	reqOpts := make([]option.RequestOption, 0, len(req.Options))
	for _, key := range slices.Sorted(maps.Keys(req.Options)) {
		reqOpts = append(reqOpts, option.WithJSONSet(key, req.Options[key]))
	}

	completion, err := c.completions.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return nil, ErrNoChoices
	}
	return &agent.Response{Message: convertResponse(completion.Choices[0].Message)}, nil
}

func buildParams(req agent.Request) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: convertMessages(req.Messages),
	}
	if len(req.Functions) > 0 {
		tools, err := convertFunctions(req.Functions)
		if err != nil {
			return params, err
		}
		params.Tools = tools
	}
	return params, nil
}

func convertMessages(msgs []agent.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case agent.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case agent.RoleAssistant:
			out = append(out, assistantMessage(msg))
		case agent.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func assistantMessage(msg agent.Message) openai.ChatCompletionMessageParamUnion {
	if !msg.HasToolCalls() {
		return openai.AssistantMessage(msg.Content)
	}
	param := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		param.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(msg.Content),
		}
	}
	for _, call := range msg.ToolCalls {
		args := string(call.Args)
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		param.ToolCalls = append(param.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: args,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &param}
}

func convertFunctions(schemas []fnagent.CallSchema) ([]openai.ChatCompletionToolParam, error) {
	tools := make([]openai.ChatCompletionToolParam, 0, len(schemas))
	for _, s := range schemas {
		params, err := functionParameters(s)
		if err != nil {
			return nil, fmt.Errorf("openaichat: function %q: %w", s.Name, err)
		}
		tool := openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:       s.Name,
				Parameters: params,
			},
		}
		if s.Description != "" {
			tool.Function.Description = openai.String(s.Description)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// functionParameters keeps every top-level keyword as raw JSON so the order of
// "properties" survives the map the SDK expects.
func functionParameters(s fnagent.CallSchema) (shared.FunctionParameters, error) {
	if s.Parameters == nil {
		return shared.FunctionParameters{"type": "object", "properties": map[string]any{}, "required": []string{}}, nil
	}
	raw, err := json.Marshal(s.Parameters)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	params := make(shared.FunctionParameters, len(fields))
	for k, v := range fields {
		params[k] = v
	}
	return params, nil
}

func convertResponse(msg openai.ChatCompletionMessage) agent.Message {
	out := agent.Message{Role: agent.RoleAssistant, Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, fnagent.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}

// classify marks the failures worth another attempt as *agent.TransientError.
// Errors caused by ctx itself are returned unchanged.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusTooManyRequests:
			return &agent.TransientError{Kind: agent.TransientRateLimit, Err: err}
		case code == http.StatusRequestTimeout, code == http.StatusConflict, code >= http.StatusInternalServerError:
			return &agent.TransientError{Kind: agent.TransientService, Err: err}
		default:
			return err
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &agent.TransientError{Kind: agent.TransientTimeout, Err: err}
		}
		return &agent.TransientError{Kind: agent.TransientService, Err: err}
	}
	return err
}

var _ agent.Completer = (*Completer)(nil)
