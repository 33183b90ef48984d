// Package fnagent derives function-calling schemas from ordinary Go functions and
// executes the calls a chat model requests against them.
//
// # Overview
//
// A model that supports function calling needs a JSON Schema for every function it
// may invoke, and it answers with tool calls carrying JSON arguments. This package
// covers both directions: Go function + argument struct + docstring → Derive →
// CallSchema, and ToolCall → Registry → validate, decode, call → ToolResult.
//
// # Key concepts
//
//   - The docstring is the source of truth for what is advertised: only documented
//     parameters appear in the schema, in documentation order.
//   - Defaults come from `default:"..."` struct tags; parameters without one are required.
//   - Closed value sets are either an `enum:"a,b"` tag or a type implementing Enum;
//     both produce the same schema.
//   - Partial success: a failing call becomes a failure ToolResult, siblings still run.
//
// See the agent subpackage for the conversation loop built on top of Registry.
//
// # Example
//
//	type WeatherArgs struct {
//	    Location string          `json:"location"`
//	    Unit     TemperatureUnit `json:"unit" default:"fahrenheit"`
//	}
//	fn, err := fnagent.NewFunction("get_current_weather", `Get the current weather
//
//	Args:
//	    location: The city and state, e.g. San Francisco, CA
//	    unit: The temperature unit to use.`,
//	    func(_ context.Context, a WeatherArgs) (string, error) { return "sunny", nil })
//	if err != nil { ... }
//	reg := fnagent.NewRegistry()
//	_ = reg.Register(fn)
//	res := reg.Execute(ctx, fnagent.ToolCall{ID: "1", Name: "get_current_weather", Args: []byte(`{"location":"Paris"}`)})
package fnagent
