// Package transcript renders an agent's conversation history for people to read.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/fnagent"
	"github.com/skosovsky/fnagent/agent"
)

const rule = "----------------------------"

// WriteText writes one block per message: a dashed rule, a role label, a
// blank line and the content. Tool results also name their function; assistant
// tool requests are listed as name(arguments) lines.
func WriteText(w io.Writer, history []agent.Message) error {
	bw := bufio.NewWriter(w)
	for _, m := range history {
		fmt.Fprintln(bw, rule)
		switch m.Role {
		case agent.RoleSystem:
			fmt.Fprintln(bw, "SYSTEM MESSAGE")
		case agent.RoleUser:
			fmt.Fprintln(bw, "USER MESSAGE")
		case agent.RoleAssistant:
			fmt.Fprintln(bw, "ASSISTANT MESSAGE")
		case agent.RoleTool:
			fmt.Fprintln(bw, "TOOL CALL")
			fmt.Fprintln(bw, m.Name)
		default:
			fmt.Fprintln(bw, strings.ToUpper(string(m.Role))+" MESSAGE")
		}
		fmt.Fprintln(bw)
		if m.HasToolCalls() {
			for _, c := range m.ToolCalls {
				fmt.Fprintf(bw, "%s(%s)\n", c.Name, c.Args)
			}
			continue
		}
		fmt.Fprintln(bw, m.Content)
	}
	return bw.Flush()
}

type document struct {
	Messages []message `yaml:"messages"`
}

type message struct {
	Role       string     `yaml:"role"`
	Content    string     `yaml:"content,omitempty"`
	ToolCalls  []toolCall `yaml:"tool_calls,omitempty"`
	ToolCallID string     `yaml:"tool_call_id,omitempty"`
	Name       string     `yaml:"name,omitempty"`
}

type toolCall struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Arguments string `yaml:"arguments,omitempty"`
}

// WriteYAML writes history as a YAML document with a top-level "messages" list.
func WriteYAML(w io.Writer, history []agent.Message) error {
	doc := document{Messages: make([]message, 0, len(history))}
	for _, m := range history {
		out := message{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, c := range m.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, toolCall{ID: c.ID, Name: c.Name, Arguments: string(c.Args)})
		}
		doc.Messages = append(doc.Messages, out)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("transcript: encode yaml: %w", err)
	}
	return enc.Close()
}

// ReadYAML reads a document written by WriteYAML.
func ReadYAML(r io.Reader) ([]agent.Message, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("transcript: decode yaml: %w", err)
	}
	history := make([]agent.Message, 0, len(doc.Messages))
	for _, m := range doc.Messages {
		msg := agent.Message{
			Role:       agent.Role(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, c := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, fnagent.ToolCall{ID: c.ID, Name: c.Name, Args: json.RawMessage(c.Arguments)})
		}
		history = append(history, msg)
	}
	return history, nil
}

// WriteJSON writes history as an indented JSON array.
func WriteJSON(w io.Writer, history []agent.Message) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(history)
}

// SaveFile writes history to path, choosing the format from the extension:
// .yaml/.yml for YAML, .json for JSON, text otherwise.
func SaveFile(path string, history []agent.Message) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("transcript: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("transcript: %w", cerr)
		}
	}()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return WriteYAML(f, history)
	case ".json":
		return WriteJSON(f, history)
	default:
		return WriteText(f, history)
	}
}
