// Package config loads the fnagent CLI configuration from YAML, validating it
// against an embedded JSON Schema before decoding.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/skosovsky/fnagent"
	"github.com/skosovsky/fnagent/agent"
	"github.com/skosovsky/fnagent/openaichat"
)

// Environment variables consulted when the file leaves the value empty.
const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvBaseURL = "OPENAI_BASE_URL"
)

const (
	DuplicateWarn  = "warn"
	DuplicateError = "error"
)

//go:embed config.schema.json
var schemaJSON []byte

const schemaURL = "config.schema.json"

// ErrInvalid wraps every schema violation.
var ErrInvalid = errors.New("config: invalid")

// Config is the decoded configuration file.
type Config struct {
	Model              string         `yaml:"model"`
	SystemPrompt       string         `yaml:"system_prompt"`
	MaxAttempts        int            `yaml:"max_attempts"`
	MaxRounds          int            `yaml:"max_rounds"`
	RequestTimeout     Duration       `yaml:"request_timeout"`
	FunctionTimeout    Duration       `yaml:"function_timeout"`
	DuplicateFunctions string         `yaml:"duplicate_functions"`
	Transcript         string         `yaml:"transcript"`
	Options            map[string]any `yaml:"options"`
	OpenAI             OpenAI         `yaml:"openai"`
	Log                Log            `yaml:"log"`
}

type OpenAI struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Organization string `yaml:"organization"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration written as a Go duration string ("30s", "1m30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Model:              "gpt-4o-mini",
		SystemPrompt:       agent.DefaultSystemPrompt,
		MaxAttempts:        3,
		MaxRounds:          10,
		FunctionTimeout:    Duration(30 * time.Second),
		DuplicateFunctions: DuplicateWarn,
		Log:                Log{Level: "info", Format: "text"},
	}
}

// Load reads and parses the file at path. An empty path yields Default with
// environment fallbacks applied.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse validates data against the configuration schema and decodes it over
// Default.
func Parse(data []byte) (Config, error) {
	if err := validate(data); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv(EnvAPIKey)
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = os.Getenv(EnvBaseURL)
	}
}

// AgentConfig returns the agent settings.
func (c Config) AgentConfig() agent.Config {
	return agent.Config{
		Model:          c.Model,
		SystemPrompt:   c.SystemPrompt,
		MaxAttempts:    c.MaxAttempts,
		MaxRounds:      c.MaxRounds,
		RequestTimeout: time.Duration(c.RequestTimeout),
		Options:        c.Options,
	}
}

// OpenAIConfig returns the completer settings.
func (c Config) OpenAIConfig() openaichat.Config {
	return openaichat.Config{
		APIKey:       c.OpenAI.APIKey,
		BaseURL:      c.OpenAI.BaseURL,
		Organization: c.OpenAI.Organization,
	}
}

// RegistryOptions returns the registry settings.
func (c Config) RegistryOptions(logger *slog.Logger) []fnagent.RegistryOption {
	opts := []fnagent.RegistryOption{
		fnagent.WithDefaultTimeout(time.Duration(c.FunctionTimeout)),
		fnagent.WithLogger(logger),
	}
	if c.DuplicateFunctions == DuplicateError {
		opts = append(opts, fnagent.WithStrictNames())
	}
	return opts
}

// Logger builds a slog logger writing to w at the configured level and format.
func (c Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

var configSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return sch
}

// validate checks YAML data against the schema. The YAML is converted to JSON
// first so the validator sees JSON numbers and strings only.
func validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := configSchema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
