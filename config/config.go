// Package config loads agentflow YAML configuration: model provider, retry
// policy, runner limits, logging, metrics and trace export, plus the
// declarative pipeline (a tree of node specs) that Build turns into nodes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/retry"
)

// Node types accepted in pipeline specs.
const (
	TypeAgent      = "agent"
	TypeSequential = "sequential"
	TypeParallel   = "parallel"
	TypeLoop       = "loop"
)

// Providers accepted in model configuration.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderScripted  = "scripted"
)

// ErrInvalidConfig matches every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root of an agentflow configuration file.
type Config struct {
	Model    ModelConfig   `yaml:"model"`
	Models   []ModelConfig `yaml:"models"` // named alternatives referenced by NodeSpec.Model
	Retry    retry.Config  `yaml:"retry"`
	Runner   RunnerConfig  `yaml:"runner"`
	Logging  LoggingConfig `yaml:"logging"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Trace    TraceConfig   `yaml:"trace"`
	Pipeline NodeSpec      `yaml:"pipeline"`
}

// ModelConfig selects and parameterizes a model provider.
type ModelConfig struct {
	ID          string   `yaml:"id"` // reference name, only used in Config.Models
	Provider    string   `yaml:"provider"`
	Name        string   `yaml:"name"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	APIKeyEnv   string   `yaml:"api_key_env"` // environment variable holding the key
	Responses   []string `yaml:"responses"`   // canned answers for the scripted provider
}

// APIKey resolves the configured key from the environment.
func (m ModelConfig) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

// RunnerConfig mirrors runner.Options.
type RunnerConfig struct {
	Debug             bool   `yaml:"debug"`
	OutputKey         string `yaml:"output_key"`
	MaxModelCalls     int    `yaml:"max_model_calls"`
	MaxConcurrentRuns int    `yaml:"max_concurrent_runs"`
}

// LoggingConfig configures the slog backed logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // e.g. ":2112", empty disables
	Path   string `yaml:"path"`
}

// TraceConfig configures trace export.
type TraceConfig struct {
	Redis *RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis stream sink.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// NodeSpec declares one node of the pipeline.
type NodeSpec struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`

	// agent
	Model         string     `yaml:"model"` // id from Config.Models, empty = default model
	Instruction   string     `yaml:"instruction"`
	OutputKey     string     `yaml:"output_key"`
	InputKey      string     `yaml:"input_key"`
	Tools         []string   `yaml:"tools"`
	Delegates     []NodeSpec `yaml:"delegates"` // nodes exposed to the model as tools
	MaxToolRounds int        `yaml:"max_tool_rounds"`
	OutputJSON    bool       `yaml:"output_json"`
	Temperature   *float64   `yaml:"temperature"`

	// loop
	MaxIterations int           `yaml:"max_iterations"`
	Interval      time.Duration `yaml:"interval"`
	StatusKey     string        `yaml:"status_key"`

	// parallel
	MaxConcurrency int `yaml:"max_concurrency"`

	Children []NodeSpec `yaml:"children"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Model:   ModelConfig{Provider: ProviderGemini, Name: "gemini-2.0-flash"},
		Retry:   retry.DefaultConfig,
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Path: "/metrics"},
	}
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks provider names, logging settings and the pipeline shape.
func (c *Config) Validate() error {
	var errs []error

	if err := validateModel(c.Model); err != nil {
		errs = append(errs, fmt.Errorf("model: %w", err))
	}

	ids := map[string]bool{}
	for i, m := range c.Models {
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("models[%d]: id is required", i))
		} else if ids[m.ID] {
			errs = append(errs, fmt.Errorf("models[%d]: duplicate id %q", i, m.ID))
		}
		ids[m.ID] = true

		if err := validateModel(m); err != nil {
			errs = append(errs, fmt.Errorf("models[%d]: %w", i, err))
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if f := c.Logging.Format; f != "" && f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("logging: unknown format %q", f))
	}

	if c.Runner.MaxModelCalls < 0 || c.Runner.MaxConcurrentRuns < 0 {
		errs = append(errs, errors.New("runner: limits must not be negative"))
	}

	if r := c.Trace.Redis; r != nil && r.Addr == "" {
		errs = append(errs, errors.New("trace.redis: addr is required"))
	}

	if c.Pipeline.Name != "" || c.Pipeline.Type != "" {
		errs = append(errs, validateNode("pipeline", c.Pipeline, ids)...)
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// HasPipeline reports whether a pipeline is declared.
func (c *Config) HasPipeline() bool { return c.Pipeline.Type != "" }

// RetryPolicy builds the retry policy.
func (c *Config) RetryPolicy() *retry.Policy { return retry.New(c.Retry) }

// Logger builds the logger writing to w.
func (c *Config) Logger(w io.Writer) logging.Logger {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.NewLogger(logging.Config{Level: level, Format: c.Logging.Format, Output: w})
}

// ModelByID returns the named model configuration.
func (c *Config) ModelByID(id string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelConfig{}, false
}

func validateModel(m ModelConfig) error {
	switch m.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderScripted:
	default:
		return fmt.Errorf("unknown provider %q", m.Provider)
	}

	if m.Provider != ProviderScripted && m.Name == "" {
		return errors.New("name is required")
	}

	return nil
}

func validateNode(path string, n NodeSpec, modelIDs map[string]bool) []error {
	var errs []error

	if n.Name == "" {
		errs = append(errs, fmt.Errorf("%s: name is required", path))
	} else {
		path = path + "." + n.Name
	}

	switch n.Type {
	case TypeAgent:
		if n.OutputKey == "" {
			errs = append(errs, fmt.Errorf("%s: output_key is required", path))
		}
		if len(n.Children) > 0 {
			errs = append(errs, fmt.Errorf("%s: agents cannot have children", path))
		}
		if n.Model != "" && !modelIDs[n.Model] {
			errs = append(errs, fmt.Errorf("%s: unknown model %q", path, n.Model))
		}
		for _, d := range n.Delegates {
			errs = append(errs, validateNode(path+".delegates", d, modelIDs)...)
		}
	case TypeSequential, TypeParallel, TypeLoop:
		if len(n.Children) == 0 {
			errs = append(errs, fmt.Errorf("%s: %s needs children", path, n.Type))
		}
		if n.MaxIterations < 0 || n.MaxConcurrency < 0 {
			errs = append(errs, fmt.Errorf("%s: limits must not be negative", path))
		}
		for _, c := range n.Children {
			errs = append(errs, validateNode(path, c, modelIDs)...)
		}
	default:
		errs = append(errs, fmt.Errorf("%s: unknown type %q", path, n.Type))
	}

	return errs
}
