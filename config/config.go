// Package config loads the YAML configuration of a benchmark run.
//
// A configuration names the model platforms that CLI flags refer to, the
// runtime limits of the orchestrator, the retry and rate-limit policy shared
// by every model client, file locations and the cost table used for scoring.
// Load applies defaults and validates; every problem found is reported in a
// single core.SetupFault.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/evaluation"
	"github.com/hupe1980/clinagents/logging"
	"github.com/hupe1980/clinagents/model"
)

// Providers are the supported platform backends.
var Providers = []string{"openai", "anthropic"}

// Selector kinds.
const (
	SelectorFuzzy = "fuzzy"
	SelectorModel = "model"
)

// Platform is one configured model endpoint.
type Platform struct {
	// Provider is "openai" (also OpenAI-compatible endpoints) or "anthropic".
	Provider string `yaml:"provider"`
	// Model is the model or deployment id sent to the API.
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the key. Empty uses
	// the SDK default.
	APIKeyEnv       string  `yaml:"api_key_env"`
	Temperature     float64 `yaml:"temperature"`
	OmitTemperature bool    `yaml:"omit_temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
}

// APIKey resolves the key from APIKeyEnv.
func (p Platform) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// Runtime bounds one case run and the batch.
type Runtime struct {
	MaxTurns int `yaml:"max_turns"`
	// MaxReprompts defaults to 2 when unset; 0 disables re-prompting.
	MaxReprompts              *int          `yaml:"max_reprompts"`
	ForceDiagnosisOnFinalTurn bool          `yaml:"force_diagnosis_on_final_turn"`
	RequireLabInterpretation  bool          `yaml:"require_lab_interpretation"`
	Concurrency               int           `yaml:"concurrency"`
	CaseTimeout               time.Duration `yaml:"case_timeout"`
	ProgressEvery             int           `yaml:"progress_every"`
	// Selector picks labs and imaging from a case: "fuzzy" or "model". The
	// model selector uses the matcher platform.
	Selector string `yaml:"selector"`
}

// Reprompts returns the re-prompt limit.
func (r Runtime) Reprompts() int {
	if r.MaxReprompts == nil {
		return 0
	}
	return *r.MaxReprompts
}

// Retry is the backoff policy for transient model errors.
type Retry struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Factor       float64       `yaml:"factor"`
}

// Policy converts r into a model.RetryPolicy.
func (r Retry) Policy() model.RetryPolicy {
	return model.RetryPolicy{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		Factor:       r.Factor,
	}
}

// RateLimit is the aggregate outbound request rate of a run. Zero disables it.
type RateLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// Paths locate inputs and outputs.
type Paths struct {
	DataDir     string `yaml:"data_dir"`
	LogDir      string `yaml:"log_dir"`
	FeeSchedule string `yaml:"fee_schedule"`
}

// Logging configures the run logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	ToFile bool   `yaml:"to_file"`
}

// Config is the root of the YAML document.
type Config struct {
	Platforms map[string]Platform  `yaml:"platforms"`
	Runtime   Runtime              `yaml:"runtime"`
	Retry     Retry                `yaml:"retry"`
	RateLimit RateLimit            `yaml:"rate_limit"`
	Paths     Paths                `yaml:"paths"`
	Logging   Logging              `yaml:"logging"`
	CostTable evaluation.CostTable `yaml:"cost_table"`
}

// Default returns the configuration used when no file is given: the original
// platform set over OpenAI and Anthropic with SDK default credentials.
func Default() *Config {
	cfg := &Config{
		Platforms: map[string]Platform{
			"gpt":          {Provider: "openai", Model: "gpt-4o"},
			"gpt-4.1":      {Provider: "openai", Model: "gpt-4.1"},
			"gpt-4.1-mini": {Provider: "openai", Model: "gpt-4.1-mini"},
			"o3-mini":      {Provider: "openai", Model: "o3-mini", OmitTemperature: true},
			"claude":       {Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewSetupFault("config", fmt.Errorf("read config file: %w", err))
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults, and validates. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, core.NewSetupFault("config", fmt.Errorf("parse config YAML: %w", err))
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Platforms == nil {
		c.Platforms = map[string]Platform{}
	}
	for name, p := range c.Platforms {
		p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
		if p.MaxTokens == 0 {
			p.MaxTokens = 4096
		}
		c.Platforms[name] = p
	}

	if c.Runtime.MaxTurns == 0 {
		c.Runtime.MaxTurns = 10
	}
	if c.Runtime.MaxReprompts == nil {
		n := 2
		c.Runtime.MaxReprompts = &n
	}
	if c.Runtime.Concurrency == 0 {
		c.Runtime.Concurrency = 1
	}
	if c.Runtime.ProgressEvery == 0 {
		c.Runtime.ProgressEvery = 10
	}
	if c.Runtime.Selector == "" {
		c.Runtime.Selector = SelectorFuzzy
	}

	def := model.DefaultRetryPolicy()
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = def.MaxAttempts
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = def.InitialDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = def.MaxDelay
	}
	if c.Retry.Factor == 0 {
		c.Retry.Factor = def.Factor
	}

	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}

	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "data"
	}
	if c.Paths.LogDir == "" {
		c.Paths.LogDir = "logs"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) validate() error {
	var problems []string

	names := make([]string, 0, len(c.Platforms))
	for name := range c.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := c.Platforms[name]
		if !slices.Contains(Providers, p.Provider) {
			problems = append(problems, fmt.Sprintf("platforms.%s.provider %q is not one of %v", name, p.Provider, Providers))
		}
		if p.Model == "" {
			problems = append(problems, fmt.Sprintf("platforms.%s.model is required", name))
		}
		if p.MaxTokens < 0 {
			problems = append(problems, fmt.Sprintf("platforms.%s.max_tokens must not be negative", name))
		}
	}

	if c.Runtime.MaxTurns < 1 {
		problems = append(problems, "runtime.max_turns must be at least 1")
	}
	if *c.Runtime.MaxReprompts < 0 {
		problems = append(problems, "runtime.max_reprompts must not be negative")
	}
	if c.Runtime.Concurrency < 1 {
		problems = append(problems, "runtime.concurrency must be at least 1")
	}
	if c.Runtime.CaseTimeout < 0 {
		problems = append(problems, "runtime.case_timeout must not be negative")
	}
	if c.Runtime.Selector != SelectorFuzzy && c.Runtime.Selector != SelectorModel {
		problems = append(problems, fmt.Sprintf("runtime.selector %q is not one of [fuzzy model]", c.Runtime.Selector))
	}

	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts must be at least 1")
	}
	if c.Retry.Factor < 1 {
		problems = append(problems, "retry.factor must be at least 1")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		problems = append(problems, "rate_limit.requests_per_minute must not be negative")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, fmt.Sprintf("logging.level: %v", err))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of [text json]", c.Logging.Format))
	}

	for name, r := range c.CostTable.Rates {
		if r.Input < 0 || r.Output < 0 {
			problems = append(problems, fmt.Sprintf("cost_table.rates.%s must not be negative", name))
		}
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return &core.SetupFault{Component: "config", Problems: problems}
	}

	return nil
}

// Platform returns the named platform.
func (c *Config) Platform(name string) (Platform, error) {
	p, ok := c.Platforms[name]
	if !ok {
		names := make([]string, 0, len(c.Platforms))
		for n := range c.Platforms {
			names = append(names, n)
		}
		sort.Strings(names)
		return Platform{}, &core.SetupFault{
			Component: "config",
			Problems:  []string{fmt.Sprintf("unknown platform %q (configured: %s)", name, strings.Join(names, ", "))},
		}
	}
	return p, nil
}

// LoggerConfig translates the logging section for logging.NewLogger.
func (c *Config) LoggerConfig(out io.Writer) *logging.LoggerConfig {
	lvl, _ := logging.ParseLevel(c.Logging.Level)
	return &logging.LoggerConfig{
		Level:       lvl,
		Format:      c.Logging.Format,
		Output:      out,
		Component:   "clinagents",
		CustomAttrs: map[string]any{},
	}
}
