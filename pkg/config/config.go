// Package config loads the forage YAML configuration document.
//
// Config is passed explicitly to the components that need it; there is no
// process-wide configuration instance.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/forage/pkg/agent"
	"github.com/entrhq/forage/pkg/browser"
	"github.com/entrhq/forage/pkg/executor/headless"
	"github.com/entrhq/forage/pkg/llm/openai"
	"github.com/entrhq/forage/pkg/logging"
	browsertools "github.com/entrhq/forage/pkg/tools/browser"
)

// Environment variables consulted when the document leaves planner
// credentials empty.
const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvBaseURL = "OPENAI_BASE_URL"
)

// Config is the root configuration document.
type Config struct {
	// Planner connection and retry settings
	Planner openai.Config `yaml:"planner" json:"planner"`

	// Shared browser and pool settings
	Browser browser.Options `yaml:"browser" json:"browser"`

	// Action timeouts and fetch limits
	Tools browsertools.Options `yaml:"tools" json:"tools"`

	// Per-request budgets
	Budgets agent.Budgets `yaml:"budgets" json:"budgets"`

	// Output accumulator caps
	Accumulator agent.Limits `yaml:"accumulator" json:"accumulator"`

	// Fallback summarizer settings
	Summarizer agent.SummarizerOptions `yaml:"summarizer" json:"summarizer"`

	// Transcript context ceiling
	Transcript agent.TranscriptOptions `yaml:"transcript" json:"transcript"`

	// Artifact output for CLI runs
	Artifacts headless.ArtifactConfig `yaml:"artifacts" json:"artifacts"`

	// Logging configuration
	Logging logging.Options `yaml:"logging" json:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// MetricsConfig controls the prometheus collector.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" json:"namespace"`

	// Addr is the listen address for the metrics endpoint. Empty disables it.
	Addr string `yaml:"addr" json:"addr"`
}

// DefaultConfig returns a configuration suitable for most use cases.
func DefaultConfig() *Config {
	return &Config{
		Planner:     openai.DefaultConfig(),
		Browser:     browser.DefaultOptions(),
		Tools:       browsertools.DefaultOptions(),
		Budgets:     agent.DefaultBudgets(),
		Accumulator: agent.DefaultLimits(),
		Summarizer:  agent.DefaultSummarizerOptions(),
		Transcript:  agent.DefaultTranscriptOptions(),
		Artifacts:   headless.DefaultArtifactConfig(),
		Logging:     logging.DefaultOptions(),
		Metrics:     MetricsConfig{Namespace: "forage"},
	}
}

// Load reads a YAML document on top of DefaultConfig. An empty path returns
// the defaults. Planner credentials fall back to the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.Planner.APIKey == "" {
		c.Planner.APIKey = os.Getenv(EnvAPIKey)
	}
	if c.Planner.BaseURL == "" {
		c.Planner.BaseURL = os.Getenv(EnvBaseURL)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Planner.Model == "" {
		return fmt.Errorf("planner.model is required")
	}
	if c.Planner.Timeout <= 0 {
		return fmt.Errorf("planner.timeout must be positive")
	}
	if c.Planner.MaxRetries < 0 {
		return fmt.Errorf("planner.max_retries cannot be negative")
	}

	if c.Browser.MaxSessions < 1 {
		return fmt.Errorf("browser.max_sessions must be at least 1")
	}

	if c.Tools.ActionTimeout <= 0 || c.Tools.NavigationTimeout <= 0 {
		return fmt.Errorf("tools timeouts must be positive")
	}
	if c.Tools.FetchMaxURLs < 1 {
		return fmt.Errorf("tools.fetch_max_urls must be at least 1")
	}

	if err := c.Budgets.Validate(); err != nil {
		return fmt.Errorf("budgets: %w", err)
	}

	if c.Accumulator.MaxPageChars <= 0 || c.Accumulator.MaxTotalChars <= 0 {
		return fmt.Errorf("accumulator caps must be positive")
	}
	if c.Accumulator.MinPageChars < 0 {
		return fmt.Errorf("accumulator.min_page_chars cannot be negative")
	}

	if c.Summarizer.ChunkSize <= 0 || c.Summarizer.SinglePassThreshold <= 0 {
		return fmt.Errorf("summarizer sizes must be positive")
	}
	if c.Summarizer.MaxParallel < 1 {
		return fmt.Errorf("summarizer.max_parallel must be at least 1")
	}

	if c.Transcript.MaxChars <= 0 {
		return fmt.Errorf("transcript.max_chars must be positive")
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s (must be 'json' or 'console')", c.Logging.Format)
	}

	return nil
}

// RequestTimeout is the longest a single request can take under the
// configured budgets, including the fallback reserve and one overrunning call.
func (c *Config) RequestTimeout() time.Duration {
	return c.Budgets.MaxDuration + c.Planner.Timeout
}
