package openai

import "time"

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when the configuration names none
	DefaultModel = "gpt-4o-mini"
)

// Config configures the planner client.
type Config struct {
	// APIKey authenticates requests. Filled from OPENAI_API_KEY by the config loader.
	APIKey string `yaml:"api_key" json:"-"`

	// BaseURL points at any OpenAI-compatible endpoint; empty means DefaultBaseURL
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Model is used for planning and summarization calls
	Model string `yaml:"model" json:"model"`

	// VisionModel describes screenshots; defaults to Model
	VisionModel string `yaml:"vision_model" json:"vision_model"`

	// Timeout bounds a single attempt
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// MaxRetries is the number of retries after the first attempt for transient failures
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// InitialBackoff and MaxBackoff shape the exponential retry delay
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`

	// RequestsPerSecond paces outgoing calls; zero disables pacing
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`

	// Pricing overrides the built-in price table for Model
	Pricing *Price `yaml:"pricing,omitempty" json:"pricing,omitempty"`
}

// DefaultConfig returns the standard planner settings.
func DefaultConfig() Config {
	return Config{
		Model:          DefaultModel,
		Timeout:        120 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Burst:          1,
	}
}
