package agent

import (
	"fmt"
	"time"
)

// Budgets bound a single browsing run. All three limits are checked before
// every planner call.
type Budgets struct {
	// MaxDuration is the wall-clock budget for the whole run
	MaxDuration time.Duration `yaml:"max_duration" json:"max_duration"`

	// FallbackReserve is carved out of MaxDuration for fallback summarization
	FallbackReserve time.Duration `yaml:"fallback_reserve" json:"fallback_reserve"`

	// MinTurnTime is the least remaining time worth starting another turn with
	MinTurnTime time.Duration `yaml:"min_turn_time" json:"min_turn_time"`

	// MaxTurns caps planner calls
	MaxTurns int `yaml:"max_turns" json:"max_turns"`

	// WrapUpTurns is how many turns before the cap the wrap-up instruction is injected
	WrapUpTurns int `yaml:"wrap_up_turns" json:"wrap_up_turns"`

	// MaxNavigations caps navigation attempts, including each URL of a fetch
	MaxNavigations int `yaml:"max_navigations" json:"max_navigations"`
}

// DefaultBudgets returns the standard per-run limits.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxDuration:     5 * time.Minute,
		FallbackReserve: 45 * time.Second,
		MinTurnTime:     10 * time.Second,
		MaxTurns:        30,
		WrapUpTurns:     3,
		MaxNavigations:  25,
	}
}

// Validate reports the first inconsistent limit.
func (b Budgets) Validate() error {
	if b.MaxDuration <= 0 {
		return fmt.Errorf("max_duration must be positive")
	}
	if b.FallbackReserve < 0 || b.FallbackReserve >= b.MaxDuration {
		return fmt.Errorf("fallback_reserve must be non-negative and less than max_duration")
	}
	if b.MinTurnTime < 0 {
		return fmt.Errorf("min_turn_time cannot be negative")
	}
	if b.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be at least 1")
	}
	if b.WrapUpTurns < 0 || b.WrapUpTurns > b.MaxTurns {
		return fmt.Errorf("wrap_up_turns must be between 0 and max_turns")
	}
	if b.MaxNavigations < 1 {
		return fmt.Errorf("max_navigations must be at least 1")
	}
	return nil
}

// Limits caps what the accumulator retains.
type Limits struct {
	// MinPageChars drops captures shorter than this
	MinPageChars int `yaml:"min_page_chars" json:"min_page_chars"`

	// MaxPageChars truncates each capture
	MaxPageChars int `yaml:"max_page_chars" json:"max_page_chars"`

	// MaxTotalChars stops captures once reached
	MaxTotalChars int `yaml:"max_total_chars" json:"max_total_chars"`

	// MaxListedSources caps the source list in a partial result message
	MaxListedSources int `yaml:"max_listed_sources" json:"max_listed_sources"`
}

// DefaultLimits returns the standard capture caps.
func DefaultLimits() Limits {
	return Limits{
		MinPageChars:     50,
		MaxPageChars:     15000,
		MaxTotalChars:    200000,
		MaxListedSources: 25,
	}
}

// SummarizerOptions configures fallback summarization.
type SummarizerOptions struct {
	// SinglePassThreshold is the content size below which one call is made
	SinglePassThreshold int `yaml:"single_pass_threshold" json:"single_pass_threshold"`

	// ChunkSize bounds each map-phase chunk
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// MaxParallel bounds concurrent map calls
	MaxParallel int `yaml:"max_parallel" json:"max_parallel"`

	// CallTimeout bounds each summarization call; zero leaves it to the planner
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout"`
}

// DefaultSummarizerOptions returns the standard summarization sizes.
func DefaultSummarizerOptions() SummarizerOptions {
	return SummarizerOptions{
		SinglePassThreshold: 40000,
		ChunkSize:           30000,
		MaxParallel:         8,
		CallTimeout:         40 * time.Second,
	}
}

// TranscriptOptions bounds the transcript sent to the planner.
type TranscriptOptions struct {
	// MaxChars is the context ceiling in characters
	MaxChars int `yaml:"max_chars" json:"max_chars"`

	// ProtectedRecent is how many trailing messages are never compacted
	ProtectedRecent int `yaml:"protected_recent" json:"protected_recent"`
}

// DefaultTranscriptOptions returns the standard context ceiling.
func DefaultTranscriptOptions() TranscriptOptions {
	return TranscriptOptions{
		MaxChars:        400000,
		ProtectedRecent: 6,
	}
}
