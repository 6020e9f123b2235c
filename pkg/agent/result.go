package agent

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TokenUsage is the token summary reported with a result.
type TokenUsage struct {
	Input     int `json:"input"`
	Output    int `json:"output"`
	Total     int `json:"total"`
	CacheRead int `json:"cache_read"`
}

// Result is the record returned to the caller for one task.
type Result struct {
	Success         bool        `json:"success"`
	Partial         bool        `json:"partial"`
	Response        string      `json:"response"`
	DurationSeconds float64     `json:"duration_seconds"`
	Sources         []string    `json:"sources"`
	TokenUsage      *TokenUsage `json:"token_usage,omitempty"`
	CostUSD         float64     `json:"cost_usd,omitempty"`
}

const (
	incompleteNote  = "Note: the browsing session ended before the task was finished, so this answer may be incomplete."
	fallbackNote    = "Note: this answer was auto-generated from collected content after the browsing session ended early."
	failureResponse = "The task could not be completed: the browsing session ended before any answer or content was collected."
)

// ToResult builds the caller-facing record. timedOut and navTerminated
// report how the loop ended.
func (a *Accumulator) ToResult(duration time.Duration, timedOut, navTerminated bool) *Result {
	res := &Result{
		DurationSeconds: math.Round(duration.Seconds()*100) / 100,
		Sources:         a.URLs(),
	}
	if res.Sources == nil {
		res.Sources = []string{}
	}
	if a.usage.InputTokens > 0 || a.usage.OutputTokens > 0 {
		res.TokenUsage = &TokenUsage{
			Input:     a.usage.InputTokens,
			Output:    a.usage.OutputTokens,
			Total:     a.usage.InputTokens + a.usage.OutputTokens,
			CacheRead: a.usage.CacheReadTokens,
		}
	}
	if a.usage.CostUSD > 0 {
		res.CostUSD = math.Round(a.usage.CostUSD*1e6) / 1e6
	}

	early := timedOut || navTerminated
	switch {
	case a.response != "" && a.fallback:
		res.Success, res.Partial = true, true
		res.Response = a.response + "\n\n" + fallbackNote
	case a.response != "" && early:
		res.Success, res.Partial = true, true
		res.Response = a.response + "\n\n" + incompleteNote
	case a.response != "":
		res.Success = true
		res.Response = a.response
	case len(a.urls) > 0:
		res.Success, res.Partial = true, true
		res.Response = a.sourceList()
	default:
		res.Response = failureResponse
	}
	return res
}

func (a *Accumulator) sourceList() string {
	var b strings.Builder
	b.WriteString("The browsing session ended before an answer was produced. Pages visited:\n")
	limit := a.limits.MaxListedSources
	for i, u := range a.urls {
		if i == limit {
			fmt.Fprintf(&b, "+%d more\n", len(a.urls)-limit)
			break
		}
		fmt.Fprintf(&b, "- %s\n", u)
	}
	return strings.TrimRight(b.String(), "\n")
}
