// Package prompts holds the instructions sent to the planner for browsing
// and for summarizing collected content.
package prompts

import (
	"fmt"
	"strings"
	"time"
)

// PromptBuilder constructs the system prompt for the browsing loop.
type PromptBuilder struct {
	customInstructions string
	now                time.Time
}

// NewPromptBuilder creates a new prompt builder with default settings
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// WithCustomInstructions adds caller-provided instructions
func (pb *PromptBuilder) WithCustomInstructions(instructions string) *PromptBuilder {
	pb.customInstructions = strings.TrimSpace(instructions)
	return pb
}

// WithDate states the current date so relative questions resolve correctly
func (pb *PromptBuilder) WithDate(now time.Time) *PromptBuilder {
	pb.now = now
	return pb
}

// Build constructs the complete system prompt by assembling all sections
func (pb *PromptBuilder) Build() string {
	var builder strings.Builder

	if pb.customInstructions != "" {
		builder.WriteString("<custom_instructions>\n")
		builder.WriteString(pb.customInstructions)
		builder.WriteString("\n</custom_instructions>\n\n")
	}

	builder.WriteString(SystemCapabilitiesPrompt)
	builder.WriteString("\n\n")
	builder.WriteString(AgentLoopPrompt)
	builder.WriteString("\n\n")
	builder.WriteString(BrowsingGuidancePrompt)
	builder.WriteString("\n\n")
	builder.WriteString(AnswerFormatPrompt)

	if !pb.now.IsZero() {
		fmt.Fprintf(&builder, "\n\nToday's date is %s.", pb.now.Format("2006-01-02"))
	}

	return builder.String()
}

// WrapUp returns the one-time instruction injected near the turn limit.
func WrapUp(turnsLeft int) string {
	return fmt.Sprintf(WrapUpPrompt, turnsLeft)
}

// Source is one captured page handed to the summarizer prompts.
type Source struct {
	URL  string
	Text string
}

// FormatSources renders captured pages as delimited blocks.
func FormatSources(sources []Source) string {
	var b strings.Builder
	for i, s := range sources {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Source: %s ---\n%s", s.URL, s.Text)
	}
	return b.String()
}

// SynthesisRequest builds the single-pass summarization request.
func SynthesisRequest(task string, visited []string, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)
	if len(visited) > 0 {
		b.WriteString("Visited URLs:\n")
		for _, u := range visited {
			fmt.Fprintf(&b, "- %s\n", u)
		}
		b.WriteString("\n")
	}
	b.WriteString("Collected content:\n\n")
	b.WriteString(content)
	return b.String()
}

// MapRequest builds the request for one chunk.
func MapRequest(task string, part, parts int, content string) string {
	return fmt.Sprintf("Task: %s\n\nPart %d of %d of the collected content:\n\n%s", task, part, parts, content)
}

// ReduceRequest builds the request combining chunk extractions.
func ReduceRequest(task string, visited []string, notes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)
	if len(visited) > 0 {
		b.WriteString("Visited URLs:\n")
		for _, u := range visited {
			fmt.Fprintf(&b, "- %s\n", u)
		}
		b.WriteString("\n")
	}
	for i, n := range notes {
		fmt.Fprintf(&b, "Notes %d:\n%s\n\n", i+1, strings.TrimSpace(n))
	}
	return strings.TrimSpace(b.String())
}
