// Package parser separates model reasoning from answer text in planner output.
package parser

import "strings"

// reasoningTags are the tag names OpenAI-compatible reasoning models use to
// wrap their chain of thought inside the message content.
var reasoningTags = map[string]bool{
	"think":     true,
	"thinking":  true,
	"reasoning": true,
}

// ReasoningParser splits content into reasoning and answer text. It keeps
// state across Parse calls so tags may span chunks.
type ReasoningParser struct {
	reasoning strings.Builder
	answer    strings.Builder
	tagBuffer strings.Builder // potential tag between < and >
	open      string          // name of the reasoning tag currently open
	inTag     bool
}

// NewReasoningParser creates a parser.
func NewReasoningParser() *ReasoningParser {
	return &ReasoningParser{}
}

// Parse consumes one chunk of content.
func (p *ReasoningParser) Parse(content string) {
	for _, ch := range content {
		switch {
		case ch == '<':
			if p.inTag {
				// the previous < was not a tag
				p.write(p.tagBuffer.String())
			}
			p.inTag = true
			p.tagBuffer.Reset()
			p.tagBuffer.WriteRune(ch)
		case ch == '>' && p.inTag:
			p.tagBuffer.WriteRune(ch)
			tag := p.tagBuffer.String()
			p.tagBuffer.Reset()
			p.inTag = false
			if !p.toggle(tag) {
				p.write(tag)
			}
		case p.inTag:
			p.tagBuffer.WriteRune(ch)
		default:
			p.write(string(ch))
		}
	}
}

// toggle enters or leaves reasoning mode when tag is a reasoning tag.
func (p *ReasoningParser) toggle(tag string) bool {
	name := strings.ToLower(strings.Trim(tag, "<>"))
	if strings.HasPrefix(name, "/") {
		name = strings.TrimPrefix(name, "/")
		if p.open != "" && name == p.open {
			p.open = ""
			return true
		}
		return false
	}
	if p.open == "" && reasoningTags[name] {
		p.open = name
		return true
	}
	return false
}

func (p *ReasoningParser) write(s string) {
	if p.open != "" {
		p.reasoning.WriteString(s)
		return
	}
	p.answer.WriteString(s)
}

// InReasoning reports whether a reasoning tag is open.
func (p *ReasoningParser) InReasoning() bool {
	return p.open != ""
}

// Flush emits any incomplete tag as text and returns the trimmed reasoning
// and answer accumulated so far.
func (p *ReasoningParser) Flush() (reasoning, answer string) {
	if p.inTag && p.tagBuffer.Len() > 0 {
		p.write(p.tagBuffer.String())
		p.tagBuffer.Reset()
		p.inTag = false
	}
	return strings.TrimSpace(p.reasoning.String()), strings.TrimSpace(p.answer.String())
}

// SplitReasoning separates reasoning from the answer in a complete message.
func SplitReasoning(content string) (reasoning, answer string) {
	p := NewReasoningParser()
	p.Parse(content)
	return p.Flush()
}
