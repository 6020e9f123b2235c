// Package tokenizer estimates prompt sizes with the tiktoken encodings used
// by OpenAI models.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/entrhq/forage/pkg/types"
)

// DefaultEncoding is used when the model has no registered encoding.
const DefaultEncoding = "o200k_base"

// perMessageOverhead approximates the role and separator tokens the chat
// format adds around every message.
const perMessageOverhead = 4

// Tokenizer counts tokens for one encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New returns a tokenizer for model, falling back to DefaultEncoding.
// Loading an encoding may need network access the first time, so callers
// should treat an error as "no tokenizer" rather than fatal.
func New(model string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load encoding %s: %w", DefaultEncoding, err)
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the number of tokens in text. A nil tokenizer
// estimates four characters per token.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil {
		return Estimate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessagesTokens returns the approximate prompt size of a transcript.
func (t *Tokenizer) CountMessagesTokens(messages []*types.Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead + t.CountTokens(m.Content)
		for _, tc := range m.ToolCalls {
			total += t.CountTokens(tc.Name) + t.CountTokens(tc.Arguments)
		}
	}
	return total
}

// Estimate approximates token count without an encoding.
func Estimate(text string) int {
	return (len(text) + 3) / 4
}
