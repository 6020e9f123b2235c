package agent

import (
	"fmt"
	"unicode/utf8"

	"github.com/entrhq/forage/pkg/types"
)

// compactedKey marks a tool message whose content was replaced.
const compactedKey = "compacted"

// Transcript is the ordered message history sent to the planner. Messages
// are only appended; compaction rewrites old tool results in place.
type Transcript struct {
	opts     TranscriptOptions
	messages []*types.Message
}

// NewTranscript starts a transcript with the system prompt and the task.
func NewTranscript(opts TranscriptOptions, systemPrompt, task string) *Transcript {
	def := DefaultTranscriptOptions()
	if opts.MaxChars <= 0 {
		opts.MaxChars = def.MaxChars
	}
	if opts.ProtectedRecent < 0 {
		opts.ProtectedRecent = 0
	}
	return &Transcript{
		opts: opts,
		messages: []*types.Message{
			types.NewSystemMessage(systemPrompt),
			types.NewUserMessage(task),
		},
	}
}

// Append adds messages at the end.
func (t *Transcript) Append(msgs ...*types.Message) {
	t.messages = append(t.messages, msgs...)
}

// Messages returns the messages in order.
func (t *Transcript) Messages() []*types.Message {
	return append([]*types.Message(nil), t.messages...)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Chars estimates the transcript size in characters.
func (t *Transcript) Chars() int {
	total := 0
	for _, m := range t.messages {
		total += messageChars(m)
	}
	return total
}

// Compact replaces tool results with short placeholders, oldest first, until
// the transcript fits MaxChars. The system message, the task and the
// ProtectedRecent trailing messages are never touched. It returns how many
// messages were compacted.
func (t *Transcript) Compact() int {
	size := t.Chars()
	if size <= t.opts.MaxChars {
		return 0
	}

	end := len(t.messages) - t.opts.ProtectedRecent
	compacted := 0
	for i := 2; i < end && size > t.opts.MaxChars; i++ {
		msg := t.messages[i]
		if msg.Role != types.RoleTool || msg.Metadata[compactedKey] == true {
			continue
		}
		before := messageChars(msg)
		placeholder := fmt.Sprintf("[%s result removed to save context (%d characters)]", msg.Name, utf8.RuneCountInString(msg.Content))

		replaced := msg.Clone()
		replaced.Content = placeholder
		replaced.WithMetadata(compactedKey, true)
		t.messages[i] = replaced

		size -= before - messageChars(replaced)
		compacted++
	}
	return compacted
}

func messageChars(m *types.Message) int {
	n := utf8.RuneCountInString(m.Content)
	for _, tc := range m.ToolCalls {
		n += len(tc.Name) + len(tc.Arguments)
	}
	return n
}
