package types

// MessageRole identifies the author of a transcript message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is a single entry in a planner transcript.
type Message struct {
	// Metadata holds optional bookkeeping that is never sent to the planner.
	Metadata map[string]interface{}

	// Usage is set on assistant messages returned by the planner.
	Usage *Usage

	// Role is the author of the message.
	Role MessageRole

	// Content is the text body. Assistant messages with tool calls may leave it empty.
	Content string

	// ToolCallID links a tool result to the assistant tool call it answers.
	ToolCallID string

	// Name is the action name for tool results.
	Name string

	// ToolCalls are the actions requested by an assistant message.
	ToolCalls []ToolCall
}

// ToolCall is one action requested by the planner. Arguments is the raw JSON
// object produced by the planner.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes one action in the vocabulary offered to the planner.
// Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Usage holds token counters and cost reported for a single planner call.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
	CacheReadTokens int
	CostUSD         float64
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message with text content only.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates the result message for a tool call.
func NewToolMessage(toolCallID, name, content string) *Message {
	return &Message{
		Role:       RoleTool,
		ToolCallID: toolCallID,
		Name:       name,
		Content:    content,
	}
}

// WithMetadata sets a metadata key and returns the message for chaining.
func (m *Message) WithMetadata(key string, value interface{}) *Message {
	if m.Metadata == nil {
		m.Metadata = make(map[string]interface{})
	}
	m.Metadata[key] = value
	return m
}

// HasToolCalls reports whether the message requests any actions.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a shallow copy with its own tool call slice and metadata map.
func (m *Message) Clone() *Message {
	c := *m
	if m.ToolCalls != nil {
		c.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	if m.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
