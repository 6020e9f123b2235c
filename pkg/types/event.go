package types

// AgentEventType defines the type of event emitted by the agent loop.
type AgentEventType string

const (
	EventTypeTurnStart       AgentEventType = "turn_start"       // EventTypeTurnStart indicates a new planner turn is beginning.
	EventTypeWrapUp          AgentEventType = "wrap_up"          // EventTypeWrapUp indicates the wrap-up instruction was injected.
	EventTypeAPICallStart    AgentEventType = "api_call_start"   // EventTypeAPICallStart indicates a planner call is being made.
	EventTypeAPICallEnd      AgentEventType = "api_call_end"     // EventTypeAPICallEnd indicates a planner call has completed.
	EventTypeTokenUsage      AgentEventType = "token_usage"      // EventTypeTokenUsage carries token usage from a planner call.
	EventTypeToolCall        AgentEventType = "tool_call"        // EventTypeToolCall indicates an action is being executed.
	EventTypeToolResult      AgentEventType = "tool_result"      // EventTypeToolResult carries the text result of an action.
	EventTypeNavigationBatch AgentEventType = "navigation_batch" // EventTypeNavigationBatch indicates navigate calls were fanned out as one fetch.
	EventTypeFallbackStart   AgentEventType = "fallback_start"   // EventTypeFallbackStart indicates the fallback summarizer is running.
	EventTypeFallbackEnd     AgentEventType = "fallback_end"     // EventTypeFallbackEnd indicates the fallback summarizer finished.
	EventTypeTerminated      AgentEventType = "terminated"       // EventTypeTerminated indicates the loop has stopped.
	EventTypeError           AgentEventType = "error"            // EventTypeError indicates a recoverable error.
)

// AgentEvent represents an event emitted by the agent loop during a run.
type AgentEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// TokenUsage is set on token usage events.
	TokenUsage *Usage

	// Error contains error information for error events.
	Error error

	// Content holds text content (tool results, termination reason).
	Content string

	// ToolName is the action name for tool events.
	ToolName string

	// Type indicates the kind of event.
	Type AgentEventType

	// Turn is the 1-based turn number the event belongs to.
	Turn int
}

// NewTurnStartEvent creates a turn start event.
func NewTurnStartEvent(turn int) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeTurnStart,
		Turn:     turn,
		Metadata: make(map[string]interface{}),
	}
}

// NewWrapUpEvent creates a wrap-up event.
func NewWrapUpEvent(turn, turnsLeft int) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeWrapUp,
		Turn:     turn,
		Metadata: map[string]interface{}{"turns_left": turnsLeft},
	}
}

// NewAPICallStartEvent creates an API call start event.
func NewAPICallStartEvent(turn, promptTokens, toolCount int) *AgentEvent {
	return &AgentEvent{
		Type: EventTypeAPICallStart,
		Turn: turn,
		Metadata: map[string]interface{}{
			"prompt_tokens": promptTokens,
			"tool_count":    toolCount,
		},
	}
}

// NewAPICallEndEvent creates an API call end event.
func NewAPICallEndEvent(turn int, err error) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeAPICallEnd,
		Turn:     turn,
		Error:    err,
		Metadata: make(map[string]interface{}),
	}
}

// NewTokenUsageEvent creates a token usage event.
func NewTokenUsageEvent(turn int, usage *Usage) *AgentEvent {
	return &AgentEvent{
		Type:       EventTypeTokenUsage,
		Turn:       turn,
		TokenUsage: usage,
		Metadata:   make(map[string]interface{}),
	}
}

// NewToolCallEvent creates a tool call event.
func NewToolCallEvent(turn int, toolName, arguments string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeToolCall,
		Turn:     turn,
		ToolName: toolName,
		Metadata: map[string]interface{}{"arguments": arguments},
	}
}

// NewToolResultEvent creates a tool result event.
func NewToolResultEvent(turn int, toolName, result string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeToolResult,
		Turn:     turn,
		ToolName: toolName,
		Content:  result,
		Metadata: make(map[string]interface{}),
	}
}

// NewNavigationBatchEvent creates a navigation batch event.
func NewNavigationBatchEvent(turn int, urls []string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeNavigationBatch,
		Turn:     turn,
		ToolName: "navigate",
		Metadata: map[string]interface{}{"urls": urls},
	}
}

// NewFallbackStartEvent creates a fallback start event.
func NewFallbackStartEvent(pages int) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeFallbackStart,
		Metadata: map[string]interface{}{"pages": pages},
	}
}

// NewFallbackEndEvent creates a fallback end event.
func NewFallbackEndEvent(ok bool) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeFallbackEnd,
		Metadata: map[string]interface{}{"ok": ok},
	}
}

// NewTerminatedEvent creates a termination event carrying the stop reason.
func NewTerminatedEvent(turn int, reason string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeTerminated,
		Turn:     turn,
		Content:  reason,
		Metadata: make(map[string]interface{}),
	}
}

// NewErrorEvent creates an error event.
func NewErrorEvent(turn int, err error) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeError,
		Turn:     turn,
		Error:    err,
		Metadata: make(map[string]interface{}),
	}
}
