// Package llm defines the planner boundary: the remote chat-completions
// service that chooses the next browser action.
package llm

import (
	"context"
	"errors"

	"github.com/entrhq/forage/pkg/types"
)

// ErrNoChoices is returned when the service answers without a completion.
var ErrNoChoices = errors.New("planner returned no choices")

// Planner decides the next step of a browsing task.
//
// Complete sends the transcript and, when tools is non-empty, the action
// vocabulary the planner may call. The returned assistant message carries
// either text or tool calls, and Usage when the service reports it.
// Implementations retry transient failures themselves; an error means the
// planner is unavailable for this call.
type Planner interface {
	Complete(ctx context.Context, messages []*types.Message, tools []types.ToolDefinition) (*types.Message, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, messages []*types.Message, tools []types.ToolDefinition) (*types.Message, error)

// Complete calls f.
func (f PlannerFunc) Complete(ctx context.Context, messages []*types.Message, tools []types.ToolDefinition) (*types.Message, error) {
	return f(ctx, messages, tools)
}
