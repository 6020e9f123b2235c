// Package tools holds the helpers shared by every action family offered to
// the planner: JSON schema construction and argument decoding.
package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/forage/pkg/types"
)

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty describes a string argument.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

// IntegerProperty describes an integer argument.
func IntegerProperty(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

// BooleanProperty describes a boolean argument.
func BooleanProperty(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

// ArrayProperty describes an array argument whose elements match items.
func ArrayProperty(description string, items map[string]interface{}, maxItems int) map[string]interface{} {
	prop := map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       items,
	}
	if maxItems > 0 {
		prop["maxItems"] = maxItems
	}
	return prop
}

// Definition builds the planner-facing description of one tool.
func Definition(name, description string, schema map[string]interface{}) types.ToolDefinition {
	return types.ToolDefinition{Name: name, Description: description, Parameters: schema}
}

// DecodeArguments unmarshals the planner's JSON arguments into v. Empty
// arguments decode as an empty object. Planners occasionally wrap the object
// in a markdown code fence, which is stripped before decoding.
func DecodeArguments(raw string, v interface{}) error {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		raw = "{}"
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
