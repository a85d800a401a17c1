// Package tools exposes merge engine operations as named tools with JSON
// argument schemas, so agents and the CLI can call them the same way.
//
//	name → Registry.Get() → validate args → Tool.Execute()
package tools

import (
	"context"
)

// ToolCategory groups tools for intent-based filtering.
type ToolCategory string

const (
	// CategoryMerge covers tools that write documents.
	CategoryMerge ToolCategory = "/merge"

	// CategoryQuery covers read-only lookups in documents.
	CategoryQuery ToolCategory = "/query"

	// CategoryFormat covers fragment parsing and formatting.
	CategoryFormat ToolCategory = "/format"

	// CategoryGeneral is for tools usable by any intent.
	CategoryGeneral ToolCategory = "/general"
)

// Property is one argument in a tool's JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one named operation.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does.
	Description string

	// Category classifies the tool for intent filtering.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// Priority is used when multiple tools match.
	// Higher priority tools are preferred (default 50).
	Priority int
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	ToolName string `json:"tool"`
	Result   string `json:"result"`
	// Error is set if the tool failed.
	Error      error `json:"-"`
	DurationMs int64 `json:"duration_ms"`
}
