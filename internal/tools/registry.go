package tools

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// defaultPriority is assigned to tools registered without one.
const defaultPriority = 50

// Registry maps tool names to tools. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *zap.Logger
}

// NewRegistry creates an empty registry. logger may be nil.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{tools: make(map[string]*Tool), logger: logger}
}

// Register adds tool, failing on an invalid definition or a taken name.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}
	if tool.Priority == 0 {
		tool.Priority = defaultPriority
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.tools[tool.Name]; taken {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	r.logger.Debug("registered tool",
		zap.String("tool", tool.Name),
		zap.String("category", string(tool.Category)),
		zap.Int("priority", tool.Priority))
	return nil
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns every tool ordered by name.
func (r *Registry) All() []*Tool {
	return r.filter(func(*Tool) bool { return true }, byName)
}

// GetByCategory returns the tools in category, highest priority first and
// by name among equals.
func (r *Registry) GetByCategory(category ToolCategory) []*Tool {
	return r.filter(func(t *Tool) bool { return t.Category == category }, func(a, b *Tool) int {
		if a.Priority != b.Priority {
			return b.Priority - a.Priority
		}
		return byName(a, b)
	})
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name
	}
	return names
}

func (r *Registry) filter(keep func(*Tool) bool, cmp func(a, b *Tool) int) []*Tool {
	r.mu.RLock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		if keep(t) {
			out = append(out, t)
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, cmp)
	return out
}

func byName(a, b *Tool) int { return strings.Compare(a.Name, b.Name) }

// Execute validates args against the named tool's schema and runs it. The
// result is returned alongside any error so callers can report timing.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	start := time.Now()
	res := &ToolResult{ToolName: tool.Name}
	if err := validateArgs(tool, args); err != nil {
		res.Error = err
	} else {
		res.Result, res.Error = tool.Execute(ctx, args)
	}
	res.DurationMs = time.Since(start).Milliseconds()

	r.logger.Debug("tool finished",
		zap.String("tool", tool.Name),
		zap.Int64("duration_ms", res.DurationMs),
		zap.Error(res.Error))
	return res, res.Error
}

// validateArgs checks required arguments and, when the schema declares
// properties, rejects unknown names and mistyped values.
func validateArgs(tool *Tool, args map[string]any) error {
	for _, required := range tool.Schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	if len(tool.Schema.Properties) == 0 {
		return nil
	}
	for _, name := range slices.Sorted(maps.Keys(args)) {
		prop, ok := tool.Schema.Properties[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownArg, name)
		}
		if !matchesType(prop.Type, args[name]) {
			return fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidArgType, name, prop.Type, args[name])
		}
	}
	return nil
}

// matchesType accepts the Go values encoding/json produces for each JSON
// schema type, plus native ints.
func matchesType(typ string, v any) bool {
	switch typ {
	case "", "any":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "integer":
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		}
		return false
	case "number":
		switch v.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

// FilterByIntent returns the tools for an intent verb such as /inject or
// /find. An empty intent returns everything.
func (r *Registry) FilterByIntent(intent string) []*Tool {
	if category := intentToCategory(intent); category != "" {
		return r.GetByCategory(category)
	}
	return r.All()
}

func intentToCategory(intent string) ToolCategory {
	switch intent {
	case "/merge", "/write", "/update", "/inject":
		return CategoryMerge
	case "/find", "/inspect", "/lookup":
		return CategoryQuery
	case "/format", "/prettify", "/parse":
		return CategoryFormat
	case "":
		return ""
	default:
		return CategoryGeneral
	}
}

// StringArg returns args[key] as a string, or def when absent.
func StringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// BoolArg returns args[key] as a bool, or def when absent.
func BoolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
