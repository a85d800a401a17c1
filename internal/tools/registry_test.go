package tools

import (
	"context"
	"errors"
	"testing"
)

func noop(ctx context.Context, args map[string]any) (string, error) { return "", nil }

func mustRegister(t *testing.T, reg *Registry, tool *Tool) {
	t.Helper()
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register(%s) failed: %v", tool.Name, err)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(nil)
	if n := len(reg.All()); n != 0 {
		t.Errorf("new registry should be empty, got %d tools", n)
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry(nil)

	if err := reg.Register(&Tool{Name: "xml_echo", Category: CategoryQuery, Execute: noop}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("xml_echo")
	if got == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if got.Priority != 50 {
		t.Errorf("default priority = %d, want 50", got.Priority)
	}
	if reg.Get("other") != nil {
		t.Error("Get returned a tool that was never registered")
	}

	err := reg.Register(&Tool{Name: "xml_echo", Execute: noop})
	if !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Fatalf("duplicate Register error = %v, want ErrToolAlreadyRegistered", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry(nil)

	tests := []struct {
		name    string
		tool    *Tool
		wantErr error
	}{
		{name: "empty name", tool: &Tool{Execute: noop}, wantErr: ErrToolNameEmpty},
		{name: "nil execute", tool: &Tool{Name: "test"}, wantErr: ErrToolExecuteNil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := reg.Register(tt.tool); !errors.Is(err, tt.wantErr) {
				t.Errorf("Register error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetByCategoryAndNames(t *testing.T) {
	reg := NewRegistry(nil)
	mustRegister(t, reg, &Tool{Name: "merge_low", Category: CategoryMerge, Priority: 60, Execute: noop})
	mustRegister(t, reg, &Tool{Name: "merge_high", Category: CategoryMerge, Priority: 80, Execute: noop})
	mustRegister(t, reg, &Tool{Name: "find", Category: CategoryQuery, Execute: noop})

	merge := reg.GetByCategory(CategoryMerge)
	if len(merge) != 2 || merge[0].Name != "merge_high" {
		t.Errorf("GetByCategory(merge) = %v, want merge_high first", merge)
	}
	mustRegister(t, reg, &Tool{Name: "merge_also_high", Category: CategoryMerge, Priority: 80, Execute: noop})
	if merge = reg.GetByCategory(CategoryMerge); merge[0].Name != "merge_also_high" {
		t.Errorf("equal priorities not ordered by name: %s first", merge[0].Name)
	}

	names := reg.Names()
	want := []string{"find", "merge_also_high", "merge_high", "merge_low"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
	if all := reg.All(); all[0].Name != "find" {
		t.Errorf("All() not sorted by name: %s first", all[0].Name)
	}
}

func TestExecute(t *testing.T) {
	reg := NewRegistry(nil)
	mustRegister(t, reg, &Tool{
		Name:     "echo",
		Category: CategoryGeneral,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "Echo: " + StringArg(args, "message", ""), nil
		},
		Schema: ToolSchema{
			Required: []string{"message"},
			Properties: map[string]Property{
				"message": {Type: "string"},
				"count":   {Type: "integer"},
				"loud":    {Type: "boolean"},
			},
		},
	})
	ctx := context.Background()

	result, err := reg.Execute(ctx, "echo", map[string]any{"message": "hello", "count": float64(2), "loud": true})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Result != "Echo: hello" || result.Error != nil {
		t.Errorf("got %+v, want successful %q", result, "Echo: hello")
	}

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantErr error
	}{
		{"missing required", "echo", map[string]any{}, ErrMissingRequiredArg},
		{"wrong type", "echo", map[string]any{"message": 3}, ErrInvalidArgType},
		{"fractional integer", "echo", map[string]any{"message": "m", "count": 1.5}, ErrInvalidArgType},
		{"unknown arg", "echo", map[string]any{"message": "m", "color": "red"}, ErrUnknownArg},
		{"no such tool", "nonexistent", map[string]any{}, ErrToolNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := reg.Execute(ctx, tt.tool, tt.args)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Execute error = %v, want %v", err, tt.wantErr)
			}
			if res != nil && res.Error == nil {
				t.Error("failed execution reported success")
			}
		})
	}
}

func TestFilterByIntent(t *testing.T) {
	reg := NewRegistry(nil)
	mustRegister(t, reg, &Tool{Name: "xml_merge_element", Category: CategoryMerge, Execute: noop})
	mustRegister(t, reg, &Tool{Name: "xml_find_element", Category: CategoryQuery, Execute: noop})

	merge := reg.FilterByIntent("/inject")
	if len(merge) != 1 || merge[0].Name != "xml_merge_element" {
		t.Errorf("FilterByIntent(/inject) returned wrong tools: %v", merge)
	}

	query := reg.FilterByIntent("/find")
	if len(query) != 1 || query[0].Name != "xml_find_element" {
		t.Errorf("FilterByIntent(/find) returned wrong tools: %v", query)
	}

	if all := reg.FilterByIntent(""); len(all) != 2 {
		t.Errorf("FilterByIntent(\"\") returned %d tools, want 2", len(all))
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{"s": "v", "empty": "", "b": false}
	if got := StringArg(args, "s", "d"); got != "v" {
		t.Errorf("StringArg = %q", got)
	}
	if got := StringArg(args, "empty", "d"); got != "d" {
		t.Errorf("StringArg(empty) = %q, want default", got)
	}
	if BoolArg(args, "b", true) {
		t.Error("BoolArg ignored explicit false")
	}
	if !BoolArg(args, "missing", true) {
		t.Error("BoolArg ignored default")
	}
}
