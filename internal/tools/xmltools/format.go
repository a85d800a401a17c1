package xmltools

import (
	"context"

	"autobuilder/internal/tools"
)

func (ts *toolset) formatFragmentTool() *tools.Tool {
	return &tools.Tool{
		Name:        "xml_format_fragment",
		Description: "Parse a fragment and return it formatted with its namespaces declared on its root",
		Category:    tools.CategoryFormat,
		Priority:    70,
		Execute:     ts.executeFormatFragment,
		Schema: tools.ToolSchema{
			Required: []string{"fragment"},
			Properties: map[string]tools.Property{
				"fragment":               {Type: "string", Description: "XML fragment, optionally fenced"},
				"target_tag":             optionProperties["target_tag"],
				"strip_child_namespaces": optionProperties["strip_child_namespaces"],
			},
		},
	}
}

func (ts *toolset) executeFormatFragment(ctx context.Context, args map[string]any) (string, error) {
	core := ts.Service.Core()
	el, err := core.ParseFragment(tools.StringArg(args, "fragment", ""), tools.StringArg(args, "target_tag", ""))
	if err != nil {
		return "", err
	}
	return core.FormatElement(el, tools.BoolArg(args, "strip_child_namespaces", true))
}

func (ts *toolset) parseEntityTool() *tools.Tool {
	return &tools.Tool{
		Name:        "xml_parse_entity",
		Description: "Extract the first <entity> from generated text and report its name and table",
		Category:    tools.CategoryFormat,
		Priority:    75,
		Execute:     ts.executeParseEntity,
		Schema: tools.ToolSchema{
			Required: []string{"text"},
			Properties: map[string]tools.Property{
				"text": {Type: "string", Description: "Model output containing an entity definition"},
			},
		},
	}
}

func (ts *toolset) executeParseEntity(ctx context.Context, args map[string]any) (string, error) {
	res, err := ts.Entities.Parse(tools.StringArg(args, "text", ""))
	if err != nil {
		return "", err
	}
	return toJSON(res)
}

func (ts *toolset) prettifyTool() *tools.Tool {
	return &tools.Tool{
		Name:        "xml_prettify",
		Description: "Re-indent an XML string; text that does not parse is returned unchanged",
		Category:    tools.CategoryFormat,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return ts.Service.Core().Prettify(tools.StringArg(args, "text", "")), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"text"},
			Properties: map[string]tools.Property{
				"text": {Type: "string", Description: "XML to re-indent"},
			},
		},
	}
}
