package xmltools

import (
	"context"
	"fmt"

	"autobuilder/internal/tools"
)

func (ts *toolset) findElementTool() *tools.Tool {
	return &tools.Tool{
		Name:        "xml_find_element",
		Description: "Return the first element a selector matches in a document, formatted as XML",
		Category:    tools.CategoryQuery,
		Priority:    80,
		Execute:     ts.executeFindElement,
		Schema: tools.ToolSchema{
			Required: []string{"document", "selector"},
			Properties: map[string]tools.Property{
				"document": {Type: "string", Description: "Path of the XML document"},
				"selector": {Type: "string", Description: `Selector such as .//entity[@name='User']`},
			},
		},
	}
}

func (ts *toolset) executeFindElement(ctx context.Context, args map[string]any) (string, error) {
	document := tools.StringArg(args, "document", "")
	selector := tools.StringArg(args, "selector", "")
	if document == "" || selector == "" {
		return "", fmt.Errorf("document and selector are required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	core := ts.Service.Core()
	el, err := core.FindElement(document, selector)
	if err != nil {
		return "", err
	}
	return core.FormatElement(el, true)
}
