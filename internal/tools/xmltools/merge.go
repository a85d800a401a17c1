package xmltools

import (
	"context"
	"fmt"

	"autobuilder/internal/merge"
	"autobuilder/internal/orm"
	"autobuilder/internal/tools"
	"autobuilder/internal/xmlcore"
)

// mergeOutput is the JSON result of the merge tools.
type mergeOutput struct {
	Document string `json:"document"`
	xmlcore.MergeResult
	Written bool   `json:"written"`
	Diff    string `json:"diff,omitempty"`
}

var optionProperties = map[string]tools.Property{
	"parent_selector": {
		Type:        "string",
		Description: "Selector for the container element (default .//entities)",
	},
	"matcher": {
		Type:        "string",
		Description: "Identifying attribute; empty tries id, name, key in order",
	},
	"target_tag": {
		Type:        "string",
		Description: "Extract the first element with this tag from the fragment",
	},
	"strategy": {
		Type:        "string",
		Description: "How a matching element is handled",
		Enum:        []any{"replace_or_append", "always_append", "force_replace"},
	},
	"strip_child_namespaces": {
		Type:        "boolean",
		Description: "Remove redundant xmlns declarations below the root",
		Default:     true,
	},
	"dry_run": {
		Type:        "boolean",
		Description: "Return a diff instead of writing the document",
	},
}

func withProperties(extra map[string]tools.Property) map[string]tools.Property {
	props := make(map[string]tools.Property, len(optionProperties)+len(extra))
	for k, v := range optionProperties {
		props[k] = v
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

// applyOptions overrides base with the option arguments present in args.
func applyOptions(base xmlcore.MergeOptions, args map[string]any) xmlcore.MergeOptions {
	opts := base
	opts.ParentSelector = tools.StringArg(args, "parent_selector", opts.ParentSelector)
	opts.Matcher = tools.StringArg(args, "matcher", opts.Matcher)
	opts.TargetTag = tools.StringArg(args, "target_tag", opts.TargetTag)
	opts.Strategy = xmlcore.Strategy(tools.StringArg(args, "strategy", string(opts.Strategy)))
	opts.StripChildNamespaces = tools.BoolArg(args, "strip_child_namespaces", opts.StripChildNamespaces)
	return opts
}

func (ts *toolset) mergeElementTool() *tools.Tool {
	return &tools.Tool{
		Name:        "xml_merge_element",
		Description: "Merge an XML fragment into a document, replacing the element with the same identifier or appending it",
		Category:    tools.CategoryMerge,
		Priority:    90,
		Execute:     ts.executeMergeElement,
		Schema: tools.ToolSchema{
			Required: []string{"fragment", "document"},
			Properties: withProperties(map[string]tools.Property{
				"fragment": {Type: "string", Description: "XML fragment, optionally inside a markdown code fence"},
				"document": {Type: "string", Description: "Path of the XML document to modify"},
			}),
		},
	}
}

func (ts *toolset) executeMergeElement(ctx context.Context, args map[string]any) (string, error) {
	document := tools.StringArg(args, "document", "")
	if document == "" {
		return "", fmt.Errorf("document is required")
	}
	return ts.merge(ctx, document, args, applyOptions(ts.Defaults, args))
}

func (ts *toolset) mergeEntityTool() *tools.Tool {
	return &tools.Tool{
		Name:        "xml_merge_entity",
		Description: "Merge an ORM <entity> into the model file, matching existing entities by name",
		Category:    tools.CategoryMerge,
		Priority:    95,
		Execute:     ts.executeMergeEntity,
		Schema: tools.ToolSchema{
			Required: []string{"fragment"},
			Properties: map[string]tools.Property{
				"fragment": {Type: "string", Description: "Entity XML or a response containing one"},
				"document": {Type: "string", Description: "ORM model path (defaults to the configured app.orm.xml)"},
				"dry_run":  optionProperties["dry_run"],
			},
		},
	}
}

func (ts *toolset) executeMergeEntity(ctx context.Context, args map[string]any) (string, error) {
	document := tools.StringArg(args, "document", ts.ORMPath)
	if document == "" {
		return "", fmt.Errorf("document is required: no ORM model path configured")
	}
	w := orm.NewWriter(ts.Service, document, ts.EntityDefaults)
	return ts.merge(ctx, w.Path(), args, w.Options())
}

func (ts *toolset) merge(ctx context.Context, document string, args map[string]any, opts xmlcore.MergeOptions) (string, error) {
	dryRun := tools.BoolArg(args, "dry_run", false)
	out, err := ts.Service.Merge(ctx, merge.Request{
		Fragment: tools.StringArg(args, "fragment", ""),
		Document: document,
		Options:  opts,
		DryRun:   dryRun,
		Source:   "tool",
	})
	if err != nil {
		return "", err
	}
	res := mergeOutput{Document: document, MergeResult: out.Result, Written: out.Written}
	if dryRun {
		res.Diff = ts.Diff.Compute(document, out.Preview.Before, out.Preview.After).Unified()
	}
	return toJSON(res)
}

func (ts *toolset) replaceElementTool() *tools.Tool {
	return &tools.Tool{
		Name:        "xml_replace_element",
		Description: "Replace the first element a selector matches with an XML fragment",
		Category:    tools.CategoryMerge,
		Priority:    60,
		Execute:     ts.executeReplaceElement,
		Schema: tools.ToolSchema{
			Required: []string{"document", "selector", "fragment"},
			Properties: map[string]tools.Property{
				"document": {Type: "string", Description: "Path of the XML document to modify"},
				"selector": {Type: "string", Description: "Selector for the element to replace"},
				"fragment": {Type: "string", Description: "Replacement XML"},
			},
		},
	}
}

func (ts *toolset) executeReplaceElement(ctx context.Context, args map[string]any) (string, error) {
	document := tools.StringArg(args, "document", "")
	selector := tools.StringArg(args, "selector", "")
	if document == "" || selector == "" {
		return "", fmt.Errorf("document and selector are required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	replaced, err := ts.Service.Replace(document, selector, tools.StringArg(args, "fragment", ""))
	if err != nil {
		return "", err
	}
	return toJSON(map[string]any{"document": document, "selector": selector, "replaced": replaced})
}
