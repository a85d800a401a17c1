package xmltools

import (
	"encoding/json"
	"fmt"

	"autobuilder/internal/diff"
	"autobuilder/internal/merge"
	"autobuilder/internal/orm"
	"autobuilder/internal/tools"
	"autobuilder/internal/xmlcore"
)

// Deps are the services the tools run against.
type Deps struct {
	Service *merge.Service
	// Entities parses generated entity text for xml_parse_entity.
	Entities *orm.Parser
	// ORMPath is the default document for xml_merge_entity.
	ORMPath string
	// Defaults fill merge options a call leaves unset.
	Defaults xmlcore.MergeOptions
	// EntityDefaults are the options for entity merges. Unset fields take
	// the orm.Writer defaults.
	EntityDefaults xmlcore.MergeOptions
	// Diff renders dry-run changes. Nil uses diff.DefaultEngine.
	Diff *diff.Engine
}

type toolset struct {
	Deps
}

// RegisterAll registers every XML tool with the given registry.
func RegisterAll(registry *tools.Registry, deps Deps) error {
	if deps.Service == nil {
		return fmt.Errorf("xmltools: merge service is required")
	}
	if deps.Entities == nil {
		deps.Entities = orm.NewParser(deps.Service.Core(), "", "", nil)
	}
	if deps.Diff == nil {
		deps.Diff = diff.DefaultEngine
	}
	ts := &toolset{Deps: deps}

	allTools := []*tools.Tool{
		// Writes
		ts.mergeElementTool(),
		ts.mergeEntityTool(),
		ts.replaceElementTool(),

		// Reads
		ts.findElementTool(),

		// Formatting
		ts.formatFragmentTool(),
		ts.parseEntityTool(),
		ts.prettifyTool(),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func toJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}
