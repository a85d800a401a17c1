package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"autobuilder/internal/logging"
	"autobuilder/internal/merge"
	"autobuilder/internal/orm"
	"autobuilder/internal/tools"
	"autobuilder/internal/tools/xmltools"
)

// toolsCmd groups tool registry commands
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List and run the XML tools exposed to agents",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools and their arguments",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsRunCmd = &cobra.Command{
	Use:   "run <tool> [json-args]",
	Short: "Run a tool with a JSON object of arguments",
	Long: `Runs a tool exactly as an agent would. Arguments are a JSON object, given
inline or read from stdin when omitted.

Example:
  autobuilder tools run xml_find_element '{"document":"model/app.orm.xml","selector":".//entity"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runToolsRun,
}

var toolsIntent string

func init() {
	toolsListCmd.Flags().StringVar(&toolsIntent, "intent", "", "Only tools for this intent (e.g. /merge, /find)")
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsRunCmd)
	rootCmd.AddCommand(toolsCmd)
}

// newRegistry registers the XML tools against svc.
func newRegistry(svc *merge.Service) (*tools.Registry, error) {
	reg := tools.NewRegistry(logs.Get(logging.CategoryTools))
	err := xmltools.RegisterAll(reg, xmltools.Deps{
		Service:        svc,
		Entities:       orm.NewParser(svc.Core(), cfg.ORM.DefaultEntity, cfg.ORM.DefaultTable, logs.Get(logging.CategoryParse)),
		ORMPath:        cfg.ORM.Path,
		Defaults:       cfg.MergeOptions(),
		EntityDefaults: cfg.EntityOptions(),
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func runToolsList(cmd *cobra.Command, args []string) error {
	svc, release, err := openService()
	if err != nil {
		return err
	}
	defer release()
	reg, err := newRegistry(svc)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, t := range reg.FilterByIntent(toolsIntent) {
		fmt.Fprintf(w, "%s %s\n  %s\n", headerStyle.Render(t.Name), mutedStyle.Render(string(t.Category)), t.Description)
		names := make([]string, 0, len(t.Schema.Properties))
		for name := range t.Schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			marker := " "
			for _, r := range t.Schema.Required {
				if r == name {
					marker = "*"
				}
			}
			fmt.Fprintf(w, "   %s %-24s %s\n", marker, name, mutedStyle.Render(t.Schema.Properties[name].Type))
		}
	}
	return nil
}

func runToolsRun(cmd *cobra.Command, args []string) error {
	raw := "{}"
	if len(args) > 1 {
		raw = args[1]
	} else if text, err := readFragment(cmd, "-"); err != nil {
		return err
	} else if strings.TrimSpace(text) != "" {
		raw = text
	}
	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(raw), &toolArgs); err != nil {
		return fmt.Errorf("tool arguments must be a JSON object: %w", err)
	}

	svc, release, err := openService()
	if err != nil {
		return err
	}
	defer release()
	reg, err := newRegistry(svc)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	res, err := reg.Execute(ctx, args[0], toolArgs)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Result)
	return nil
}
