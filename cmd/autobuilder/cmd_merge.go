package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"autobuilder/internal/diff"
	"autobuilder/internal/merge"
	"autobuilder/internal/orm"
	"autobuilder/internal/xmlcore"
)

var (
	// Merge flags
	fragmentText   string
	parentSelector string
	matcher        string
	targetTag      string
	strategyName   string
	noStrip        bool
	dryRun         bool
)

// mergeCmd merges one fragment into a document
var mergeCmd = &cobra.Command{
	Use:   "merge <document> [fragment-file]",
	Short: "Merge an XML fragment into a document",
	Long: `Merges a fragment into the container element selected by --parent.

The fragment comes from --fragment, from fragment-file, or from stdin when
neither is given or fragment-file is "-". Markdown code fences around the
fragment are removed.

Examples:
  autobuilder merge model/app.orm.xml order.xml
  autobuilder merge dicts.xml --parent .//dicts --matcher code --fragment '<dict code="x"/>'
  generate | autobuilder merge model/app.orm.xml --dry-run`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMerge,
}

// entityCmd merges an ORM entity into the configured model
var entityCmd = &cobra.Command{
	Use:   "entity [fragment-file]",
	Short: "Merge an <entity> into the ORM model, matching by name",
	Long: `Extracts the first <entity> from the input and merges it into the ORM
model configured under orm.path (override with --document).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEntity,
}

// replaceCmd replaces the first element a selector matches
var replaceCmd = &cobra.Command{
	Use:   "replace <document> <selector> [fragment-file]",
	Short: "Replace the element a selector matches with a fragment",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runReplace,
}

var entityDocument string

func init() {
	for _, c := range []*cobra.Command{mergeCmd, entityCmd, replaceCmd} {
		c.Flags().StringVarP(&fragmentText, "fragment", "f", "", "Fragment text instead of a file")
	}
	for _, c := range []*cobra.Command{mergeCmd, entityCmd} {
		c.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Show the diff without writing")
	}
	mergeCmd.Flags().StringVar(&parentSelector, "parent", "", "Container selector (default from config)")
	mergeCmd.Flags().StringVar(&matcher, "matcher", "", "Identifying attribute (default: id, name, key)")
	mergeCmd.Flags().StringVar(&targetTag, "target-tag", "", "Extract this tag from the fragment")
	mergeCmd.Flags().StringVar(&strategyName, "strategy", "", "replace_or_append, always_append or force_replace")
	mergeCmd.Flags().BoolVar(&noStrip, "no-strip", false, "Keep xmlns declarations on child elements")
	entityCmd.Flags().StringVar(&entityDocument, "document", "", "ORM model path (default orm.path)")

	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(entityCmd)
	rootCmd.AddCommand(replaceCmd)
}

// readFragment returns --fragment, the named file, or stdin.
func readFragment(cmd *cobra.Command, file string) (string, error) {
	if fragmentText != "" {
		return fragmentText, nil
	}
	var (
		data []byte
		err  error
	)
	if file == "" || file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read fragment: %w", err)
	}
	return string(data), nil
}

func mergeOptions() xmlcore.MergeOptions {
	opts := cfg.MergeOptions()
	if parentSelector != "" {
		opts.ParentSelector = parentSelector
	}
	if matcher != "" {
		opts.Matcher = matcher
	}
	if targetTag != "" {
		opts.TargetTag = targetTag
	}
	if strategyName != "" {
		opts.Strategy = xmlcore.Strategy(strategyName)
	}
	if noStrip {
		opts.StripChildNamespaces = false
	}
	return opts
}

func runMerge(cmd *cobra.Command, args []string) error {
	svc, release, err := openService()
	if err != nil {
		return err
	}
	defer release()

	file := ""
	if len(args) > 1 {
		file = args[1]
	}
	fragment, err := readFragment(cmd, file)
	if err != nil {
		return err
	}
	return applyMerge(cmd, svc, args[0], fragment, mergeOptions())
}

func runEntity(cmd *cobra.Command, args []string) error {
	svc, release, err := openService()
	if err != nil {
		return err
	}
	defer release()

	file := ""
	if len(args) > 0 {
		file = args[0]
	}
	fragment, err := readFragment(cmd, file)
	if err != nil {
		return err
	}
	document := entityDocument
	if document == "" {
		document = cfg.ORM.Path
	}
	w := orm.NewWriter(svc, document, cfg.EntityOptions())
	return applyMerge(cmd, svc, w.Path(), fragment, w.Options())
}

func applyMerge(cmd *cobra.Command, svc *merge.Service, document, fragment string, opts xmlcore.MergeOptions) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	out, err := svc.Merge(ctx, merge.Request{
		Fragment: fragment,
		Document: document,
		Options:  opts,
		DryRun:   dryRun,
		Source:   "cli",
	})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if dryRun {
		printDiff(w, diff.Compute(document, out.Preview.Before, out.Preview.After))
	}
	printResult(w, document, out.Result, out.Written)
	return nil
}

func runReplace(cmd *cobra.Command, args []string) error {
	svc, release, err := openService()
	if err != nil {
		return err
	}
	defer release()

	file := ""
	if len(args) > 2 {
		file = args[2]
	}
	fragment, err := readFragment(cmd, file)
	if err != nil {
		return err
	}
	replaced, err := svc.Replace(args[0], args[1], fragment)
	if err != nil {
		return err
	}
	if !replaced {
		return &xmlcore.NotFoundError{What: "element", Where: args[1]}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s in %s\n", successStyle.Render("replaced"), args[1], args[0])
	return nil
}
