package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"autobuilder/internal/logging"
	"autobuilder/internal/orm"
)

// findCmd prints the element a selector matches
var findCmd = &cobra.Command{
	Use:   "find <document> <selector>",
	Short: "Print the first element a selector matches",
	Long: `Selectors of the form .//tag and //tag search depth first. Anything else is
an etree path, for example .//entity[@name='User'].`,
	Args: cobra.ExactArgs(2),
	RunE: runFind,
}

// formatCmd parses a fragment and prints it formatted
var formatCmd = &cobra.Command{
	Use:   "format [fragment-file]",
	Short: "Parse a fragment and print it with namespaces declared on its root",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFormat,
}

// prettifyCmd re-indents a file
var prettifyCmd = &cobra.Command{
	Use:   "prettify [file]",
	Short: "Re-indent XML; input that does not parse is printed unchanged",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPrettify,
}

// parseCmd extracts an entity from generated text
var parseCmd = &cobra.Command{
	Use:   "parse [response-file]",
	Short: "Extract the first <entity> from a model response",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runParse,
}

var (
	formatTargetTag string
	parseJSON       bool
)

func init() {
	formatCmd.Flags().StringVar(&formatTargetTag, "target-tag", "", "Extract this tag from the fragment")
	formatCmd.Flags().StringVarP(&fragmentText, "fragment", "f", "", "Fragment text instead of a file")
	formatCmd.Flags().BoolVar(&noStrip, "no-strip", false, "Keep xmlns declarations on child elements")
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "Print the result as JSON")

	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(prettifyCmd)
	rootCmd.AddCommand(parseCmd)
}

func argOrEmpty(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func runFind(cmd *cobra.Command, args []string) error {
	if err := ensureSetup(); err != nil {
		return err
	}
	core := newCore()
	el, err := core.FindElement(args[0], args[1])
	if err != nil {
		return err
	}
	out, err := core.FormatElement(el, true)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func runFormat(cmd *cobra.Command, args []string) error {
	if err := ensureSetup(); err != nil {
		return err
	}
	fragment, err := readFragment(cmd, argOrEmpty(args))
	if err != nil {
		return err
	}
	core := newCore()
	el, err := core.ParseFragment(fragment, formatTargetTag)
	if err != nil {
		return err
	}
	out, err := core.FormatElement(el, !noStrip)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func runPrettify(cmd *cobra.Command, args []string) error {
	if err := ensureSetup(); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if file := argOrEmpty(args); file == "" || file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), newCore().Prettify(string(data)))
	return nil
}

func runParse(cmd *cobra.Command, args []string) error {
	if err := ensureSetup(); err != nil {
		return err
	}
	text, err := readFragment(cmd, argOrEmpty(args))
	if err != nil {
		return err
	}
	p := orm.NewParser(newCore(), cfg.ORM.DefaultEntity, cfg.ORM.DefaultTable, logs.Get(logging.CategoryParse))
	res, err := p.Parse(text)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if parseJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "%s %s\n%s %s\n\n%s\n",
		headerStyle.Render("entity:"), res.EntityName,
		headerStyle.Render("table: "), res.TableName,
		res.XML)
	return nil
}
