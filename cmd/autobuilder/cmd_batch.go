package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"autobuilder/internal/batch"
	"autobuilder/internal/logging"
)

// batchCmd runs a YAML plan of merges
var batchCmd = &cobra.Command{
	Use:   "batch <plan.yaml>",
	Short: "Run a YAML plan of merges",
	Long: `Runs every job in a plan. Jobs for the same document run in plan order;
different documents are merged concurrently (batch.concurrency).

Plan format:
  defaults:
    parent_selector: .//entities
  fail_fast: false
  jobs:
    - document: model/app.orm.xml
      fragment_file: out/order.xml
    - name: dict
      document: model/dict.xml
      parent_selector: .//dicts
      matcher: code
      fragment: <dict code="status"/>`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var batchConcurrency int

func init() {
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "j", 0, "Documents merged at once (default from config)")
	batchCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Compute results without writing")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	plan, err := batch.LoadPlan(args[0])
	if err != nil {
		return err
	}
	svc, release, err := openService()
	if err != nil {
		return err
	}
	defer release()

	concurrency := batchConcurrency
	if concurrency <= 0 {
		concurrency = cfg.Batch.Concurrency
	}
	runner := batch.NewRunner(svc, cfg.MergeOptions(), concurrency, dryRun, logs.Get(logging.CategoryBatch))

	ctx, cancel := commandContext(cmd)
	defer cancel()
	results, runErr := runner.Run(ctx, plan)

	w := cmd.OutOrStdout()
	for _, r := range results {
		label := r.Name
		if label == "" {
			label = fmt.Sprintf("job %d", r.Index+1)
		}
		switch {
		case r.Skipped:
			fmt.Fprintf(w, "%s %s %s\n", mutedStyle.Render("skipped"), label, mutedStyle.Render(r.Document))
		case r.Err != nil:
			fmt.Fprintf(w, "%s %s: %v\n", errorStyle.Render("failed "), label, r.Err)
		default:
			fmt.Fprintf(w, "%s %s %s=%q %s\n", actionLabel(r.Result.Action), label,
				r.Result.MatchAttribute, r.Result.Identifier,
				mutedStyle.Render(r.Duration.Round(time.Microsecond).String()))
		}
	}
	s := batch.Summarize(results)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d created, %d updated, %d failed, %d skipped",
		s.Created, s.Updated, s.Failed, s.Skipped)))

	if runErr != nil {
		return runErr
	}
	if s.Failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", s.Failed, len(results))
	}
	return nil
}
