package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"autobuilder/internal/journal"
)

// historyCmd lists journaled merges
var historyCmd = &cobra.Command{
	Use:   "history [document]",
	Short: "Show recent merges from the journal",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var (
	historyLimit int
	historyStats bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Entries to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Show counts by status instead")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := ensureSetup(); err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return fmt.Errorf("journal is disabled (journal.enabled)")
	}
	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	w := cmd.OutOrStdout()

	if historyStats {
		counts, err := store.Count(ctx)
		if err != nil {
			return err
		}
		statuses := make([]string, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Fprintf(w, "%-8s %d\n", s, counts[s])
		}
		return nil
	}

	var entries []journal.Entry
	if len(args) == 1 {
		entries, err = store.ForDocument(ctx, args[0], historyLimit)
	} else {
		entries, err = store.Recent(ctx, historyLimit)
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no merges recorded"))
		return nil
	}
	for _, e := range entries {
		status := successStyle.Render(e.Status)
		switch e.Status {
		case journal.StatusFailed:
			status = errorStyle.Render(e.Status)
		case journal.StatusPreview:
			status = mutedStyle.Render(e.Status)
		}
		line := fmt.Sprintf("%s %-7s %-6s %-8s %s", mutedStyle.Render(e.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			status, e.Source, e.Action, e.Document)
		if e.Identifier != "" {
			line += fmt.Sprintf(" %s=%q", e.MatchAttribute, e.Identifier)
		}
		if e.Error != "" {
			line += " " + errorStyle.Render(strings.SplitN(e.Error, "\n", 2)[0])
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
