package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autobuilder/internal/logging"
	"autobuilder/internal/watch"
)

// watchCmd merges fragments dropped into an inbox directory
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Merge *.xml fragments dropped into an inbox directory",
	Long: `Watches the inbox (watch.inbox) and merges each *.xml file written there
into the target document (watch.target, default orm.path) using the entity
options. Merged files move to inbox/done, rejected ones to inbox/failed with
a .err file describing the failure.

Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchInbox  string
	watchTarget string
)

func init() {
	watchCmd.Flags().StringVar(&watchInbox, "inbox", "", "Inbox directory (default watch.inbox)")
	watchCmd.Flags().StringVar(&watchTarget, "target", "", "Target document (default watch.target or orm.path)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	svc, release, err := openService()
	if err != nil {
		return err
	}
	defer release()

	wcfg := watch.Config{
		Inbox:    firstNonEmpty(watchInbox, cfg.Watch.Inbox),
		Target:   firstNonEmpty(watchTarget, cfg.Watch.Target, cfg.ORM.Path),
		Options:  cfg.EntityOptions(),
		Debounce: cfg.GetDebounce(),
	}
	w, err := watch.New(wcfg, svc, logs.Get(logging.CategoryWatch))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := w.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", headerStyle.Render("watching"), wcfg.Inbox, wcfg.Target)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}
	w.Stop()

	s := w.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "%d received, %s, %s\n", s.Received,
		successStyle.Render(fmt.Sprintf("%d merged", s.Merged)),
		errorStyle.Render(fmt.Sprintf("%d failed", s.Failed)))
	if s.Errors > 0 {
		logger.Warn("watcher reported errors", zap.Int("errors", s.Errors))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
