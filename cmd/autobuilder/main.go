package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autobuilder/internal/config"
	"autobuilder/internal/journal"
	"autobuilder/internal/logging"
	"autobuilder/internal/merge"
	"autobuilder/internal/xmlcore"
)

var (
	// Global flags
	configPath string
	verbose    bool
	noJournal  bool
	timeout    time.Duration

	// Set up by PersistentPreRunE
	cfg    *config.Config
	logs   *logging.Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "autobuilder",
	Short: "Merge generated XML fragments into model documents",
	Long: `autobuilder injects XML fragments, typically produced by a language model,
into existing XML documents such as app.orm.xml.

A fragment is matched against the children of a container element by an
identifying attribute (id, name or key). A match is replaced in place,
anything else is appended. Namespace prefixes the fragment uses are declared
on the document root and the result is written back pretty-printed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noJournal, "no-journal", false, "Do not record merges in the journal")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger.
func setup() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.DebugMode = true
	}
	logs, err = logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	logger = logs.Base()
	logs.Get(logging.CategoryBoot).Debug("configuration loaded",
		zap.String("path", configPath),
		zap.String("orm", cfg.ORM.Path),
		zap.Bool("journal", cfg.Journal.Enabled && !noJournal))
	return nil
}

// ensureSetup lets commands run without PersistentPreRunE, as tests do.
func ensureSetup() error {
	if cfg != nil && logs != nil {
		return nil
	}
	if cfg == nil {
		return setup()
	}
	logs = logging.Nop()
	logger = logs.Base()
	return nil
}

// newCore builds the merge engine from configuration.
func newCore() *xmlcore.Core {
	return xmlcore.New(cfg.Settings(), xmlcore.WithLogger(logs.Get(logging.CategoryMerge)))
}

// openService builds a merge.Service, opening the journal when enabled.
// The returned function releases the journal.
func openService() (*merge.Service, func(), error) {
	if err := ensureSetup(); err != nil {
		return nil, nil, err
	}
	var store *journal.Store
	if cfg.Journal.Enabled && !noJournal {
		var err error
		store, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, nil, err
		}
	}
	release := func() {
		if store == nil {
			return
		}
		if err := store.Close(); err != nil {
			logs.Get(logging.CategoryJournal).Warn("failed to close journal", zap.Error(err))
		}
	}
	return merge.NewService(newCore(), store, logs.Get(logging.CategoryMerge)), release, nil
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}
