// Package logging builds categorized zap loggers from config.LoggingConfig.
//
// Every subsystem asks for a logger by Category. Categories switched off in
// the configuration get a no-op logger, so call sites never check.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"autobuilder/internal/config"
)

// Category identifies a subsystem for per-category toggles.
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup, config loading
	CategoryParse   Category = "parse"   // Fragment parsing
	CategoryMerge   Category = "merge"   // Merge engine
	CategoryFormat  Category = "format"  // Hoisting and serialization
	CategoryWatch   Category = "watch"   // Inbox watcher
	CategoryBatch   Category = "batch"   // Batch plans
	CategoryJournal Category = "journal" // Merge history store
	CategoryTools   Category = "tools"   // Tool registry
)

// Categories lists every known category.
func Categories() []Category {
	return []Category{
		CategoryBoot, CategoryParse, CategoryMerge, CategoryFormat,
		CategoryWatch, CategoryBatch, CategoryJournal, CategoryTools,
	}
}

// Logger hands out one named zap logger per category.
type Logger struct {
	base *zap.Logger
	cfg  config.LoggingConfig

	mu    sync.Mutex
	named map[Category]*zap.Logger
}

// New builds a Logger. An empty File logs to stderr.
func New(cfg config.LoggingConfig) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.EffectiveLevel())
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Sampling = nil
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch cfg.Format {
	case "", "console", "text":
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		zcfg.Encoding = "json"
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: json, console)", cfg.Format)
	}
	if cfg.File != "" {
		zcfg.OutputPaths = []string{cfg.File}
	} else {
		zcfg.OutputPaths = []string{"stderr"}
	}

	base, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return Wrap(base, cfg), nil
}

// Wrap uses an existing zap logger as the base, which lets tests and the
// CLI share one core.
func Wrap(base *zap.Logger, cfg config.LoggingConfig) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{base: base, cfg: cfg, named: make(map[Category]*zap.Logger)}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger { return Wrap(zap.NewNop(), config.LoggingConfig{}) }

// Get returns the logger for category.
func (l *Logger) Get(category Category) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if lg, ok := l.named[category]; ok {
		return lg
	}
	lg := zap.NewNop()
	if l.cfg.IsCategoryEnabled(string(category)) {
		lg = l.base.Named(string(category))
	}
	l.named[category] = lg
	return lg
}

// Base returns the uncategorized logger.
func (l *Logger) Base() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.base
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.base.Sync()
}
