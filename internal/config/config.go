package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"autobuilder/internal/xmlcore"
)

// DefaultPath is where the CLI looks for configuration.
const DefaultPath = "autobuilder.yaml"

// Config holds all autobuilder configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Serialization and parsing defaults for the merge engine
	Engine EngineConfig `yaml:"engine"`

	// Defaults for individual merge calls
	Merge MergeConfig `yaml:"merge"`

	// ORM model file locations
	ORM ORMConfig `yaml:"orm"`

	// Merge history
	Journal JournalConfig `yaml:"journal"`

	// Fragment inbox
	Watch WatchConfig `yaml:"watch"`

	// Batch plans
	Batch BatchConfig `yaml:"batch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig mirrors xmlcore.Settings.
type EngineConfig struct {
	Encoding             string   `yaml:"encoding"`
	PrettyPrint          bool     `yaml:"pretty_print"`
	IndentSpaces         int      `yaml:"indent_spaces"`
	XMLDeclaration       bool     `yaml:"xml_declaration"`
	AutoDetectNamespaces bool     `yaml:"auto_detect_namespaces"`
	Namespaces           []string `yaml:"namespaces"`
	CleanupTags          []string `yaml:"cleanup_tags"`
	AtomicWrite          bool     `yaml:"atomic_write"`
	StrictNamespaces     bool     `yaml:"strict_namespaces"`
}

// MergeConfig holds the defaults applied when a merge call leaves an option
// empty.
type MergeConfig struct {
	ParentSelector       string `yaml:"parent_selector"`
	Matcher              string `yaml:"matcher"`
	Strategy             string `yaml:"strategy"`
	StripChildNamespaces bool   `yaml:"strip_child_namespaces"`
}

// ORMConfig locates the ORM model document.
type ORMConfig struct {
	Path             string `yaml:"path"`
	EntitiesSelector string `yaml:"entities_selector"`
	EntityMatcher    string `yaml:"entity_matcher"`
	DefaultEntity    string `yaml:"default_entity"`
	DefaultTable     string `yaml:"default_table"`
}

// JournalConfig configures the SQLite merge history.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchConfig configures the fragment inbox watcher.
type WatchConfig struct {
	Inbox    string `yaml:"inbox"`
	Target   string `yaml:"target"`
	Debounce string `yaml:"debounce"`
}

// BatchConfig configures batch plan execution.
type BatchConfig struct {
	// Concurrency bounds how many documents are merged at once.
	Concurrency int `yaml:"concurrency"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	settings := xmlcore.DefaultSettings()
	return &Config{
		Name:    "autobuilder",
		Version: "0.3.0",

		Engine: EngineConfig{
			Encoding:             settings.Encoding,
			PrettyPrint:          settings.PrettyPrint,
			IndentSpaces:         settings.IndentSpaces,
			XMLDeclaration:       settings.XMLDeclaration,
			AutoDetectNamespaces: settings.AutoDetectNamespaces,
			Namespaces:           settings.Namespaces,
			CleanupTags:          settings.CleanupTags,
		},

		Merge: MergeConfig{
			ParentSelector:       xmlcore.DefaultParentSelector,
			Strategy:             string(xmlcore.StrategyReplaceOrAppend),
			StripChildNamespaces: true,
		},

		ORM: ORMConfig{
			Path:             "model/app.orm.xml",
			EntitiesSelector: ".//entities",
			EntityMatcher:    "name",
			DefaultEntity:    "app.module.Entity",
			DefaultTable:     "entity_table",
		},

		Journal: JournalConfig{
			Enabled: true,
			Path:    ".autobuilder/journal.db",
		},

		Watch: WatchConfig{
			Inbox:    ".autobuilder/inbox",
			Debounce: "300ms",
		},

		Batch: BatchConfig{
			Concurrency: 4,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults.
// A .env file next to path, or in the working directory, is loaded first so
// its values take part in the environment overrides.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(configPath string) error {
	candidates := []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"}
	for _, p := range candidates {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error loading %s: %w", p, err)
		}
		return nil
	}
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies AUTOBUILDER_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AUTOBUILDER_ENCODING"); v != "" {
		c.Engine.Encoding = v
	}
	if v := os.Getenv("AUTOBUILDER_NAMESPACES"); v != "" {
		c.Engine.Namespaces = splitList(v)
	}
	if v, ok := envBool("AUTOBUILDER_STRICT_NAMESPACES"); ok {
		c.Engine.StrictNamespaces = v
	}
	if v, ok := envBool("AUTOBUILDER_ATOMIC_WRITE"); ok {
		c.Engine.AtomicWrite = v
	}
	if v := os.Getenv("AUTOBUILDER_STRATEGY"); v != "" {
		c.Merge.Strategy = v
	}

	if v := os.Getenv("AUTOBUILDER_ORM_PATH"); v != "" {
		c.ORM.Path = v
	}

	if v := os.Getenv("AUTOBUILDER_JOURNAL"); v != "" {
		c.Journal.Path = v
	}
	if v, ok := envBool("AUTOBUILDER_JOURNAL_ENABLED"); ok {
		c.Journal.Enabled = v
	}

	if v := os.Getenv("AUTOBUILDER_INBOX"); v != "" {
		c.Watch.Inbox = v
	}
	if v := os.Getenv("AUTOBUILDER_BATCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Batch.Concurrency = n
		}
	}

	if v := os.Getenv("AUTOBUILDER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v, ok := envBool("AUTOBUILDER_DEBUG"); ok {
		c.Logging.DebugMode = v
	}
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetDebounce returns the watcher debounce interval.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d < 0 {
		return 300 * time.Millisecond
	}
	return d
}

// Settings converts the engine section into xmlcore settings.
func (c *Config) Settings() xmlcore.Settings {
	s := xmlcore.DefaultSettings()
	s.Encoding = c.Engine.Encoding
	s.PrettyPrint = c.Engine.PrettyPrint
	s.IndentSpaces = c.Engine.IndentSpaces
	s.XMLDeclaration = c.Engine.XMLDeclaration
	s.AutoDetectNamespaces = c.Engine.AutoDetectNamespaces
	s.Namespaces = c.Engine.Namespaces
	s.CleanupTags = c.Engine.CleanupTags
	s.AtomicWrite = c.Engine.AtomicWrite
	s.StrictNamespaces = c.Engine.StrictNamespaces
	return s
}

// MergeOptions returns the configured merge defaults.
func (c *Config) MergeOptions() xmlcore.MergeOptions {
	return xmlcore.MergeOptions{
		ParentSelector:       c.Merge.ParentSelector,
		Matcher:              c.Merge.Matcher,
		Strategy:             xmlcore.Strategy(c.Merge.Strategy),
		StripChildNamespaces: c.Merge.StripChildNamespaces,
	}
}

// EntityOptions returns merge options for ORM entities.
func (c *Config) EntityOptions() xmlcore.MergeOptions {
	opts := c.MergeOptions()
	opts.ParentSelector = c.ORM.EntitiesSelector
	opts.Matcher = c.ORM.EntityMatcher
	opts.TargetTag = "entity"
	return opts
}

// Validate checks the configuration for values the engine would reject.
func (c *Config) Validate() error {
	if err := c.Settings().Validate(); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	if _, err := xmlcore.ParseStrategy(c.Merge.Strategy); err != nil {
		return fmt.Errorf("invalid merge config: %w", err)
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch concurrency must be at least 1, got %d", c.Batch.Concurrency)
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal enabled but no path configured")
	}
	if !ValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, LogLevels)
	}
	return nil
}
