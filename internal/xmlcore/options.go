package xmlcore

import "fmt"

// Strategy selects how a fragment is merged into its container.
type Strategy string

const (
	// StrategyReplaceOrAppend replaces the first matching child in place, or
	// appends the fragment when nothing matches.
	StrategyReplaceOrAppend Strategy = "replace_or_append"
	// StrategyAlwaysAppend appends unconditionally, even when a match exists.
	StrategyAlwaysAppend Strategy = "always_append"
	// StrategyForceReplace behaves exactly like StrategyReplaceOrAppend. It is
	// kept as its own value so callers can record intent.
	StrategyForceReplace Strategy = "force_replace"
)

// Strategies lists every accepted strategy in a stable order.
func Strategies() []Strategy {
	return []Strategy{StrategyReplaceOrAppend, StrategyAlwaysAppend, StrategyForceReplace}
}

// ParseStrategy converts a user supplied name into a Strategy. An empty name
// yields the default.
func ParseStrategy(name string) (Strategy, error) {
	if name == "" {
		return StrategyReplaceOrAppend, nil
	}
	for _, s := range Strategies() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown merge strategy %q", name)
}

// Action reports what a merge did to the document.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// DefaultParentSelector is used when MergeOptions leaves the selector empty.
const DefaultParentSelector = ".//entities"

// IdentifierAttributes are tried in order when no matcher is configured.
var IdentifierAttributes = []string{"id", "name", "key"}

// MergeOptions controls a single merge call.
type MergeOptions struct {
	// ParentSelector locates the container element. ".//tag" and "//tag"
	// search depth first; anything else is handed to the etree path engine.
	ParentSelector string `yaml:"parent_selector" json:"parent_selector"`

	// Matcher names the identifying attribute. Empty means try id, name
	// and key in that order.
	Matcher string `yaml:"matcher" json:"matcher,omitempty"`

	// TargetTag narrows the fragment to its first descendant with this tag.
	TargetTag string `yaml:"target_tag" json:"target_tag,omitempty"`

	Strategy Strategy `yaml:"strategy" json:"strategy"`

	// StripChildNamespaces hoists prefix declarations to the document root
	// and then runs the text-level cleanup pass. When false, declarations
	// are written where they occur.
	StripChildNamespaces bool `yaml:"strip_child_namespaces" json:"strip_child_namespaces"`
}

// DefaultMergeOptions returns the options used by MergeEntity.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{
		ParentSelector:       DefaultParentSelector,
		Strategy:             StrategyReplaceOrAppend,
		StripChildNamespaces: true,
	}
}

// normalized fills in defaults without mutating the caller's value.
func (o MergeOptions) normalized() (MergeOptions, error) {
	if o.ParentSelector == "" {
		o.ParentSelector = DefaultParentSelector
	}
	s, err := ParseStrategy(string(o.Strategy))
	if err != nil {
		return o, err
	}
	o.Strategy = s
	return o, nil
}

// MergeResult is the outcome of a successful merge.
type MergeResult struct {
	Identifier string `json:"identifier"`
	Action     Action `json:"action"`
	// MatchAttribute is the attribute the identifier was read from.
	MatchAttribute string `json:"match_attribute"`
}

func (r MergeResult) String() string {
	return fmt.Sprintf("%s %s=%q", r.Action, r.MatchAttribute, r.Identifier)
}
