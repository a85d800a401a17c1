// Package batch applies a YAML plan of merges. Jobs that target the same
// document run in plan order; different documents are merged in parallel.
package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"autobuilder/internal/xmlcore"
)

// Plan is a list of merge jobs plus the defaults they inherit.
type Plan struct {
	Defaults JobOptions `yaml:"defaults"`
	// FailFast cancels remaining jobs after the first failure.
	FailFast bool  `yaml:"fail_fast"`
	Jobs     []Job `yaml:"jobs"`

	// dir resolves relative paths in jobs.
	dir string
}

// JobOptions mirrors xmlcore.MergeOptions with pointers where an explicit
// false must override a default.
type JobOptions struct {
	ParentSelector       string `yaml:"parent_selector"`
	Matcher              string `yaml:"matcher"`
	TargetTag            string `yaml:"target_tag"`
	Strategy             string `yaml:"strategy"`
	StripChildNamespaces *bool  `yaml:"strip_child_namespaces"`
}

// Job is one merge.
type Job struct {
	Name         string `yaml:"name"`
	Document     string `yaml:"document"`
	Fragment     string `yaml:"fragment"`
	FragmentFile string `yaml:"fragment_file"`
	JobOptions   `yaml:",inline"`
}

// LoadPlan reads a plan file. Relative paths inside it resolve against the
// plan's directory.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, err
	}
	plan.dir = filepath.Dir(path)
	return plan, nil
}

// ParsePlan decodes and validates a plan.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks every job before anything runs.
func (p *Plan) Validate() error {
	if len(p.Jobs) == 0 {
		return errors.New("plan has no jobs")
	}
	var errs []error
	if _, err := xmlcore.ParseStrategy(p.Defaults.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("defaults: %w", err))
	}
	for i, j := range p.Jobs {
		label := j.label(i)
		if j.Document == "" {
			errs = append(errs, fmt.Errorf("%s: document is required", label))
		}
		if (j.Fragment == "") == (j.FragmentFile == "") {
			errs = append(errs, fmt.Errorf("%s: exactly one of fragment and fragment_file is required", label))
		}
		if _, err := xmlcore.ParseStrategy(j.Strategy); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		}
	}
	return errors.Join(errs...)
}

func (j Job) label(i int) string {
	if j.Name != "" {
		return fmt.Sprintf("job %d (%s)", i+1, j.Name)
	}
	return fmt.Sprintf("job %d", i+1)
}

func (p *Plan) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// options merges job settings over plan defaults over base.
func (p *Plan) options(j Job, base xmlcore.MergeOptions) xmlcore.MergeOptions {
	opts := base
	for _, o := range []JobOptions{p.Defaults, j.JobOptions} {
		if o.ParentSelector != "" {
			opts.ParentSelector = o.ParentSelector
		}
		if o.Matcher != "" {
			opts.Matcher = o.Matcher
		}
		if o.TargetTag != "" {
			opts.TargetTag = o.TargetTag
		}
		if o.Strategy != "" {
			opts.Strategy = xmlcore.Strategy(o.Strategy)
		}
		if o.StripChildNamespaces != nil {
			opts.StripChildNamespaces = *o.StripChildNamespaces
		}
	}
	return opts
}

// fragment returns the job's fragment text.
func (p *Plan) fragment(j Job) (string, error) {
	if j.Fragment != "" {
		return j.Fragment, nil
	}
	data, err := os.ReadFile(p.resolve(j.FragmentFile))
	if err != nil {
		return "", fmt.Errorf("failed to read fragment: %w", err)
	}
	return string(data), nil
}
