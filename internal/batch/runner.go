package batch

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"autobuilder/internal/merge"
	"autobuilder/internal/xmlcore"
)

// JobResult is the outcome of one job, in plan order.
type JobResult struct {
	Index    int
	Name     string
	Document string
	Result   xmlcore.MergeResult
	Err      error
	Duration time.Duration
	// Skipped is set when FailFast canceled the job before it ran.
	Skipped bool
}

// Summary counts results by outcome.
type Summary struct {
	Created, Updated, Failed, Skipped int
}

// Summarize tallies results.
func Summarize(results []JobResult) Summary {
	var s Summary
	for _, r := range results {
		switch {
		case r.Skipped:
			s.Skipped++
		case r.Err != nil:
			s.Failed++
		case r.Result.Action == xmlcore.ActionCreated:
			s.Created++
		case r.Result.Action == xmlcore.ActionUpdated:
			s.Updated++
		}
	}
	return s
}

// Runner executes plans through a merge.Service.
type Runner struct {
	svc         *merge.Service
	base        xmlcore.MergeOptions
	concurrency int
	dryRun      bool
	logger      *zap.Logger
}

// NewRunner returns a Runner merging at most concurrency documents at once.
// base supplies options neither the plan nor the job sets.
func NewRunner(svc *merge.Service, base xmlcore.MergeOptions, concurrency int, dryRun bool, logger *zap.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{svc: svc, base: base, concurrency: concurrency, dryRun: dryRun, logger: logger}
}

// Run executes every job and returns one result per job. The error is
// non-nil only when ctx ends or FailFast stops the plan; per-job failures
// are reported in the results.
func (r *Runner) Run(ctx context.Context, plan *Plan) ([]JobResult, error) {
	results := make([]JobResult, len(plan.Jobs))
	groups, order := groupByDocument(plan)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.concurrency)
	for _, key := range order {
		indices := groups[key]
		eg.Go(func() error {
			for n, i := range indices {
				if egCtx.Err() != nil {
					for _, rest := range indices[n:] {
						results[rest] = r.skipped(plan, rest)
					}
					return egCtx.Err()
				}
				results[i] = r.runJob(egCtx, plan, i)
				if results[i].Err != nil && plan.FailFast {
					for _, rest := range indices[n+1:] {
						results[rest] = r.skipped(plan, rest)
					}
					return results[i].Err
				}
			}
			return nil
		})
	}
	err := eg.Wait()

	s := Summarize(results)
	r.logger.Info("batch finished",
		zap.Int("jobs", len(results)),
		zap.Int("created", s.Created),
		zap.Int("updated", s.Updated),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped))
	return results, err
}

func (r *Runner) runJob(ctx context.Context, plan *Plan, i int) (res JobResult) {
	job := plan.Jobs[i]
	doc := plan.resolve(job.Document)
	res = JobResult{Index: i, Name: job.Name, Document: doc}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	fragment, err := plan.fragment(job)
	if err != nil {
		res.Err = err
		return res
	}
	out, err := r.svc.Merge(ctx, merge.Request{
		Fragment: fragment,
		Document: doc,
		Options:  plan.options(job, r.base),
		DryRun:   r.dryRun,
		Source:   "batch",
	})
	if err != nil {
		r.logger.Warn("batch job failed", zap.String("job", job.label(i)), zap.Error(err))
		res.Err = err
		return res
	}
	res.Result = out.Result
	return res
}

func (r *Runner) skipped(plan *Plan, i int) JobResult {
	job := plan.Jobs[i]
	return JobResult{Index: i, Name: job.Name, Document: plan.resolve(job.Document), Skipped: true}
}

// groupByDocument buckets job indices by the canonical path of their
// document, keeping plan order inside each bucket and across first
// appearances. Spellings of one file share a bucket.
func groupByDocument(plan *Plan) (map[string][]int, []string) {
	groups := make(map[string][]int)
	var order []string
	for i, j := range plan.Jobs {
		key := merge.CanonicalPath(plan.resolve(j.Document))
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	return groups, order
}
