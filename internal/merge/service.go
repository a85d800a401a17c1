// Package merge runs xmlcore merges on behalf of the CLI, batch plans, the
// inbox watcher and agent tools. It adds what the engine leaves to callers:
// per-document serialization, dry runs and the merge journal.
package merge

import (
	"context"

	"go.uber.org/zap"

	"autobuilder/internal/journal"
	"autobuilder/internal/xmlcore"
)

// Request is one merge to perform.
type Request struct {
	Fragment string
	Document string
	Options  xmlcore.MergeOptions
	// DryRun computes the result without writing the document.
	DryRun bool
	// Source is recorded in the journal.
	Source string
}

// Outcome carries the merge result together with the document bytes.
type Outcome struct {
	Result  xmlcore.MergeResult
	Preview *xmlcore.Preview
	Written bool
}

// Service wraps a Core with locking and journaling.
type Service struct {
	core    *xmlcore.Core
	journal *journal.Store
	locks   *PathLocks
	logger  *zap.Logger
}

// NewService builds a Service. store may be nil to disable journaling.
func NewService(core *xmlcore.Core, store *journal.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{core: core, journal: store, locks: NewPathLocks(), logger: logger}
}

// Core returns the underlying engine.
func (s *Service) Core() *xmlcore.Core { return s.core }

// Journal returns the journal store, or nil.
func (s *Service) Journal() *journal.Store { return s.journal }

// Merge performs req while holding the document's lock.
func (s *Service) Merge(ctx context.Context, req Request) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(req.Document)
	defer unlock()

	preview, err := s.core.Preview(req.Fragment, req.Document, req.Options)
	if err != nil {
		s.record(ctx, req, nil, err)
		return nil, err
	}
	out := &Outcome{Result: preview.Result, Preview: preview}
	if req.DryRun {
		s.record(ctx, req, out, nil)
		return out, nil
	}

	if err := s.core.Commit(preview); err != nil {
		s.record(ctx, req, out, err)
		return nil, err
	}
	out.Written = true
	s.record(ctx, req, out, nil)
	s.logger.Info("merged fragment",
		zap.String("document", req.Document),
		zap.String("identifier", preview.Result.Identifier),
		zap.String("action", string(preview.Result.Action)),
		zap.String("source", req.Source))
	return out, nil
}

func (s *Service) record(ctx context.Context, req Request, out *Outcome, mergeErr error) {
	if s.journal == nil {
		return
	}
	e := &journal.Entry{
		Document: req.Document,
		Strategy: string(req.Options.Strategy),
		Source:   req.Source,
		Status:   journal.StatusApplied,
	}
	if e.Strategy == "" {
		e.Strategy = string(xmlcore.StrategyReplaceOrAppend)
	}
	if out != nil {
		e.Identifier = out.Result.Identifier
		e.MatchAttribute = out.Result.MatchAttribute
		e.Action = string(out.Result.Action)
		e.BeforeSHA = journal.Digest(out.Preview.Before)
		e.AfterSHA = journal.Digest(out.Preview.After)
		e.Bytes = len(out.Preview.After)
		if req.DryRun {
			e.Status = journal.StatusPreview
		}
	}
	if mergeErr != nil {
		e.Status = journal.StatusFailed
		e.Error = mergeErr.Error()
	}
	if err := s.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("failed to journal merge", zap.String("document", req.Document), zap.Error(err))
	}
}

// Replace swaps the first element selector matches in document for
// fragment while holding the document's lock. It reports whether anything
// matched.
func (s *Service) Replace(document, selector, fragment string) (bool, error) {
	unlock := s.locks.Lock(document)
	defer unlock()

	replaced, err := s.core.ReplaceElement(document, selector, fragment)
	if err != nil {
		return false, err
	}
	s.logger.Info("replaced element",
		zap.String("document", document),
		zap.String("selector", selector),
		zap.Bool("replaced", replaced))
	return replaced, nil
}
