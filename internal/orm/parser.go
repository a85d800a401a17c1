// Package orm handles ORM model entities: extracting an <entity> from a
// model response and writing it into the application's app.orm.xml.
package orm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"autobuilder/internal/merge"
	"autobuilder/internal/xmlcore"
)

// ErrParse is wrapped by every error Parse returns.
var ErrParse = errors.New("xml parse failed")

const (
	DefaultEntityName = "app.module.Entity"
	DefaultTableName  = "entity_table"
)

// GenerationResult is an entity extracted from generated text.
type GenerationResult struct {
	XML        string `json:"xml"`
	EntityName string `json:"entity_name"`
	TableName  string `json:"table_name"`
}

// Parser extracts entity definitions from raw model output.
type Parser struct {
	core          *xmlcore.Core
	defaultEntity string
	defaultTable  string
	logger        *zap.Logger
}

// NewParser returns a Parser. Empty defaults fall back to
// DefaultEntityName and DefaultTableName.
func NewParser(core *xmlcore.Core, defaultEntity, defaultTable string, logger *zap.Logger) *Parser {
	if core == nil {
		core = xmlcore.ForORM()
	}
	if defaultEntity == "" {
		defaultEntity = DefaultEntityName
	}
	if defaultTable == "" {
		defaultTable = DefaultTableName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{core: core, defaultEntity: defaultEntity, defaultTable: defaultTable, logger: logger}
}

// Parse finds the first <entity> in text, which may be fenced or wrapped in
// other elements, and returns it formatted on its own.
func (p *Parser) Parse(text string) (*GenerationResult, error) {
	entity, err := p.core.ParseFragment(text, "entity")
	if err != nil {
		p.logger.Warn("entity parse failed", zap.Error(err), zap.Int("bytes", len(text)))
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	xml, err := p.core.FormatElement(entity, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return &GenerationResult{
		XML:        xml,
		EntityName: entity.SelectAttrValue("name", p.defaultEntity),
		TableName:  entity.SelectAttrValue("tableName", p.defaultTable),
	}, nil
}

// WriteResult reports what WriteEntity did.
type WriteResult struct {
	EntityName string         `json:"entity_name"`
	Action     xmlcore.Action `json:"action"`
}

// Writer merges entities into one ORM model file.
type Writer struct {
	svc  *merge.Service
	path string
	opts xmlcore.MergeOptions
}

// NewWriter returns a Writer for the model at path. opts are completed with
// the entity defaults: container .//entities, matcher name, target entity.
func NewWriter(svc *merge.Service, path string, opts xmlcore.MergeOptions) *Writer {
	if opts.ParentSelector == "" {
		opts.ParentSelector = xmlcore.DefaultParentSelector
	}
	if opts.Matcher == "" {
		opts.Matcher = "name"
	}
	if opts.TargetTag == "" {
		opts.TargetTag = "entity"
	}
	return &Writer{svc: svc, path: path, opts: opts}
}

// Path returns the model file path.
func (w *Writer) Path() string { return w.path }

// Options returns the completed merge options WriteEntity uses.
func (w *Writer) Options() xmlcore.MergeOptions { return w.opts }

// WriteEntity merges entityXML into the model, replacing an entity with the
// same name or appending a new one.
func (w *Writer) WriteEntity(ctx context.Context, entityXML string) (*WriteResult, error) {
	out, err := w.svc.Merge(ctx, merge.Request{
		Fragment: entityXML,
		Document: w.path,
		Options:  w.opts,
		Source:   "orm",
	})
	if err != nil {
		return nil, err
	}
	return &WriteResult{EntityName: out.Result.Identifier, Action: out.Result.Action}, nil
}
