// Package xmlcore merges XML element fragments into existing documents.
//
// A fragment is parsed leniently (markdown fences are stripped and
// allow-listed namespace prefixes need no declaration), identified by its
// id, name or key attribute, and upserted into a container selected in the
// target document. The document is then written back, by default with every
// namespace binding hoisted to its root element.
//
// A Core does no locking. Callers that merge into the same file from
// several goroutines must serialize those calls themselves.
package xmlcore

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// Core is the merge engine configured with one set of Settings.
type Core struct {
	settings  Settings
	resolver  *Resolver
	parser    *Parser
	formatter *Formatter
	logger    *zap.Logger
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Core) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Core. Settings are copied.
func New(settings Settings, opts ...Option) *Core {
	c := &Core{settings: settings.clone(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.resolver = NewResolver(c.settings.Namespaces)
	c.parser = NewParser(c.resolver, c.settings.AutoDetectNamespaces, c.logger.Named("parse"))
	c.formatter = NewFormatter(c.settings, c.logger.Named("format"))
	return c
}

// ForORM returns a Core with the defaults used for ORM model files.
func ForORM(opts ...Option) *Core {
	return New(DefaultSettings(), opts...)
}

// Settings returns a copy of the settings.
func (c *Core) Settings() Settings { return c.settings.clone() }

// Resolver exposes the namespace allow-list in use.
func (c *Core) Resolver() *Resolver { return c.resolver }

// Parser exposes the fragment parser.
func (c *Core) Parser() *Parser { return c.parser }

// Formatter exposes the serializer.
func (c *Core) Formatter() *Formatter { return c.formatter }

// MergeElement upserts fragment into the document at path and writes the
// document back. The file is left untouched when any step before the write
// fails.
func (c *Core) MergeElement(fragment, path string, opts MergeOptions) (MergeResult, error) {
	preview, err := c.Preview(fragment, path, opts)
	if err != nil {
		return MergeResult{}, err
	}
	if err := c.writeFile(path, preview.After); err != nil {
		return preview.Result, err
	}
	c.logger.Info("document updated",
		zap.String("path", path),
		zap.String("identifier", preview.Result.Identifier),
		zap.String("action", string(preview.Result.Action)))
	return preview.Result, nil
}

// MergeEntity merges an entity fragment into the .//entities container,
// matching on the name attribute.
func (c *Core) MergeEntity(fragment, path string) (MergeResult, error) {
	opts := DefaultMergeOptions()
	opts.Matcher = "name"
	return c.MergeElement(fragment, path, opts)
}

// Preview holds the document bytes before and after a merge that has not
// been written.
type Preview struct {
	Path   string
	Result MergeResult
	Before []byte
	After  []byte
}

// Changed reports whether writing the preview would modify the file.
func (p *Preview) Changed() bool { return !bytes.Equal(p.Before, p.After) }

// Preview performs a merge in memory and returns the serialized result
// without writing it.
func (c *Core) Preview(fragment, path string, opts MergeOptions) (*Preview, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{What: "document", Where: path}
		}
		return nil, &IOError{Op: "stat", Path: path, Err: err}
	}

	p, err := c.prepare(fragment, opts)
	if err != nil {
		c.logger.Debug("fragment rejected", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	before, err := c.readFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := c.parseDocument(before, path)
	if err != nil {
		return nil, err
	}
	result, err := c.apply(doc, p, opts)
	if err != nil {
		return nil, err
	}
	after, err := c.formatter.Serialize(doc, opts.StripChildNamespaces)
	if err != nil {
		return nil, err
	}
	return &Preview{Path: path, Result: result, Before: before, After: after}, nil
}

// Commit writes a preview's result to its document.
func (c *Core) Commit(p *Preview) error {
	return c.writeFile(p.Path, p.After)
}

// ParseFile loads and parses the document at path. Allow-listed prefixes
// the document uses without declaring are declared on its root.
func (c *Core) ParseFile(path string) (*etree.Document, error) {
	data, err := c.readFile(path)
	if err != nil {
		return nil, err
	}
	return c.parseDocument(data, path)
}

// ParseFragment parses a raw fragment as MergeElement would.
func (c *Core) ParseFragment(fragment, targetTag string) (*etree.Element, error) {
	return c.parser.Parse(fragment, targetTag)
}

// FindElement returns the first element selector selects in the document
// at path.
func (c *Core) FindElement(path, selector string) (*etree.Element, error) {
	doc, err := c.ParseFile(path)
	if err != nil {
		return nil, err
	}
	el, err := FindFirst(doc.Root(), selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, &NotFoundError{What: "element", Where: selector}
	}
	return el, nil
}

// ReplaceElement replaces the first element selector selects with the
// parsed fragment and writes the document. It reports false, without
// writing, when nothing matched.
func (c *Core) ReplaceElement(path, selector, fragment string) (bool, error) {
	node, placeholders, err := c.parser.parse(fragment, "")
	if err != nil {
		return false, err
	}
	doc, err := c.ParseFile(path)
	if err != nil {
		return false, err
	}
	old, err := FindFirst(doc.Root(), selector)
	if err != nil {
		return false, err
	}
	if old == nil {
		return false, nil
	}
	if parent := old.Parent(); parent != nil {
		idx := old.Index()
		parent.RemoveChildAt(idx)
		parent.InsertChildAt(idx, node)
		for prefix := range placeholders {
			if _, ok := lookupPrefix(parent, prefix); ok {
				removeDeclaration(node, prefix)
			}
		}
	} else {
		doc.SetRoot(node)
	}
	out, err := c.formatter.Serialize(doc, DefaultMergeOptions().StripChildNamespaces)
	if err != nil {
		return false, err
	}
	return true, c.writeFile(path, out)
}

// FormatElement serializes el on its own, hoisting namespaces to its root
// when stripChildNamespaces is set. el is not modified.
func (c *Core) FormatElement(el *etree.Element, stripChildNamespaces bool) (string, error) {
	return c.formatter.FormatElement(el, stripChildNamespaces)
}

// Prettify re-indents an XML string. Input that does not parse is returned
// unchanged.
func (c *Core) Prettify(text string) string {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := checkWellFormed(bytes.NewReader([]byte(text))); err != nil {
		return text
	}
	if err := doc.ReadFromString(text); err != nil || doc.Root() == nil {
		return text
	}
	indent := c.settings.IndentSpaces
	if indent == 0 {
		indent = 2
	}
	doc.Indent(indent)
	out, err := doc.WriteToString()
	if err != nil {
		return text
	}
	return out
}

func (c *Core) parseDocument(data []byte, path string) (*etree.Document, error) {
	if err := checkWellFormed(bytes.NewReader(data)); err != nil {
		return nil, parseErrorf(err, "malformed document %s", path)
	}
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, parseErrorf(err, "read document %s", path)
	}
	if doc.Root() == nil {
		return nil, parseErrorf(nil, "document %s has no root element", path)
	}
	added, unknown := RepairRootDeclarations(doc.Root(), c.resolver)
	if len(added) > 0 {
		c.logger.Debug("declared missing namespaces on document root",
			zap.String("path", path), zap.Int("count", len(added)))
	}
	if len(unknown) > 0 {
		c.logger.Warn("document uses undeclared namespace prefixes",
			zap.String("path", path), zap.Strings("prefixes", unknown))
	}
	return doc, nil
}

func (c *Core) readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{What: "document", Where: path}
		}
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// writeFile replaces the whole file, keeping its permission bits.
func (c *Core) writeFile(path string, data []byte) error {
	mode := c.settings.FileMode
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if !c.settings.AtomicWrite {
		if err := os.WriteFile(path, data, mode); err != nil {
			return &IOError{Op: "write", Path: path, Err: err}
		}
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &IOError{Op: "create temp", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return &IOError{Op: "chmod", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
