package xmlcore

import (
	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// prepared is a parsed fragment with its identity resolved.
type prepared struct {
	node         *etree.Element
	attr         string
	identifier   string
	// placeholders are prefixes the parser bound to themselves because the
	// fragment used them without a declaration.
	placeholders map[string]bool
}

// prepare parses fragment and resolves its identifier. Nothing on disk is
// touched.
func (c *Core) prepare(fragment string, opts MergeOptions) (*prepared, error) {
	node, placeholders, err := c.parser.parse(fragment, opts.TargetTag)
	if err != nil {
		return nil, err
	}
	attr, ident, err := Identify(node, opts.Matcher)
	if err != nil {
		return nil, err
	}
	return &prepared{node: node, attr: attr, identifier: ident, placeholders: placeholders}, nil
}

// Identify returns the attribute that identifies el and its value. With an
// empty matcher, id, name and key are tried in that order.
func Identify(el *etree.Element, matcher string) (attr, value string, err error) {
	tried := IdentifierAttributes
	if matcher != "" {
		tried = []string{matcher}
	}
	for _, key := range tried {
		if v := attrValue(el, key); v != "" {
			return key, v, nil
		}
	}
	return "", "", &IdentifierError{Tag: el.FullTag(), Tried: tried}
}

// attrValue matches the full attribute name, so "name" never matches
// "biz:name".
func attrValue(el *etree.Element, key string) string {
	for _, a := range el.Attr {
		if a.FullKey() == key {
			return a.Value
		}
	}
	return ""
}

// matchChild returns the first direct child of container with the same tag
// whose attr equals identifier.
func matchChild(container *etree.Element, tag, attr, identifier string) *etree.Element {
	for _, child := range container.ChildElements() {
		if child.FullTag() != tag {
			continue
		}
		for _, a := range child.Attr {
			if a.FullKey() == attr && a.Value == identifier {
				return child
			}
		}
	}
	return nil
}

// apply merges a prepared fragment into doc.
func (c *Core) apply(doc *etree.Document, p *prepared, opts MergeOptions) (MergeResult, error) {
	result := MergeResult{Identifier: p.identifier, MatchAttribute: p.attr}

	root := doc.Root()
	container, err := FindFirst(root, opts.ParentSelector)
	if err != nil {
		return result, err
	}
	if container == nil {
		return result, &NotFoundError{What: "container", Where: opts.ParentSelector}
	}

	existing := matchChild(container, p.node.FullTag(), p.attr, p.identifier)
	if conflicts := c.adoptBindings(root, container, p); len(conflicts) > 0 && c.settings.StrictNamespaces {
		return result, &NamespaceConflictError{Conflicts: conflicts}
	}

	switch {
	case existing != nil && opts.Strategy != StrategyAlwaysAppend:
		idx := existing.Index()
		container.RemoveChildAt(idx)
		container.InsertChildAt(idx, p.node)
		result.Action = ActionUpdated
	default:
		container.AddChild(p.node)
		result.Action = ActionCreated
	}

	c.logger.Debug("merged element",
		zap.String("tag", p.node.FullTag()),
		zap.String("container", container.FullTag()),
		zap.String("strategy", string(opts.Strategy)),
		zap.Stringer("result", result))
	return result, nil
}

// adoptBindings strips the fragment root's own declarations. A binding the
// container already sees is dropped, an unknown prefix is declared on the
// document root, and a binding that disagrees with the container's stays
// on the fragment. Placeholder bindings defer to whatever the container
// resolves and never conflict.
func (c *Core) adoptBindings(root, container *etree.Element, p *prepared) []Conflict {
	node := p.node
	var conflicts []Conflict
	for _, b := range StripDeclaredNamespaces(node) {
		tok, ok := lookupPrefix(container, b.Prefix)
		switch {
		case !ok:
			declare(root, b)
		case p.placeholders[b.Prefix]:
			// the host's binding applies
		case tok != b.Token:
			declare(node, b)
			conflicts = append(conflicts, Conflict{Prefix: b.Prefix, Kept: tok, Shadowed: b.Token, Element: node.FullTag()})
			c.logger.Warn("fragment rebinds namespace prefix",
				zap.String("prefix", b.Prefix),
				zap.String("document", tok),
				zap.String("fragment", b.Token))
		}
	}
	return conflicts
}
