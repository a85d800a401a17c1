package xmlcore

import (
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

var (
	fenceRe       = regexp.MustCompile("```[A-Za-z0-9_-]*")
	declarationRe = regexp.MustCompile(`^<\?xml\b[^>]*\?>`)
)

const wrapperTag = "fragment-root"

// Parser turns raw, possibly fenced, fragment text into a detached element.
type Parser struct {
	resolver   *Resolver
	autoDetect bool
	logger     *zap.Logger
}

// NewParser returns a parser that declares undeclared allow-listed prefixes
// on a synthetic wrapper when autoDetect is set.
func NewParser(resolver *Resolver, autoDetect bool, logger *zap.Logger) *Parser {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{resolver: resolver, autoDetect: autoDetect, logger: logger}
}

// CleanFragment removes markdown fences, a leading XML declaration and
// surrounding whitespace.
func CleanFragment(raw string) string {
	text := fenceRe.ReplaceAllString(raw, "")
	text = strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	text = declarationRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Parse returns the single top-level element of raw, or with targetTag set,
// the first descendant whose prefixed tag equals targetTag. The element has
// no parent and carries every binding it needs on its own root.
func (p *Parser) Parse(raw, targetTag string) (*etree.Element, error) {
	node, _, err := p.parse(raw, targetTag)
	return node, err
}

// parse is Parse that also reports which declarations on the returned
// element were made up for unbound prefixes rather than written in raw.
func (p *Parser) parse(raw, targetTag string) (*etree.Element, map[string]bool, error) {
	text := CleanFragment(raw)
	if text == "" {
		return nil, nil, parseErrorf(nil, "empty fragment")
	}

	scan, err := scanPrefixes(text)
	if err != nil {
		return nil, nil, parseErrorf(err, "tokenize fragment")
	}

	var synth []Binding
	for _, prefix := range scan.unbound {
		if !p.autoDetect || !p.resolver.IsAllowed(prefix) {
			return nil, nil, parseErrorf(nil, "undeclared namespace prefix %q", prefix)
		}
		synth = append(synth, Binding{Prefix: prefix, Token: prefix})
	}

	wrapped := wrap(text, synth)
	if err := checkWellFormed(strings.NewReader(wrapped)); err != nil {
		return nil, nil, parseErrorf(err, "malformed fragment")
	}

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromString(wrapped); err != nil {
		return nil, nil, parseErrorf(err, "read fragment")
	}
	root := doc.Root()
	if root == nil {
		return nil, nil, parseErrorf(nil, "no element found")
	}

	var node *etree.Element
	if targetTag != "" {
		node = firstDescendant(root, targetTag)
		if node == nil {
			return nil, nil, parseErrorf(nil, "no <%s> element in fragment", targetTag)
		}
	} else {
		children := root.ChildElements()
		if len(children) == 0 {
			return nil, nil, parseErrorf(nil, "no element found")
		}
		if len(children) > 1 {
			return nil, nil, parseErrorf(nil, "fragment has %d top-level elements, want one", len(children))
		}
		node = children[0]
	}

	// Bindings visible from the node's ancestors are lost on detach.
	var inherited []Binding
	var placeholders map[string]bool
	for _, prefix := range freePrefixes(node) {
		tok, ok := lookupPrefix(node.Parent(), prefix)
		if !ok {
			continue
		}
		inherited = append(inherited, Binding{Prefix: prefix, Token: tok})
		if !declaredBetween(node.Parent(), root, prefix) {
			if placeholders == nil {
				placeholders = make(map[string]bool)
			}
			placeholders[prefix] = true
		}
	}
	node.Parent().RemoveChild(node)
	declare(node, inherited...)

	if len(synth) > 0 {
		p.logger.Debug("declared namespaces for fragment",
			zap.String("tag", node.FullTag()),
			zap.Strings("prefixes", scan.unbound))
	}
	return node, placeholders, nil
}

// declaredBetween reports whether prefix is declared on from or an ancestor
// of it below root.
func declaredBetween(from, root *etree.Element, prefix string) bool {
	for e := from; e != nil && e != root; e = e.Parent() {
		if _, ok := declaredToken(e, prefix); ok {
			return true
		}
	}
	return false
}

func wrap(text string, bindings []Binding) string {
	var b strings.Builder
	b.WriteString("<" + wrapperTag)
	for _, bind := range bindings {
		b.WriteString(" xmlns:" + bind.Prefix + `="` + bind.Token + `"`)
	}
	b.WriteString(">")
	b.WriteString(text)
	b.WriteString("</" + wrapperTag + ">")
	return b.String()
}

// checkWellFormed runs the strict decoder over r, which verifies tag nesting
// that the raw tokenizer does not.
func checkWellFormed(r io.Reader) error {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	dec.CharsetReader = charsetReader
	sawElement := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if !sawElement {
				return errors.New("no root element")
			}
			return nil
		}
		if err != nil {
			return err
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
}
