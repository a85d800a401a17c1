package xmlcore

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

var xmlnsAttrRe = regexp.MustCompile(`\s+xmlns:([A-Za-z_][\w.\-]*)="([^"]*)"`)

// Formatter normalizes namespaces and serializes documents.
type Formatter struct {
	settings Settings
	cleanup  *regexp.Regexp
	logger   *zap.Logger
}

// NewFormatter builds a formatter for the given settings.
func NewFormatter(settings Settings, logger *zap.Logger) *Formatter {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Formatter{settings: settings.clone(), logger: logger}
	if len(f.settings.CleanupTags) > 0 {
		names := make([]string, len(f.settings.CleanupTags))
		for i, t := range f.settings.CleanupTags {
			names[i] = regexp.QuoteMeta(t)
		}
		f.cleanup = regexp.MustCompile(`<((?:[A-Za-z_][\w.\-]*:)?(?:` + strings.Join(names, "|") + `))(\s[^<>]*?)?(/?)>`)
	}
	return f
}

// Serialize returns the encoded bytes of doc. With stripChildNamespaces set,
// namespaces are first hoisted to the root in place and the text-level
// cleanup pass runs on the output; otherwise declarations stay where they
// are.
func (f *Formatter) Serialize(doc *etree.Document, stripChildNamespaces bool) ([]byte, error) {
	root := doc.Root()
	if root == nil {
		return nil, parseErrorf(nil, "document has no root element")
	}
	if stripChildNamespaces {
		if err := f.hoist(root); err != nil {
			return nil, err
		}
	}

	f.setDeclaration(doc)
	if f.settings.PrettyPrint {
		doc.Indent(f.settings.IndentSpaces)
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}
	out := buf.Bytes()
	if stripChildNamespaces {
		out = f.stripRedundant(out)
	}
	if !bytes.HasSuffix(out, []byte("\n")) {
		out = append(out, '\n')
	}
	return encodeOutput(out, f.settings.Encoding)
}

// FormatElement serializes a copy of el as a standalone fragment, without
// an XML declaration. el is not modified. stripChildNamespaces works as in
// Serialize.
func (f *Formatter) FormatElement(el *etree.Element, stripChildNamespaces bool) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	if stripChildNamespaces {
		if err := f.hoist(doc.Root()); err != nil {
			return "", err
		}
	}
	if f.settings.PrettyPrint {
		doc.Indent(f.settings.IndentSpaces)
	}
	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serialize element: %w", err)
	}
	if stripChildNamespaces {
		out = string(f.stripRedundant([]byte(out)))
	}
	return strings.TrimRight(out, "\n"), nil
}

func (f *Formatter) hoist(root *etree.Element) error {
	conflicts := Hoist(root)
	for _, c := range conflicts {
		f.logger.Warn("namespace prefix collision", zap.String("conflict", c.String()))
	}
	if len(conflicts) > 0 && f.settings.StrictNamespaces {
		return &NamespaceConflictError{Conflicts: conflicts}
	}
	return nil
}

func (f *Formatter) setDeclaration(doc *etree.Document) {
	for i := len(doc.Child) - 1; i >= 0; i-- {
		if pi, ok := doc.Child[i].(*etree.ProcInst); ok && pi.Target == "xml" {
			doc.RemoveChildAt(i)
		}
	}
	if !f.settings.XMLDeclaration {
		return
	}
	enc := f.settings.Encoding
	if enc == "" {
		enc = "UTF-8"
	}
	doc.InsertChildAt(0, etree.NewProcInst("xml", fmt.Sprintf(`version="1.0" encoding="%s"`, enc)))
}

// stripRedundant removes xmlns:p="v" from cleanup tags when the document
// binds p to v and never to anything else, so no declaration it removes can
// be shadowing another.
func (f *Formatter) stripRedundant(out []byte) []byte {
	if f.cleanup == nil {
		return out
	}
	tokens := make(map[string]string)
	ambiguous := make(map[string]bool)
	for _, m := range xmlnsAttrRe.FindAllSubmatch(out, -1) {
		p, v := string(m[1]), string(m[2])
		if prev, ok := tokens[p]; ok && prev != v {
			ambiguous[p] = true
		}
		tokens[p] = v
	}

	first := true
	return f.cleanup.ReplaceAllFunc(out, func(tag []byte) []byte {
		// The first match may be the root element itself.
		if first {
			first = false
			if isRootTag(out, tag) {
				return tag
			}
		}
		return xmlnsAttrRe.ReplaceAllFunc(tag, func(attr []byte) []byte {
			m := xmlnsAttrRe.FindSubmatch(attr)
			if ambiguous[string(m[1])] {
				return attr
			}
			return nil
		})
	})
}

// isRootTag reports whether tag is the first start tag in out.
func isRootTag(out, tag []byte) bool {
	for i := 0; i < len(out); {
		j := bytes.IndexByte(out[i:], '<')
		if j < 0 {
			return false
		}
		i += j
		if i+1 < len(out) && (out[i+1] == '?' || out[i+1] == '!') {
			i++
			continue
		}
		return bytes.HasPrefix(out[i:], tag)
	}
	return false
}
