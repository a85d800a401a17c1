package xmlcore

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/beevik/etree"
)

// DefaultNamespaces returns the prefixes that fragments may use without
// declaring them. A fresh slice is returned on every call.
func DefaultNamespaces() []string {
	return []string{"biz", "ext", "orm", "i18n-en", "ui", "x", "xpl", "xs"}
}

// Binding is one prefix to token declaration. Tokens are compared as opaque
// strings; they are never resolved as URIs.
type Binding struct {
	Prefix string
	Token  string
}

func (b Binding) String() string { return fmt.Sprintf("xmlns:%s=%q", b.Prefix, b.Token) }

// Conflict records a prefix bound to more than one token in one tree.
type Conflict struct {
	Prefix   string
	Kept     string
	Shadowed string
	// Element is the full tag of the element carrying the shadowed binding.
	Element string
}

func (c Conflict) String() string {
	return fmt.Sprintf("prefix %q bound to %q on <%s>, root keeps %q", c.Prefix, c.Shadowed, c.Element, c.Kept)
}

// Resolver answers which allow-listed prefixes a fragment relies on.
type Resolver struct {
	allowed []string
}

// NewResolver builds a resolver over an explicit allow-list. A nil list
// means DefaultNamespaces.
func NewResolver(allowed []string) *Resolver {
	if allowed == nil {
		allowed = DefaultNamespaces()
	}
	return &Resolver{allowed: slices.Clone(allowed)}
}

// Allowed returns a copy of the allow-list.
func (r *Resolver) Allowed() []string { return slices.Clone(r.allowed) }

// IsAllowed reports whether prefix is on the allow-list.
func (r *Resolver) IsAllowed(prefix string) bool { return slices.Contains(r.allowed, prefix) }

// PrefixesInUse returns the allow-listed prefixes used in element or
// attribute names of raw, in allow-list order. Text that cannot be tokenized
// falls back to a substring scan, which may over-report prefixes that only
// appear inside values or character data.
func (r *Resolver) PrefixesInUse(raw string) []string {
	scan, err := scanPrefixes(raw)
	if err != nil {
		return r.substringScan(raw)
	}
	var out []string
	for _, p := range r.allowed {
		if slices.Contains(scan.used, p) {
			out = append(out, p)
		}
	}
	return out
}

func (r *Resolver) substringScan(raw string) []string {
	var out []string
	for _, p := range r.allowed {
		needle := p + ":"
		if strings.Contains(raw, "<"+needle) || strings.Contains(raw, " "+needle) || strings.Contains(raw, "\t"+needle) || strings.Contains(raw, "\n"+needle) {
			out = append(out, p)
		}
	}
	return out
}

// StripDeclaredNamespaces removes the prefixed namespace declarations on el
// itself and returns them in document order. Default namespace declarations
// are left alone.
func StripDeclaredNamespaces(el *etree.Element) []Binding {
	removed := declaredBindings(el)
	if len(removed) == 0 {
		return nil
	}
	kept := el.Attr[:0]
	for _, a := range el.Attr {
		if a.Space != "xmlns" {
			kept = append(kept, a)
		}
	}
	el.Attr = kept
	return removed
}

// prefixScan is the result of tokenizing raw text.
type prefixScan struct {
	// used lists every prefix in an element or attribute name, first seen first.
	used []string
	// unbound lists prefixes used somewhere without a declaration in scope.
	unbound []string
}

// scanPrefixes walks the raw token stream tracking declaration scope, so
// prefixes are only counted when they appear in names.
func scanPrefixes(raw string) (prefixScan, error) {
	var scan prefixScan
	dec := xml.NewDecoder(strings.NewReader(raw))
	dec.Strict = true
	dec.CharsetReader = charsetReader

	var scopes [][]string
	inScope := func(p string) bool {
		for i := len(scopes) - 1; i >= 0; i-- {
			if slices.Contains(scopes[i], p) {
				return true
			}
		}
		return false
	}
	note := func(p string) {
		if p == "" || p == "xmlns" || p == "xml" {
			return
		}
		if !slices.Contains(scan.used, p) {
			scan.used = append(scan.used, p)
		}
		if !inScope(p) && !slices.Contains(scan.unbound, p) {
			scan.unbound = append(scan.unbound, p)
		}
	}

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			return scan, nil
		}
		if err != nil {
			return scan, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var declared []string
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" {
					declared = append(declared, a.Name.Local)
				}
			}
			scopes = append(scopes, declared)
			note(t.Name.Space)
			for _, a := range t.Attr {
				if a.Name.Space != "xmlns" {
					note(a.Name.Space)
				}
			}
		case xml.EndElement:
			if len(scopes) > 0 {
				scopes = scopes[:len(scopes)-1]
			}
		}
	}
}

// declaredBindings returns the prefixed declarations carried by el.
func declaredBindings(el *etree.Element) []Binding {
	var out []Binding
	for _, a := range el.Attr {
		if a.Space == "xmlns" && a.Key != "" {
			out = append(out, Binding{Prefix: a.Key, Token: a.Value})
		}
	}
	return out
}

// declaredToken returns the token el itself binds prefix to.
func declaredToken(el *etree.Element, prefix string) (string, bool) {
	for _, a := range el.Attr {
		if a.Space == "xmlns" && a.Key == prefix {
			return a.Value, true
		}
	}
	return "", false
}

// lookupPrefix finds the nearest binding for prefix, starting at el.
func lookupPrefix(el *etree.Element, prefix string) (string, bool) {
	for e := el; e != nil; e = e.Parent() {
		if tok, ok := declaredToken(e, prefix); ok {
			return tok, true
		}
	}
	return "", false
}

// declare adds bindings to el directly after its existing declarations.
func declare(el *etree.Element, bindings ...Binding) {
	if len(bindings) == 0 {
		return
	}
	at := 0
	for i, a := range el.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			at = i + 1
		}
	}
	n := len(el.Attr)
	for _, b := range bindings {
		el.CreateAttr("xmlns:"+b.Prefix, b.Token)
	}
	added := slices.Clone(el.Attr[n:])
	rest := slices.Clone(el.Attr[at:n])
	el.Attr = append(append(el.Attr[:at], added...), rest...)
}

func removeDeclaration(el *etree.Element, prefix string) {
	for i, a := range el.Attr {
		if a.Space == "xmlns" && a.Key == prefix {
			el.Attr = slices.Delete(el.Attr, i, i+1)
			return
		}
	}
}

// usedPrefixes returns the prefixes of el's own tag and attribute names.
func usedPrefixes(el *etree.Element) []string {
	var out []string
	add := func(p string) {
		if p != "" && p != "xmlns" && p != "xml" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	add(el.Space)
	for _, a := range el.Attr {
		add(a.Space)
	}
	return out
}

// freePrefixes lists prefixes used in the subtree under el that no element
// inside the subtree binds in scope of the use.
func freePrefixes(el *etree.Element) []string {
	var free []string
	var walk func(e *etree.Element, scope []string)
	walk = func(e *etree.Element, scope []string) {
		for _, b := range declaredBindings(e) {
			scope = append(scope, b.Prefix)
		}
		for _, p := range usedPrefixes(e) {
			if !slices.Contains(scope, p) && !slices.Contains(free, p) {
				free = append(free, p)
			}
		}
		for _, c := range e.ChildElements() {
			walk(c, slices.Clip(scope))
		}
	}
	walk(el, nil)
	return free
}
