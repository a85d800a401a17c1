package xmlcore

import (
	"github.com/beevik/etree"
)

// Hoist moves prefix declarations to root so each binding is declared once.
//
// Bindings are collected root first, then depth first; the first token seen
// for a prefix wins and is declared on root. A descendant declaration is
// removed only when its parent already sees the same binding, so every
// element keeps resolving each prefix to the same token. Declarations that
// disagree with the winner stay where they are and are returned as
// conflicts. Default namespace declarations are not touched.
func Hoist(root *etree.Element) []Conflict {
	if root == nil {
		return nil
	}

	var union []Binding
	seen := make(map[string]string)
	var conflicts []Conflict
	reported := make(map[Binding]bool)
	collect := func(e *etree.Element) {
		for _, b := range declaredBindings(e) {
			kept, ok := seen[b.Prefix]
			switch {
			case !ok:
				seen[b.Prefix] = b.Token
				union = append(union, b)
			case kept != b.Token && !reported[b]:
				reported[b] = true
				conflicts = append(conflicts, Conflict{
					Prefix:   b.Prefix,
					Kept:     kept,
					Shadowed: b.Token,
					Element:  e.FullTag(),
				})
			}
		}
	}
	collect(root)
	walkDescendants(root, func(e *etree.Element) bool {
		collect(e)
		return true
	})

	var missing []Binding
	for _, b := range union {
		if _, ok := declaredToken(root, b.Prefix); !ok {
			missing = append(missing, b)
		}
	}
	declare(root, missing...)

	walkDescendants(root, func(e *etree.Element) bool {
		for _, b := range declaredBindings(e) {
			if tok, ok := lookupPrefix(e.Parent(), b.Prefix); ok && tok == b.Token {
				removeDeclaration(e, b.Prefix)
			}
		}
		return true
	})
	return conflicts
}

// RepairRootDeclarations declares prefix="prefix" on root for every
// allow-listed prefix the document uses without any binding in scope.
// Unbound prefixes outside the allow-list are returned untouched.
func RepairRootDeclarations(root *etree.Element, resolver *Resolver) (added []Binding, unknown []string) {
	if root == nil {
		return nil, nil
	}
	for _, prefix := range freePrefixes(root) {
		if resolver.IsAllowed(prefix) {
			added = append(added, Binding{Prefix: prefix, Token: prefix})
		} else {
			unknown = append(unknown, prefix)
		}
	}
	declare(root, added...)
	return added, unknown
}
