package xmlcore

import (
	"regexp"

	"github.com/beevik/etree"
)

// descendantRe matches ".//tag" and "//tag", with an optional prefix on tag.
var descendantRe = regexp.MustCompile(`^(\.?)//([A-Za-z_*][\w.\-]*(?::[A-Za-z_][\w.\-]*)?)$`)

// FindAll returns every element under root that selector selects, in
// document order.
//
// ".//tag" searches root's descendants depth first, "//tag" also considers
// root itself, and "*" matches any tag. Every other selector is compiled as
// an etree path relative to root.
func FindAll(root *etree.Element, selector string) ([]*etree.Element, error) {
	if root == nil {
		return nil, nil
	}
	if m := descendantRe.FindStringSubmatch(selector); m != nil {
		tag := m[2]
		var out []*etree.Element
		if m[1] == "" && tagMatches(root, tag) {
			out = append(out, root)
		}
		walkDescendants(root, func(e *etree.Element) bool {
			if tagMatches(e, tag) {
				out = append(out, e)
			}
			return true
		})
		return out, nil
	}

	path, err := etree.CompilePath(selector)
	if err != nil {
		return nil, parseErrorf(err, "invalid selector %q", selector)
	}
	return root.FindElementsPath(path), nil
}

// FindFirst returns the first element selector selects, or nil.
func FindFirst(root *etree.Element, selector string) (*etree.Element, error) {
	if m := descendantRe.FindStringSubmatch(selector); m != nil && root != nil {
		tag := m[2]
		if m[1] == "" && tagMatches(root, tag) {
			return root, nil
		}
		return firstDescendant(root, tag), nil
	}
	all, err := FindAll(root, selector)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func tagMatches(e *etree.Element, tag string) bool {
	return tag == "*" || e.FullTag() == tag
}

// firstDescendant is a depth-first search that excludes root.
func firstDescendant(root *etree.Element, tag string) *etree.Element {
	var found *etree.Element
	walkDescendants(root, func(e *etree.Element) bool {
		if tagMatches(e, tag) {
			found = e
			return false
		}
		return true
	})
	return found
}

// walkDescendants visits root's descendants in document order until visit
// returns false.
func walkDescendants(root *etree.Element, visit func(*etree.Element) bool) bool {
	for _, c := range root.ChildElements() {
		if !visit(c) || !walkDescendants(c, visit) {
			return false
		}
	}
	return true
}
