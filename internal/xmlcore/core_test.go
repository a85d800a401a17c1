package xmlcore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ormFixture = `<?xml version="1.0" encoding="UTF-8"?>
<orm>
  <entities>
    <entity name="User" tableName="user">
      <columns>
        <column name="id" code="ID"/>
      </columns>
    </entity>
  </entities>
</orm>
`

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.orm.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readDoc(t *testing.T, path string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(path))
	return doc
}

func entityNames(t *testing.T, path string) []string {
	t.Helper()
	var names []string
	for _, e := range readDoc(t, path).FindElements("//entities/entity") {
		names = append(names, e.SelectAttrValue("name", ""))
	}
	return names
}

func TestMergeElement_CreateThenUpdate(t *testing.T) {
	path := writeDoc(t, ormFixture)
	c := ForORM()

	res, err := c.MergeEntity(`<entity name="Order" tableName="order"/>`, path)
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Identifier: "Order", Action: ActionCreated, MatchAttribute: "name"}, res)
	assert.Equal(t, []string{"User", "Order"}, entityNames(t, path))

	res, err = c.MergeEntity("```xml\n<entity name=\"User\" tableName=\"users\"/>\n```", path)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, res.Action)
	assert.Equal(t, []string{"User", "Order"}, entityNames(t, path), "replacement keeps position")

	user := readDoc(t, path).FindElement("//entity[@name='User']")
	require.NotNil(t, user)
	assert.Equal(t, "users", user.SelectAttrValue("tableName", ""))
	assert.Empty(t, user.ChildElements(), "replacement drops the old subtree")
}

func TestMergeElement_Idempotent(t *testing.T) {
	path := writeDoc(t, ormFixture)
	c := ForORM()
	frag := "```xml\n<entity name=\"Order\" biz:kind=\"main\">\n<columns><column name=\"no\"/></columns></entity>\n```"

	_, err := c.MergeEntity(frag, path)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	res, err := c.MergeEntity(frag, path)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, res.Action)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestMergeElement_AlwaysAppend(t *testing.T) {
	path := writeDoc(t, ormFixture)
	c := ForORM()
	opts := DefaultMergeOptions()
	opts.Strategy = StrategyAlwaysAppend

	for i := 0; i < 2; i++ {
		res, err := c.MergeElement(`<entity name="User"/>`, path, opts)
		require.NoError(t, err)
		assert.Equal(t, ActionCreated, res.Action)
	}
	assert.Equal(t, []string{"User", "User", "User"}, entityNames(t, path))
}

func TestMergeElement_ForceReplaceMatchesDefault(t *testing.T) {
	a := writeDoc(t, ormFixture)
	b := writeDoc(t, ormFixture)
	c := ForORM()
	frag := `<entity name="User" tableName="u2"/>`

	optsA := DefaultMergeOptions()
	optsB := DefaultMergeOptions()
	optsB.Strategy = StrategyForceReplace

	resA, err := c.MergeElement(frag, a, optsA)
	require.NoError(t, err)
	resB, err := c.MergeElement(frag, b, optsB)
	require.NoError(t, err)
	assert.Equal(t, resA, resB)

	outA, _ := os.ReadFile(a)
	outB, _ := os.ReadFile(b)
	assert.Equal(t, string(outA), string(outB))
}

func TestMergeElement_ExplicitMatcher(t *testing.T) {
	path := writeDoc(t, `<orm><dicts><dict id="1" code="status"/></dicts></orm>`)
	c := ForORM()

	opts := MergeOptions{ParentSelector: ".//dicts", Matcher: "code"}
	res, err := c.MergeElement(`<dict id="99" code="status" label="Status"/>`, path, opts)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, res.Action)
	assert.Equal(t, "code", res.MatchAttribute)

	dicts := readDoc(t, path).FindElements("//dict")
	require.Len(t, dicts, 1)
	assert.Equal(t, "99", dicts[0].SelectAttrValue("id", ""))
}

func TestMergeElement_IdentifierFallbackOrder(t *testing.T) {
	path := writeDoc(t, `<orm><items><item key="k" name="n"/></items></orm>`)
	res, err := ForORM().MergeElement(`<item key="k" name="n" id="" v="2"/>`, path, MergeOptions{ParentSelector: "//items"})
	require.NoError(t, err)
	assert.Equal(t, "name", res.MatchAttribute)
	assert.Equal(t, ActionUpdated, res.Action)
}

func TestMergeElement_NamespacePreservation(t *testing.T) {
	path := writeDoc(t, ormFixture)
	c := ForORM()

	_, err := c.MergeEntity(`<entity name="Biz" biz:type="x"><ext:meta ui:label="L"/></entity>`, path)
	require.NoError(t, err)
	_, err = c.MergeEntity(`<entity name="Other" biz:type="y"/>`, path)
	require.NoError(t, err)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(out)
	assert.Equal(t, 1, strings.Count(text, `xmlns:biz="biz"`))
	assert.Equal(t, 1, strings.Count(text, `xmlns:ext="ext"`))
	assert.Equal(t, 1, strings.Count(text, `xmlns:ui="ui"`))

	doc := readDoc(t, path)
	for _, prefix := range []string{"biz", "ext", "ui"} {
		tok, ok := declaredToken(doc.Root(), prefix)
		assert.True(t, ok, prefix)
		assert.Equal(t, prefix, tok)
	}
	meta := doc.FindElement("//ext:meta")
	require.NotNil(t, meta)
	tok, ok := lookupPrefix(meta, "ext")
	assert.True(t, ok)
	assert.Equal(t, "ext", tok)
}

func TestMergeElement_FragmentDeclarationAdopted(t *testing.T) {
	path := writeDoc(t, `<orm xmlns:biz="urn:biz"><entities/></orm>`)
	c := ForORM()

	_, err := c.MergeEntity(`<entity xmlns:biz="urn:biz" xmlns:orm="urn:orm" name="E" orm:x="1" biz:y="2"/>`, path)
	require.NoError(t, err)

	doc := readDoc(t, path)
	entity := doc.FindElement("//entity")
	require.NotNil(t, entity)
	assert.Empty(t, declaredBindings(entity))
	tok, ok := declaredToken(doc.Root(), "orm")
	require.True(t, ok)
	assert.Equal(t, "urn:orm", tok)
}

func TestMergeElement_ConflictingBindingKept(t *testing.T) {
	path := writeDoc(t, `<orm xmlns:biz="urn:one"><entities/></orm>`)

	_, err := ForORM().MergeEntity(`<entity xmlns:biz="urn:two" name="E" biz:y="2"/>`, path)
	require.NoError(t, err)

	entity := readDoc(t, path).FindElement("//entity")
	require.NotNil(t, entity)
	tok, ok := lookupPrefix(entity, "biz")
	require.True(t, ok)
	assert.Equal(t, "urn:two", tok)
}

func TestMergeElement_PlaceholderDefersToHostBinding(t *testing.T) {
	path := writeDoc(t, `<orm xmlns:biz="urn:real"><entities/></orm>`)

	_, err := ForORM().MergeEntity(`<entity name="A" biz:k="v"/>`, path)
	require.NoError(t, err)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(out), `xmlns:biz="biz"`)
	assert.Equal(t, 1, strings.Count(string(out), "xmlns:biz="))

	entity := readDoc(t, path).FindElement("//entity")
	require.NotNil(t, entity)
	assert.Empty(t, declaredBindings(entity))
	tok, ok := lookupPrefix(entity, "biz")
	require.True(t, ok)
	assert.Equal(t, "urn:real", tok)
}

func TestMergeElement_PlaceholderStrictNamespaces(t *testing.T) {
	path := writeDoc(t, `<orm xmlns:x="/nop/schema/xdsl.xdef"><entities/></orm>`)
	s := DefaultSettings()
	s.StrictNamespaces = true

	_, err := New(s).MergeEntity(`<entity name="A" x:abstract="true"/>`, path)
	require.NoError(t, err)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(out), `xmlns:x="x"`)
	assert.Contains(t, string(out), `x:abstract="true"`)
}

func TestMergeElement_StripChildNamespacesFlag(t *testing.T) {
	const fragment = `<entity xmlns:ext="ext" name="A"><columns><column xmlns:ext="ext" name="id" ext:c="1"/></columns></entity>`
	merged := func(strip bool) string {
		path := writeDoc(t, ormFixture)
		opts := DefaultMergeOptions()
		opts.Matcher = "name"
		opts.StripChildNamespaces = strip
		_, err := ForORM().MergeElement(fragment, path, opts)
		require.NoError(t, err)
		out, err := os.ReadFile(path)
		require.NoError(t, err)
		return string(out)
	}

	stripped, kept := merged(true), merged(false)
	assert.NotEqual(t, stripped, kept)
	assert.Equal(t, 1, strings.Count(stripped, `xmlns:ext="ext"`))
	assert.Equal(t, 2, strings.Count(kept, `xmlns:ext="ext"`))
	assert.Contains(t, kept, `<column xmlns:ext="ext" name="id" ext:c="1"/>`)
}

func TestMergeElement_StrictNamespaces(t *testing.T) {
	content := `<orm xmlns:biz="urn:one"><entities/></orm>`
	path := writeDoc(t, content)
	s := DefaultSettings()
	s.StrictNamespaces = true

	_, err := New(s).MergeEntity(`<entity xmlns:biz="urn:two" name="E"/>`, path)
	assert.ErrorIs(t, err, ErrNamespaceConflict)

	out, _ := os.ReadFile(path)
	assert.Equal(t, content, string(out))
}

func TestMergeElement_Failures(t *testing.T) {
	c := ForORM()

	t.Run("missing document", func(t *testing.T) {
		_, err := c.MergeEntity(`<entity name="E"/>`, filepath.Join(t.TempDir(), "nope.xml"))
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "document", nf.What)
	})

	cases := []struct {
		name     string
		fragment string
		opts     MergeOptions
		want     error
	}{
		{"missing container", `<entity name="E"/>`, MergeOptions{ParentSelector: ".//dicts"}, ErrNotFound},
		{"no identifier", `<entity tableName="t"/>`, DefaultMergeOptions(), ErrIdentifier},
		{"empty matcher value", `<entity name="E"/>`, MergeOptions{Matcher: "code"}, ErrIdentifier},
		{"malformed fragment", `<entity name="E">`, DefaultMergeOptions(), ErrParse},
		{"missing target tag", `<dict name="d"/>`, MergeOptions{TargetTag: "entity"}, ErrParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeDoc(t, ormFixture)
			_, err := c.MergeElement(tc.fragment, path, tc.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			out, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, ormFixture, string(out), "failed merge must not touch the file")
		})
	}

	t.Run("unknown strategy", func(t *testing.T) {
		path := writeDoc(t, ormFixture)
		_, err := c.MergeElement(`<entity name="E"/>`, path, MergeOptions{Strategy: "upsert"})
		assert.Error(t, err)
	})

	t.Run("malformed document", func(t *testing.T) {
		path := writeDoc(t, `<orm><entities></orm>`)
		_, err := c.MergeEntity(`<entity name="E"/>`, path)
		assert.ErrorIs(t, err, ErrParse)
	})
}

func TestMergeElement_Deterministic(t *testing.T) {
	a := writeDoc(t, ormFixture)
	b := writeDoc(t, ormFixture)
	frag := `<entity name="Z" biz:a="1" ext:b="2"><column name="c" x:y="3"/></entity>`

	_, err := ForORM().MergeEntity(frag, a)
	require.NoError(t, err)
	_, err = ForORM().MergeEntity(frag, b)
	require.NoError(t, err)

	outA, _ := os.ReadFile(a)
	outB, _ := os.ReadFile(b)
	assert.Equal(t, string(outA), string(outB))
}

func TestMergeElement_RoundTrip(t *testing.T) {
	path := writeDoc(t, ormFixture)
	c := ForORM()
	res, err := c.MergeEntity(`<entity name="RT" tableName="rt"/>`, path)
	require.NoError(t, err)

	el, err := c.FindElement(path, "//entity[@name='RT']")
	require.NoError(t, err)
	_, ident, err := Identify(el, "")
	require.NoError(t, err)
	assert.Equal(t, res.Identifier, ident)
}

func TestMergeElement_AtomicWriteKeepsMode(t *testing.T) {
	path := writeDoc(t, ormFixture)
	require.NoError(t, os.Chmod(path, 0o600))
	s := DefaultSettings()
	s.AtomicWrite = true

	_, err := New(s).MergeEntity(`<entity name="A"/>`, path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestPreviewDoesNotWrite(t *testing.T) {
	path := writeDoc(t, ormFixture)
	p, err := ForORM().Preview(`<entity name="New"/>`, path, DefaultMergeOptions())
	require.NoError(t, err)
	assert.True(t, p.Changed())
	assert.Contains(t, string(p.After), `<entity name="New"/>`)

	out, _ := os.ReadFile(path)
	assert.Equal(t, ormFixture, string(out))
}

func TestFindElement(t *testing.T) {
	path := writeDoc(t, ormFixture)
	c := ForORM()

	el, err := c.FindElement(path, ".//column")
	require.NoError(t, err)
	assert.Equal(t, "ID", el.SelectAttrValue("code", ""))

	_, err = c.FindElement(path, ".//dict")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceElement(t *testing.T) {
	path := writeDoc(t, ormFixture)
	c := ForORM()

	ok, err := c.ReplaceElement(path, ".//columns", `<columns><column name="pk"/></columns>`)
	require.NoError(t, err)
	assert.True(t, ok)
	col := readDoc(t, path).FindElement("//column")
	require.NotNil(t, col)
	assert.Equal(t, "pk", col.SelectAttrValue("name", ""))

	ok, err = c.ReplaceElement(path, ".//missing", `<x/>`)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplaceElement_PlaceholderDefersToHostBinding(t *testing.T) {
	path := writeDoc(t, `<orm xmlns:biz="urn:real"><entities><entity name="A"/></entities></orm>`)

	ok, err := ForORM().ReplaceElement(path, ".//entity", `<entity name="A" biz:k="v"/>`)
	require.NoError(t, err)
	require.True(t, ok)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(out), `xmlns:biz="biz"`)
	entity := readDoc(t, path).FindElement("//entity")
	require.NotNil(t, entity)
	tok, _ := lookupPrefix(entity, "biz")
	assert.Equal(t, "urn:real", tok)
}

func TestPrettify(t *testing.T) {
	c := ForORM()
	assert.Equal(t, "<a>\n  <b/>\n</a>", strings.TrimSpace(c.Prettify(`<a><b/></a>`)))
	assert.Equal(t, "<a><b>", c.Prettify("<a><b>"))
}

func TestParseFileRepairsRoot(t *testing.T) {
	path := writeDoc(t, `<orm><entities><entity name="E" biz:k="v"/></entities></orm>`)
	doc, err := ForORM().ParseFile(path)
	require.NoError(t, err)
	tok, ok := declaredToken(doc.Root(), "biz")
	require.True(t, ok)
	assert.Equal(t, "biz", tok)
}
