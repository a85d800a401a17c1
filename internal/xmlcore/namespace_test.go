package xmlcore

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultNamespacesFresh(t *testing.T) {
	a := DefaultNamespaces()
	a[0] = "changed"
	assert.Equal(t, "biz", DefaultNamespaces()[0])
}

func TestPrefixesInUse(t *testing.T) {
	r := NewResolver(nil)

	got := r.PrefixesInUse(`<entity ext:a="1"><biz:x/><i18n-en:label/></entity>`)
	if diff := cmp.Diff([]string{"biz", "ext", "i18n-en"}, got); diff != "" {
		t.Errorf("PrefixesInUse mismatch (-want +got):\n%s", diff)
	}

	// Prefix-like text inside values and character data is not a use.
	got = r.PrefixesInUse(`<entity comment="see biz:thing">ui:label here</entity>`)
	assert.Empty(t, got)

	// Prefixes outside the allow-list are never reported.
	assert.Empty(t, r.PrefixesInUse(`<zzz:entity/>`))
}

func TestPrefixesInUse_FallbackOnBrokenText(t *testing.T) {
	r := NewResolver([]string{"biz", "orm"})
	got := r.PrefixesInUse(`<entity <biz:x`)
	assert.Equal(t, []string{"biz"}, got)
}

func TestResolverCopiesAllowList(t *testing.T) {
	list := []string{"biz"}
	r := NewResolver(list)
	list[0] = "other"
	assert.True(t, r.IsAllowed("biz"))
	assert.False(t, r.IsAllowed("other"))
}

func TestStripDeclaredNamespaces(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<entity xmlns="urn:default" xmlns:biz="b" name="E" xmlns:ext="e"/>`))
	el := doc.Root()

	removed := StripDeclaredNamespaces(el)
	assert.Equal(t, []Binding{{Prefix: "biz", Token: "b"}, {Prefix: "ext", Token: "e"}}, removed)

	var keys []string
	for _, a := range el.Attr {
		keys = append(keys, a.FullKey())
	}
	assert.Equal(t, []string{"xmlns", "name"}, keys)
	assert.Nil(t, StripDeclaredNamespaces(el))
}

func TestDeclareKeepsDeclarationsFirst(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<orm xmlns:biz="biz" version="1"/>`))
	declare(doc.Root(), Binding{Prefix: "ext", Token: "ext"})

	var keys []string
	for _, a := range doc.Root().Attr {
		keys = append(keys, a.FullKey())
	}
	assert.Equal(t, []string{"xmlns:biz", "xmlns:ext", "version"}, keys)
}

func TestFreePrefixes(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<a biz:x="1"><ext:b xmlns:ext="e"><ext:c ui:y="2"/></ext:b></a>`))
	assert.Equal(t, []string{"biz", "ui"}, freePrefixes(doc.Root()))
}
