package xmlcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	return NewParser(NewResolver(nil), true, nil)
}

func TestCleanFragment(t *testing.T) {
	cases := map[string]string{
		"plain":       `<entity name="A"/>`,
		"fenced":      "```xml\n<entity name=\"A\"/>\n```",
		"bare fence":  "```\n<entity name=\"A\"/>\n```\n",
		"declaration": "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<entity name=\"A\"/>",
		"padding":     "\n\n   <entity name=\"A\"/>  \n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, `<entity name="A"/>`, CleanFragment(raw))
		})
	}
}

func TestParse_Simple(t *testing.T) {
	el, err := newTestParser().Parse(`<entity name="User" tableName="user"><column name="id"/></entity>`, "")
	require.NoError(t, err)
	assert.Equal(t, "entity", el.Tag)
	assert.Nil(t, el.Parent())
	assert.Equal(t, "User", el.SelectAttrValue("name", ""))
	assert.Len(t, el.ChildElements(), 1)
}

func TestParse_MarkdownFence(t *testing.T) {
	el, err := newTestParser().Parse("```xml\n<entity name=\"Order\"/>\n```", "")
	require.NoError(t, err)
	assert.Equal(t, "Order", el.SelectAttrValue("name", ""))

	// Leading prose becomes character data of the wrapper and is ignored.
	el, err = newTestParser().Parse("Here is the entity:\n```xml\n<entity name=\"Order\"/>\n```", "")
	require.NoError(t, err)
	assert.Equal(t, "Order", el.SelectAttrValue("name", ""))
}

func TestParse_TargetTag(t *testing.T) {
	raw := `<orm><entities><entity name="Inner"><column name="c"/></entity></entities></orm>`
	el, err := newTestParser().Parse(raw, "entity")
	require.NoError(t, err)
	assert.Equal(t, "Inner", el.SelectAttrValue("name", ""))
	assert.Nil(t, el.Parent())
}

func TestParse_TargetTagMissing(t *testing.T) {
	_, err := newTestParser().Parse(`<orm><dicts/></orm>`, "entity")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "entity")
}

func TestParse_UndeclaredAllowedPrefix(t *testing.T) {
	el, err := newTestParser().Parse(`<entity name="E" biz:kind="main"><ext:meta/></entity>`, "")
	require.NoError(t, err)

	tok, ok := declaredToken(el, "biz")
	require.True(t, ok, "biz binding should be materialized on the fragment root")
	assert.Equal(t, "biz", tok)
	tok, ok = declaredToken(el, "ext")
	require.True(t, ok)
	assert.Equal(t, "ext", tok)
}

func TestParse_InheritedBindingsSurviveDetach(t *testing.T) {
	raw := `<orm xmlns:biz="urn:biz"><entities><biz:entity name="E"/></entities></orm>`
	el, err := newTestParser().Parse(raw, "biz:entity")
	require.NoError(t, err)
	tok, ok := declaredToken(el, "biz")
	require.True(t, ok)
	assert.Equal(t, "urn:biz", tok)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":            "   ",
		"fence only":       "```xml\n```",
		"unclosed":         `<entity name="E"><column name="c"></entity>`,
		"unknown prefix":   `<entity name="E"><zzz:thing/></entity>`,
		"text only":        "just some words",
		"mismatched close": `<entity></column>`,
		"two elements":     `<entity name="A"/><entity name="B"/>`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newTestParser().Parse(raw, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParse_AutoDetectDisabled(t *testing.T) {
	p := NewParser(NewResolver(nil), false, nil)
	_, err := p.Parse(`<biz:entity name="E"/>`, "")
	assert.ErrorIs(t, err, ErrParse)

	el, err := p.Parse(`<biz:entity xmlns:biz="biz" name="E"/>`, "")
	require.NoError(t, err)
	assert.Equal(t, "biz:entity", el.FullTag())
}

func TestParse_SeveralTopLevelElements(t *testing.T) {
	_, err := newTestParser().Parse("```xml\n<a/>\n<b/>\n```", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 top-level elements")

	// A target tag picks one of them.
	el, err := newTestParser().Parse(`<a/><b name="x"/>`, "b")
	require.NoError(t, err)
	assert.Equal(t, "x", el.SelectAttrValue("name", ""))
}

func TestParse_ReportsPlaceholders(t *testing.T) {
	el, placeholders, err := newTestParser().parse(`<orm xmlns:ext="urn:ext"><entity name="E" biz:k="v" ext:m="1"/></orm>`, "entity")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"biz": true}, placeholders)

	tok, ok := declaredToken(el, "biz")
	require.True(t, ok)
	assert.Equal(t, "biz", tok)
	tok, ok = declaredToken(el, "ext")
	require.True(t, ok)
	assert.Equal(t, "urn:ext", tok)

	_, placeholders, err = newTestParser().parse(`<entity xmlns:biz="biz" name="E" biz:k="v"/>`, "")
	require.NoError(t, err)
	assert.Empty(t, placeholders)
}
