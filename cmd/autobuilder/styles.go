package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"autobuilder/internal/diff"
	"autobuilder/internal/xmlcore"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7c3aed"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef4444"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))

	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
	hunkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#06b6d4"))
)

func actionLabel(a xmlcore.Action) string {
	switch a {
	case xmlcore.ActionCreated:
		return successStyle.Render("created")
	case xmlcore.ActionUpdated:
		return warningStyle.Render("updated")
	}
	return string(a)
}

func printResult(w io.Writer, document string, res xmlcore.MergeResult, written bool) {
	suffix := ""
	if !written {
		suffix = mutedStyle.Render(" (dry run)")
	}
	fmt.Fprintf(w, "%s %s=%q in %s%s\n", actionLabel(res.Action), res.MatchAttribute, res.Identifier, document, suffix)
}

// printDiff renders d in unified format with added and removed lines
// colored.
func printDiff(w io.Writer, d *diff.DocumentDiff) {
	if d.Empty() {
		fmt.Fprintln(w, mutedStyle.Render("no changes"))
		return
	}
	for _, line := range strings.Split(strings.TrimSuffix(d.Unified(), "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			line = headerStyle.Render(line)
		case strings.HasPrefix(line, "@@"):
			line = hunkStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			line = addedStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			line = removedStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}
	added, removed := d.Stats()
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d added, %d removed", added, removed)))
}
