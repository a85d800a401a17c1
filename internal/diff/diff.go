// Package diff renders line diffs of XML documents before and after a merge,
// using the sergi/go-diff library.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

func (t LineType) prefix() string {
	switch t {
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// Line is one line of a hunk. OldNum and NewNum are 1-based and zero when
// the line does not exist on that side.
type Line struct {
	OldNum  int
	NewNum  int
	Content string
	Type    LineType
}

// Hunk represents a group of changes
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// DocumentDiff is the line diff of one document.
type DocumentDiff struct {
	Path  string
	Hunks []Hunk
}

// Empty reports whether the two versions were identical.
func (d *DocumentDiff) Empty() bool { return len(d.Hunks) == 0 }

// Stats counts added and removed lines.
func (d *DocumentDiff) Stats() (added, removed int) {
	for _, h := range d.Hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				added++
			case LineRemoved:
				removed++
			}
		}
	}
	return added, removed
}

// Unified renders the diff in unified format.
func (d *DocumentDiff) Unified() string {
	if d.Empty() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", d.Path, d.Path)
	for _, h := range d.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			b.WriteString(l.Type.prefix())
			b.WriteString(l.Content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Engine computes line diffs.
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	context int
}

// NewEngine returns an engine that keeps contextLines of unchanged lines
// around each change.
func NewEngine(contextLines int) *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{dmp: dmp, context: contextLines}
}

// DefaultEngine keeps three lines of context.
var DefaultEngine = NewEngine(3)

// Compute diffs two versions of the document at path.
func (e *Engine) Compute(path string, before, after []byte) *DocumentDiff {
	a, b, lines := e.dmp.DiffLinesToChars(string(before), string(after))
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lines)
	return &DocumentDiff{Path: path, Hunks: e.hunks(toLines(diffs))}
}

// Compute uses DefaultEngine.
func Compute(path string, before, after []byte) *DocumentDiff {
	return DefaultEngine.Compute(path, before, after)
}

// toLines numbers every line of the diff on both sides.
func toLines(diffs []diffmatchpatch.Diff) []Line {
	var out []Line
	oldNum, newNum := 0, 0
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if d.Text == "" {
			continue
		}
		for _, content := range strings.Split(text, "\n") {
			l := Line{Content: content}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldNum++
				newNum++
				l.Type, l.OldNum, l.NewNum = LineContext, oldNum, newNum
			case diffmatchpatch.DiffDelete:
				oldNum++
				l.Type, l.OldNum = LineRemoved, oldNum
			case diffmatchpatch.DiffInsert:
				newNum++
				l.Type, l.NewNum = LineAdded, newNum
			}
			out = append(out, l)
		}
	}
	return out
}

// hunks groups changed lines, merging groups whose context would overlap.
func (e *Engine) hunks(lines []Line) []Hunk {
	var out []Hunk
	for i := 0; i < len(lines); {
		if lines[i].Type == LineContext {
			i++
			continue
		}
		start := max(0, i-e.context)
		end := i
		for j := i; j < len(lines); j++ {
			if lines[j].Type != LineContext {
				end = j
				continue
			}
			if j-end > 2*e.context {
				break
			}
		}
		stop := min(len(lines), end+e.context+1)
		out = append(out, newHunk(lines[start:stop]))
		i = stop
	}
	return out
}

func newHunk(lines []Line) Hunk {
	h := Hunk{Lines: append([]Line(nil), lines...)}
	for _, l := range lines {
		if l.Type != LineAdded {
			if h.OldStart == 0 {
				h.OldStart = l.OldNum
			}
			h.OldCount++
		}
		if l.Type != LineRemoved {
			if h.NewStart == 0 {
				h.NewStart = l.NewNum
			}
			h.NewCount++
		}
	}
	// An empty side is reported at the line before the change.
	if h.OldCount == 0 && len(lines) > 0 {
		h.OldStart = lines[0].NewNum - 1
	}
	if h.NewCount == 0 && len(lines) > 0 {
		h.NewStart = lines[0].OldNum - 1
	}
	return h
}

// InlineChanges returns the character-level edits between two versions of
// one line, for highlighting changed attribute values.
func (e *Engine) InlineChanges(before, after string) []diffmatchpatch.Diff {
	diffs := e.dmp.DiffMain(before, after, false)
	return e.dmp.DiffCleanupSemantic(diffs)
}
