package xmlcore

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrParse             = errors.New("xml parse failed")
	ErrNotFound          = errors.New("not found")
	ErrIdentifier        = errors.New("missing identifier")
	ErrIO                = errors.New("xml io failed")
	ErrNamespaceConflict = errors.New("namespace conflict")
)

// ParseError is returned when a fragment or document cannot be parsed, or
// when the requested target tag is absent.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrParse, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrParse, e.Reason)
}

func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// NotFoundError covers a missing document file and a container selector that
// matched nothing.
type NotFoundError struct {
	// What is "document" or "container".
	What  string
	Where string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.What, ErrNotFound, e.Where)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IdentifierError means the fragment carries none of the identifying
// attributes that were tried.
type IdentifierError struct {
	Tag   string
	Tried []string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("%s: <%s> has no non-empty %s attribute", ErrIdentifier, e.Tag, strings.Join(e.Tried, "/"))
}

func (e *IdentifierError) Is(target error) bool { return target == ErrIdentifier }

// IOError wraps read and write failures on the document file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrIO, e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error        { return e.Err }
func (e *IOError) Is(target error) bool { return target == ErrIO }

// NamespaceConflictError is raised only in strict mode, when one prefix is
// bound to two different tokens inside the same document.
type NamespaceConflictError struct {
	Conflicts []Conflict
}

func (e *NamespaceConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, c.String())
	}
	return fmt.Sprintf("%s: %s", ErrNamespaceConflict, strings.Join(parts, "; "))
}

func (e *NamespaceConflictError) Is(target error) bool { return target == ErrNamespaceConflict }

func parseErrorf(err error, format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...), Err: err}
}
