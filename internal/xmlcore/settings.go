package xmlcore

import (
	"fmt"
	"os"
	"slices"
)

// Settings are the output and parsing defaults shared by every call on a
// Core.
type Settings struct {
	Encoding       string
	PrettyPrint    bool
	IndentSpaces   int
	XMLDeclaration bool

	// AutoDetectNamespaces wraps fragments in a root declaring the
	// allow-listed prefixes they use but do not declare.
	AutoDetectNamespaces bool
	Namespaces           []string

	// CleanupTags are the tag names the text-level cleanup pass visits.
	CleanupTags []string

	// AtomicWrite writes through a temp file and a rename.
	AtomicWrite bool
	// StrictNamespaces turns prefix collisions into errors.
	StrictNamespaces bool

	// FileMode is used for documents created by ReplaceElement or when the
	// existing mode cannot be read.
	FileMode os.FileMode
}

// DefaultSettings mirrors the settings used for ORM model files.
func DefaultSettings() Settings {
	return Settings{
		Encoding:             "UTF-8",
		PrettyPrint:          true,
		IndentSpaces:         2,
		XMLDeclaration:       true,
		AutoDetectNamespaces: true,
		Namespaces:           DefaultNamespaces(),
		CleanupTags:          []string{"entity", "column", "comment"},
		FileMode:             0o644,
	}
}

// Validate checks settings before a Core is built from them.
func (s Settings) Validate() error {
	if err := ValidateEncoding(s.Encoding); err != nil {
		return err
	}
	if s.IndentSpaces < 0 || s.IndentSpaces > 16 {
		return fmt.Errorf("indent_spaces must be between 0 and 16, got %d", s.IndentSpaces)
	}
	for _, p := range s.Namespaces {
		if p == "" || p == "xml" || p == "xmlns" {
			return fmt.Errorf("invalid namespace prefix %q", p)
		}
	}
	return nil
}

func (s Settings) clone() Settings {
	s.Namespaces = slices.Clone(s.Namespaces)
	s.CleanupTags = slices.Clone(s.CleanupTags)
	if s.FileMode == 0 {
		s.FileMode = 0o644
	}
	return s
}
