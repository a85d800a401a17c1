package xmlcore

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// charsetReader lets both decoders read documents declared in a non UTF-8
// encoding.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	return charset.NewReaderLabel(label, input)
}

func isUTF8(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// ValidateEncoding reports whether label names an encoding output can be
// written in.
func ValidateEncoding(label string) error {
	if isUTF8(label) {
		return nil
	}
	if _, err := htmlindex.Get(label); err != nil {
		return fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return nil
}

// encodeOutput converts UTF-8 serializer output into label. Characters the
// target cannot represent become numeric character references.
func encodeOutput(data []byte, label string) ([]byte, error) {
	if isUTF8(label) {
		return data, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	out, err := encoding.HTMLEscapeUnsupported(enc.NewEncoder()).Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("encode as %s: %w", label, err)
	}
	return out, nil
}
