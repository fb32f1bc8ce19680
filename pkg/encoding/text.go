// Package encoding provides text encoding utilities for scene file headers.
//
// Exporters write PLY comments in whatever code page their host used. Text
// that is not valid UTF-8 is decoded as Windows-1252, a superset of
// Latin-1 that covers the common European exporters.
package encoding

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ToUTF8 returns data as UTF-8 text.
// Returns the original bytes as a string if conversion fails.
func ToUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	result, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// HeaderText cleans a header value: trailing NUL and CR bytes are dropped
// and embedded newlines are replaced so the value stays on one line.
func HeaderText(data []byte) string {
	data = bytes.TrimRight(data, "\x00\r")
	s := ToUTF8(data)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, s)
}
