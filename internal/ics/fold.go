package ics

import (
	"strings"
	"unicode/utf8"
)

// maxLineOctets is the folding limit for a content line, excluding CRLF.
const maxLineOctets = 75

// Fold splits a content line longer than 75 octets into a first line and
// continuation lines that start with a single space. The space counts towards
// the limit of the continuation line. UTF-8 sequences are never split.
// The returned string has no trailing CRLF.
func Fold(line string) string {
	if len(line) <= maxLineOctets {
		return line
	}

	var b strings.Builder
	b.Grow(len(line) + len(line)/maxLineOctets*3)

	limit := maxLineOctets
	width := 0
	for i := 0; i < len(line); {
		_, size := utf8.DecodeRuneInString(line[i:])
		if width+size > limit {
			b.WriteString(crlf + " ")
			// continuation lines lose one octet to the leading space
			limit = maxLineOctets - 1
			width = 0
		}
		b.WriteString(line[i : i+size])
		width += size
		i += size
	}
	return b.String()
}
