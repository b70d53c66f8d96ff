package ics

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFoldShortLineUntouched(t *testing.T) {
	line := "SUMMARY:" + strings.Repeat("a", 67)
	assert.Len(t, line, 75)
	assert.Equal(t, line, Fold(line))
}

func TestFoldASCII(t *testing.T) {
	line := "DESCRIPTION:" + strings.Repeat("b", 188)
	got := Fold(line)

	parts := strings.Split(got, "\r\n")
	assert.Len(t, parts, 3)
	assert.Len(t, parts[0], 75)
	for _, p := range parts[1:] {
		assert.True(t, strings.HasPrefix(p, " "))
		assert.LessOrEqual(t, len(p), 75)
	}
	assert.Equal(t, line, strings.ReplaceAll(got, "\r\n ", ""))
}

func TestFoldNeverSplitsRunes(t *testing.T) {
	line := "SUMMARY:" + strings.Repeat("日本語", 40)
	got := Fold(line)

	for _, p := range strings.Split(got, "\r\n") {
		assert.True(t, utf8.ValidString(p), "%q", p)
		assert.LessOrEqual(t, len(p), 75)
	}
	assert.Equal(t, line, strings.ReplaceAll(got, "\r\n ", ""))
}
