package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"Warn":    LevelWarn,
		"warning": LevelWarn,
		" error ": LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetLevel(LevelInfo) })

	SetLevel(LevelWarn)
	Info("hidden line")
	Warn("shown line", "k", "v")
	Error("failure line", errors.New("boom"), "path", "/tmp/x.ics")

	out := buf.String()
	assert.NotContains(t, out, "hidden line")
	assert.Contains(t, out, "shown line")
	assert.Contains(t, out, "k=v")
	assert.Contains(t, out, "failure line")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "path=/tmp/x.ics")
}

func TestDebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetLevel(LevelInfo) })

	SetLevel(LevelDebug)
	Debug("debug line", "n", 3)
	assert.Contains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "n=3")
}
