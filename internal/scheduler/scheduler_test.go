package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gcalexport/internal/config"
	"gcalexport/internal/export"
	"gcalexport/internal/source"
)

const calendarJSON = `{"items": [
  {"id": "X1", "start": {"dateTime": "2023-05-01T00:00:00.000Z"}, "end": {"dateTime": "2023-05-01T01:00:00.000Z"}}
]}`

func newJob(t *testing.T) (*Job, string) {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "calendar.json")
	require.NoError(t, os.WriteFile(srcPath, []byte(calendarJSON), 0o600))

	cfg := config.DefaultConfig()
	cfg.ExportFilename = filepath.Join(dir, "calendar_export.ics")
	cfg.DateStart = "2023-05-01"
	cfg.DateEnd = "2023-05-31"
	cfg.Sources = []config.SourceConfig{{ID: "primary", Path: srcPath, Format: config.FormatGoogleJSON}}

	loader := source.NewLoader()
	reg, err := source.FromConfig(cfg, loader)
	require.NoError(t, err)

	return &Job{
		Config:   cfg,
		Exporter: export.New(reg),
		Loader:   loader,
		Now:      func() time.Time { return time.Date(2023, 5, 10, 12, 0, 0, 0, time.UTC) },
	}, srcPath
}

func TestJobSkipsUnchanged(t *testing.T) {
	job, srcPath := newJob(t)
	ctx := context.Background()

	skipped, err := job.Run(ctx)
	require.NoError(t, err)
	assert.False(t, skipped)

	data, err := os.ReadFile(job.Config.ExportFilename)
	require.NoError(t, err)
	assert.Contains(t, string(data), "UID:X1\r\n")

	skipped, err = job.Run(ctx)
	require.NoError(t, err)
	assert.True(t, skipped)

	// Changed source content.
	require.NoError(t, os.WriteFile(srcPath, []byte(`{"items": []}`), 0o600))
	skipped, err = job.Run(ctx)
	require.NoError(t, err)
	assert.False(t, skipped)

	data, err = os.ReadFile(job.Config.ExportFilename)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "BEGIN:VEVENT")

	// Output removed behind our back.
	require.NoError(t, os.Remove(job.Config.ExportFilename))
	skipped, err = job.Run(ctx)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.FileExists(t, job.Config.ExportFilename)
}

func TestJobReExportsWhenRangeMoves(t *testing.T) {
	job, _ := newJob(t)
	job.Config.DateStart = ""
	job.Config.DateEnd = ""
	ctx := context.Background()

	_, err := job.Run(ctx)
	require.NoError(t, err)

	job.Now = func() time.Time { return time.Date(2023, 5, 11, 12, 0, 0, 0, time.UTC) }
	skipped, err := job.Run(ctx)
	require.NoError(t, err)
	assert.False(t, skipped)
}

func TestJobErrors(t *testing.T) {
	job, srcPath := newJob(t)
	require.NoError(t, os.Remove(srcPath))

	_, err := job.Run(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	job.Loader = nil
	_, err = job.Run(context.Background())
	assert.Error(t, err)
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("not a schedule", nil, &countingRunner{})
	assert.Error(t, err)
}

type countingRunner struct {
	calls  atomic.Int32
	cancel context.CancelFunc
}

func (r *countingRunner) Run(context.Context) (bool, error) {
	r.calls.Add(1)
	if r.cancel != nil {
		r.cancel()
	}
	return false, errors.New("logged, not fatal")
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &countingRunner{cancel: cancel}
	s, err := New("0 0 1 1 *", time.UTC, runner)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.Equal(t, int32(1), runner.calls.Load())
}
