package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedgerRunLifecycle(t *testing.T) {
	l := openTestLedger(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	ctx := context.Background()

	id, err := l.BeginRun(ctx, "7707083893")
	require.NoError(t, err)
	assert.Len(t, id, 36)

	run, err := l.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, fixed, run.StartedAt)
	assert.Nil(t, run.FinishedAt)

	require.NoError(t, l.RecordArtifact(ctx, id, "company_summary", "/out/a.txt"))
	require.NoError(t, l.RecordArtifact(ctx, id, "final_report", "/out/b.txt"))
	require.NoError(t, l.FinishRun(ctx, id, nil))

	run, err = l.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	require.NotNil(t, run.FinishedAt)

	artifacts, err := l.Artifacts(ctx, id)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "company_summary", artifacts[0].Stage)
	assert.Equal(t, "/out/b.txt", artifacts[1].Path)
	assert.Equal(t, fixed, artifacts[1].CreatedAt)
}

func TestLedgerFailedRun(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	id, err := l.BeginRun(ctx, "7707083893")
	require.NoError(t, err)
	require.NoError(t, l.FinishRun(ctx, id, errors.New("registry unavailable")))

	run, err := l.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "registry unavailable", run.Error)

	assert.Error(t, l.FinishRun(ctx, "missing", nil))

	artifacts, err := l.Artifacts(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}
