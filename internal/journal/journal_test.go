package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecentPasses(t *testing.T) {
	j := open(t)

	run := NewRunID()
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordPass(Pass{
		RunID:       run,
		Stage:       "average",
		Device:      "MISS2",
		WindowStart: start,
		WindowEnd:   start.Add(5 * time.Minute),
		Produced:    3,
		Skipped:     1,
	}))
	require.NoError(t, j.RecordPass(Pass{
		RunID:  run,
		Stage:  "rgb",
		Device: "MISS2",
		Failed: 2,
		Error:  "read /avg: permission denied",
	}))

	passes, err := j.RecentPasses(10)
	require.NoError(t, err)
	require.Len(t, passes, 2)

	// Most recent first.
	assert.Equal(t, "rgb", passes[0].Stage)
	assert.Equal(t, "average", passes[1].Stage)
	assert.Equal(t, run, passes[0].RunID)
	assert.Equal(t, 3, passes[1].Produced)
	assert.Equal(t, 1, passes[1].Skipped)
	assert.NotEmpty(t, passes[0].PassID)
	assert.NotEqual(t, passes[0].PassID, passes[1].PassID)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j1.RecordPass(Pass{Stage: "keogram", Device: "MISS1"}))
	require.NoError(t, j1.Close())

	// Reopening keeps the existing rows.
	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	passes, err := j2.RecentPasses(10)
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, "keogram", passes[0].Stage)
}

func TestRecentPassesEmpty(t *testing.T) {
	j := open(t)
	passes, err := j.RecentPasses(5)
	require.NoError(t, err)
	assert.Empty(t, passes)
}
