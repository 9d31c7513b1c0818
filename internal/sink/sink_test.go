package sink

// Execution history sink tests against a real SQLite file.

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookmux/hook-gateway/internal/hooks"
)

func newTestSink(t *testing.T) *SQLiteSink {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "executions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func result(hookID string, success bool) hooks.ExecutionResult {
	return hooks.ExecutionResult{
		HookID:          hookID,
		HookName:        "hook " + hookID,
		Scope:           hooks.ScopeUser,
		Success:         success,
		Result:          "done",
		ExecutionTimeMs: 12,
		Timestamp:       time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

// TestSQLiteSink_AppendAndRecent verifies a stored row round-trips with
// every field intact.
func TestSQLiteSink_AppendAndRecent(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	failed := result("h1", false)
	failed.Error = "boom"
	failed.Result = ""
	failed.ProjectName = "webapp"
	failed.Scope = hooks.ScopeProject
	require.NoError(t, s.Append(ctx, "ev-1", failed))

	rows, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, "ev-1", got.EventID)
	assert.Equal(t, "h1", got.HookID)
	assert.Equal(t, "project", got.Scope)
	assert.Equal(t, "webapp", got.ProjectName)
	assert.False(t, got.Success)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, int64(12), got.ExecutionTimeMs)
	assert.True(t, got.Timestamp.Equal(failed.Timestamp))
}

// TestSQLiteSink_RecentOrderAndLimit verifies newest-first ordering and
// the row limit.
func TestSQLiteSink_RecentOrderAndLimit(t *testing.T) {
	s := newTestSink(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, fmt.Sprintf("ev-%d", i), result(fmt.Sprintf("h%d", i), true)))
	}

	rows, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ev-4", rows[0].EventID)
	assert.Equal(t, "ev-3", rows[1].EventID)
	assert.Equal(t, "ev-2", rows[2].EventID)
}

// TestSQLiteSink_Reopen verifies history survives a process restart.
func TestSQLiteSink_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.db")
	ctx := context.Background()

	first, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Append(ctx, "ev-1", result("h1", true)))
	require.NoError(t, first.Close())

	second, err := NewSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	rows, err := second.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

// TestSQLiteSink_DefaultLimit verifies a non-positive limit falls back.
func TestSQLiteSink_DefaultLimit(t *testing.T) {
	s := newTestSink(t)
	require.NoError(t, s.Append(context.Background(), "ev-1", result("h1", true)))

	rows, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

// TestNopSink verifies the disabled-history implementation.
func TestNopSink(t *testing.T) {
	var s Sink = NopSink{}
	assert.NoError(t, s.Append(context.Background(), "ev", hooks.ExecutionResult{}))
	rows, err := s.Recent(context.Background(), 5)
	assert.NoError(t, err)
	assert.Nil(t, rows)
	assert.NoError(t, s.Close())
}
