package logx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerBuffersEntries(t *testing.T) {
	logger := NewLogger("test-component")
	logger.Info("hello %s", "world")

	entries := RecentEntries(time.Time{})
	require.NotEmpty(t, entries)

	last := entries[len(entries)-1]
	assert.Equal(t, "test-component", last.Component)
	assert.Equal(t, "INFO", last.Level)
	assert.Equal(t, "hello world", last.Message)
}

func TestRecentEntriesSinceFilter(t *testing.T) {
	logger := NewLogger("since-test")
	logger.Info("old entry")

	// Entries timestamped before the cutoff are excluded.
	cutoff := time.Now().UTC().Add(time.Minute)
	assert.Empty(t, RecentEntries(cutoff))
}

func TestDebugSuppressedByDefault(t *testing.T) {
	SetDebug(false)
	before := len(RecentEntries(time.Time{}))

	NewLogger("debug-test").Debug("should not appear")
	assert.Len(t, RecentEntries(time.Time{}), before)

	SetDebug(true)
	defer SetDebug(false)
	NewLogger("debug-test").Debug("should appear")
	entries := RecentEntries(time.Time{})
	require.Len(t, entries, before+1)
	assert.Equal(t, "DEBUG", entries[len(entries)-1].Level)
}

func TestWrapNilError(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := Errorf("base failure")
	wrapped := Wrap(cause, "while doing thing")
	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "while doing thing")
}
