package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Load(dir))

	s := Get()
	assert.Equal(t, DefaultModel, s.Model)
	assert.Equal(t, 30, s.PollIntervalSecs)
	assert.Equal(t, 3, s.MaxTestRetries)
	assert.False(t, s.Paused)
	assert.True(t, s.CommitEnabled)
}

func TestSetPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Load(dir))

	s := Get()
	s.PollIntervalSecs = 5
	s.Paused = true
	s.Model = "claude-opus-4-1"
	require.NoError(t, Set(s))

	// Clobber in-memory state, then reload from disk.
	require.NoError(t, Load(dir))
	got := Get()
	assert.Equal(t, 5, got.PollIntervalSecs)
	assert.True(t, got.Paused)
	assert.Equal(t, "claude-opus-4-1", got.Model)
}

func TestUpdateAppliesMutation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Load(dir))

	require.NoError(t, Update(func(s *Settings) {
		s.MaxIterations = 10
	}))
	assert.Equal(t, 10, Get().MaxIterations)
}

func TestSetRejectsInvalidSettings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Load(dir))

	s := Get()
	s.AuthMode = "bogus"
	assert.Error(t, Set(s))

	s = Get()
	s.PollIntervalSecs = 0
	assert.Error(t, Set(s))

	s = Get()
	s.CommitBranchMode = "detached"
	assert.Error(t, Set(s))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unclosed"), 0o644))
	assert.Error(t, Load(dir))
}

func TestResolveAPIKeyPrefersEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Load(dir))

	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")
	s := Get()
	s.APIKey = "sk-stored"
	assert.Equal(t, "sk-from-env", s.ResolveAPIKey())

	t.Setenv("ANTHROPIC_API_KEY", "")
	assert.Equal(t, "sk-stored", s.ResolveAPIKey())
}

func TestPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Load(dir))

	assert.Equal(t, filepath.Join(dir, "settings.yaml"), SettingsPath())
	assert.Equal(t, filepath.Join(dir, "devloop.db"), DatabasePath())
	assert.Equal(t, filepath.Join(dir, "docs"), DocsDir())
}

func TestDurationHelpers(t *testing.T) {
	s := Defaults()
	assert.Equal(t, "30s", s.PollInterval().String())
	assert.Equal(t, "24h0m0s", s.WipTimeout().String())
	assert.Equal(t, "4h0m0s", s.PlanningTimeout().String())
}
