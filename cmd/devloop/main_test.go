package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"devloop/pkg/config"
	"devloop/pkg/persistence"
)

func setupCLI(t *testing.T) *persistence.Store {
	t.Helper()
	require.NoError(t, config.Load(t.TempDir()))

	store, err := openStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFindProjectByIDAndName(t *testing.T) {
	store := setupCLI(t)

	p := &persistence.Project{Name: "alpha", Version: "1.0"}
	require.NoError(t, store.CreateProject(p))

	byName, err := findProject(store, "alpha")
	require.NoError(t, err)
	require.Equal(t, p.ID, byName.ID)

	byID, err := findProject(store, "1")
	require.NoError(t, err)
	require.Equal(t, "alpha", byID.Name)

	_, err = findProject(store, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestFindProjectNumericNameFallsBack(t *testing.T) {
	store := setupCLI(t)

	// A project literally named "99" is still reachable when no project
	// with id 99 exists.
	p := &persistence.Project{Name: "99", Version: "1.0"}
	require.NoError(t, store.CreateProject(p))

	found, err := findProject(store, "99")
	require.NoError(t, err)
	require.Equal(t, p.ID, found.ID)
}

func TestParseRequestID(t *testing.T) {
	id, err := parseRequestID("42")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	_, err = parseRequestID("abc")
	require.Error(t, err)
}

func TestRequestRetryOnlyForTerminalFailures(t *testing.T) {
	store := setupCLI(t)

	p := &persistence.Project{Name: "alpha", Version: "1.0"}
	require.NoError(t, store.CreateProject(p))
	r := &persistence.Request{ProjectID: p.ID, Name: "feature", Prompt: "do it"}
	require.NoError(t, store.CreateRequest(r))

	// tbd requests are already queued; retry must refuse.
	err := runRequestRetry(nil, []string{"1"})
	require.Error(t, err)

	require.NoError(t, store.UpdateRequestStatus(r.ID, persistence.StatusError, "boom"))
	require.NoError(t, runRequestRetry(nil, []string{"1"}))

	got, err := store.GetRequest(r.ID)
	require.NoError(t, err)
	require.Equal(t, persistence.StatusTBD, got.Status)
	require.Empty(t, got.ErrorText)
}

func TestConfigSetRoundTrip(t *testing.T) {
	require.NoError(t, config.Load(t.TempDir()))

	require.NoError(t, runConfigSet(nil, []string{"poll", "7"}))
	require.Equal(t, 7, config.Get().PollIntervalSecs)

	require.NoError(t, runConfigSet(nil, []string{"pause", "true"}))
	require.True(t, config.Get().Paused)

	require.Error(t, runConfigSet(nil, []string{"poll", "abc"}))
	require.Error(t, runConfigSet(nil, []string{"bogus", "1"}))
}
