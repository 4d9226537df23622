package wizard

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"devloop/pkg/config"
	"devloop/pkg/logx"
	"devloop/pkg/persistence"
)

// newTestWizard builds a wizard reading scripted answers, one per line.
// Secret prompts consume lines from the same script.
func newTestWizard(t *testing.T, input string) (*Wizard, *persistence.Store, *bytes.Buffer) {
	t.Helper()

	tempDir := t.TempDir()
	t.Setenv("ANTHROPIC_API_KEY", "")
	require.NoError(t, config.Load(tempDir))

	store, err := persistence.Open(filepath.Join(tempDir, "devloop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	out := &bytes.Buffer{}
	w := &Wizard{
		store:  store,
		in:     bufio.NewScanner(strings.NewReader(input)),
		out:    out,
		logger: logx.NewLogger("wizard"),
	}
	w.readSecret = func() (string, error) { return w.readLine(), nil }
	return w, store, out
}

func TestRunCreatesProjectAndRequest(t *testing.T) {
	script := strings.Join([]string{
		"sk-test-key",   // API key
		"alpha",         // project name
		"",              // version (default 0.1.0)
		"",              // project priority (default 5)
		"demo project",  // description
		"",              // code dir
		"1",             // compute: first option (local)
		"",              // storage: skip
		"",              // queue: skip
		"",              // access: skip
		"",              // ui: skip
		"first-feature", // request name
		"",              // change type (default new_feature)
		"3",             // request priority
		"",              // code dir override
		"add the thing", // description
		"",              // confirm create (default yes)
		"",              // request-level overrides (default no)
	}, "\n") + "\n"

	w, store, out := newTestWizard(t, script)

	req, err := w.Run()
	require.NoError(t, err)
	require.NotNil(t, req)
	require.NotZero(t, req.ID)

	require.Equal(t, "sk-test-key", config.Get().APIKey)

	project, err := store.GetProjectByName("alpha")
	require.NoError(t, err)
	require.Equal(t, "0.1.0", project.Version)
	require.Equal(t, 5, project.Priority)
	require.Equal(t, "demo project", project.Description)

	infra, err := store.ListInfrastructure(project.ID)
	require.NoError(t, err)
	require.Len(t, infra, 1)
	require.Equal(t, persistence.InfraCompute, infra[0].Type)
	require.Equal(t, persistence.ProviderLocal, infra[0].Provider)

	stored, err := store.GetRequest(req.ID)
	require.NoError(t, err)
	require.Equal(t, project.ID, stored.ProjectID)
	require.Equal(t, "first-feature", stored.Name)
	require.Equal(t, persistence.TypeNewFeature, stored.Type)
	require.Equal(t, 3, stored.Priority)
	require.Equal(t, persistence.StatusTBD, stored.Status)
	require.Equal(t, "add the thing", stored.Prompt)

	require.Contains(t, out.String(), "queued for project alpha")
}

func TestRunCancelledAtConfirmation(t *testing.T) {
	script := strings.Join([]string{
		"",          // API key skipped
		"1",         // select existing project
		"fix-thing", // request name
		"2",         // change type: bug fix
		"",          // priority
		"",          // code dir override
		"fix it",    // description
		"n",         // confirm: no
	}, "\n") + "\n"

	w, store, out := newTestWizard(t, script)
	require.NoError(t, store.CreateProject(&persistence.Project{Name: "alpha", Version: "0.1.0"}))

	req, err := w.Run()
	require.NoError(t, err)
	require.Nil(t, req)

	requests, err := store.ListRequests(0)
	require.NoError(t, err)
	require.Empty(t, requests)
	require.Contains(t, out.String(), "Cancelled")
}

func TestRunRequiresProjectName(t *testing.T) {
	script := "\n\n" // skip API key, empty project name
	w, _, _ := newTestWizard(t, script)

	_, err := w.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "project name")
}

func TestReadIntDefaultClamping(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"", 5},
		{"junk", 5},
		{"0", 1},
		{"99", 10},
		{"7", 7},
	}
	for _, tc := range cases {
		w := &Wizard{in: bufio.NewScanner(strings.NewReader(tc.input + "\n")), out: &bytes.Buffer{}}
		got := w.readIntDefault(5, 1, 10)
		require.Equal(t, tc.want, got, "input %q", tc.input)
	}
}
