package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTestSummaryFencedBlock(t *testing.T) {
	transcript := "Ran the suite.\n```json\n" +
		`{"total": 12, "passed": 10, "failed": 2, "failed_tests": ["TestA", "TestB"]}` +
		"\n```\nDone."

	ts, err := ParseTestSummary(transcript)
	require.NoError(t, err)
	assert.Equal(t, 12, ts.Total)
	assert.Equal(t, 10, ts.Passed)
	assert.Equal(t, 2, ts.Failed)
	assert.Equal(t, []string{"TestA", "TestB"}, ts.FailedTests)
	assert.False(t, ts.AllPassed())
}

func TestParseTestSummaryLastBlockWins(t *testing.T) {
	transcript := "First attempt:\n```json\n" +
		`{"total": 5, "passed": 3, "failed": 2}` +
		"\n```\nAfter a fix:\n```json\n" +
		`{"total": 5, "passed": 5, "failed": 0}` +
		"\n```"

	ts, err := ParseTestSummary(transcript)
	require.NoError(t, err)
	assert.Equal(t, 5, ts.Passed)
	assert.True(t, ts.AllPassed())
}

func TestParseTestSummaryBareJSON(t *testing.T) {
	transcript := `All green. {"total": 3, "passed": 3, "failed": 0}`

	ts, err := ParseTestSummary(transcript)
	require.NoError(t, err)
	assert.True(t, ts.AllPassed())
	assert.Equal(t, 3, ts.Total)
}

func TestParseTestSummarySkipsUnrelatedJSON(t *testing.T) {
	transcript := "```json\n{\"note\": \"not a summary\"}\n```\n" +
		"```json\n{\"total\": 2, \"passed\": 1, \"failed\": 1}\n```"

	ts, err := ParseTestSummary(transcript)
	require.NoError(t, err)
	assert.Equal(t, 1, ts.Failed)
}

func TestParseTestSummaryMissing(t *testing.T) {
	_, err := ParseTestSummary("no structured output here")
	assert.Error(t, err)

	_, err = ParseTestSummary("")
	assert.Error(t, err)
}

func TestTestSummaryString(t *testing.T) {
	ts := &TestSummary{Total: 4, Passed: 3, Failed: 1, FailedTests: []string{"TestX"}}
	assert.Contains(t, ts.String(), "TestX")
	assert.Contains(t, ts.String(), "3/4")
}
