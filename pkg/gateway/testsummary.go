package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TestSummary is the structured pass/fail outcome the test phase prompt
// asks the agent to emit as a fenced JSON block. It drives the
// retry-vs-advance decision.
type TestSummary struct {
	FailedTests []string `json:"failed_tests,omitempty"`
	Total       int      `json:"total"`
	Passed      int      `json:"passed"`
	Failed      int      `json:"failed"`
}

// AllPassed reports whether the run had no failures.
func (ts *TestSummary) AllPassed() bool {
	return ts.Failed == 0 && len(ts.FailedTests) == 0
}

func (ts *TestSummary) String() string {
	if len(ts.FailedTests) > 0 {
		return fmt.Sprintf("%d/%d passed, failed: %s", ts.Passed, ts.Total, strings.Join(ts.FailedTests, ", "))
	}
	return fmt.Sprintf("%d/%d passed", ts.Passed, ts.Total)
}

// ParseTestSummary extracts the last structured summary block from a
// transcript. Agents occasionally echo the requested format while thinking,
// so the last parseable block wins.
func ParseTestSummary(transcript string) (*TestSummary, error) {
	blocks := jsonBlocks(transcript)
	for i := len(blocks) - 1; i >= 0; i-- {
		var ts TestSummary
		if err := json.Unmarshal([]byte(blocks[i]), &ts); err != nil {
			continue
		}
		if ts.Total == 0 && ts.Passed == 0 && ts.Failed == 0 && len(ts.FailedTests) == 0 {
			continue
		}
		return &ts, nil
	}
	return nil, fmt.Errorf("no test summary block found in transcript")
}

// jsonBlocks returns the contents of fenced ```json blocks, falling back to
// bare top-level JSON objects when the transcript has no fences.
func jsonBlocks(transcript string) []string {
	var blocks []string

	rest := transcript
	for {
		start := strings.Index(rest, "```json")
		if start == -1 {
			break
		}
		rest = rest[start+len("```json"):]
		end := strings.Index(rest, "```")
		if end == -1 {
			break
		}
		blocks = append(blocks, strings.TrimSpace(rest[:end]))
		rest = rest[end+3:]
	}
	if len(blocks) > 0 {
		return blocks
	}

	// No fences: try balanced brace spans.
	depth := 0
	start := -1
	for i, c := range transcript {
		switch c {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					blocks = append(blocks, transcript[start:i+1])
				}
			}
		}
	}
	return blocks
}
