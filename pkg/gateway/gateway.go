// Package gateway abstracts the external AI coding agent. The processor
// hands it a rendered prompt plus a capability allow-list and timeout, and
// gets back a transcript or a classified failure. This is the loop's only
// suspension point.
package gateway

import (
	"context"
	"time"
)

// Invocation describes one phase-unit of agent work.
type Invocation struct {
	// Prompt is the fully rendered phase prompt.
	Prompt string
	// SystemPrompt frames the agent's role and constraints.
	SystemPrompt string
	// WorkDir is the working directory the agent operates in.
	WorkDir string
	// Model overrides the configured model when non-empty.
	Model string
	// Capabilities is the tool allow-list for the current phase.
	Capabilities []string
	// Timeout bounds the invocation wall-clock time.
	Timeout time.Duration
}

// Result is a successful agent invocation outcome.
type Result struct {
	// Transcript is the agent's full text output.
	Transcript string
	// TestSummary is present when the transcript carried a structured
	// pass/fail summary block.
	TestSummary *TestSummary
	// StopReason is the upstream completion reason, for diagnostics.
	StopReason string
}

// Gateway invokes the external coding agent. Failures are returned as
// *Error with a classified type; callers branch on IsBackoff/IsTimeout.
type Gateway interface {
	Invoke(ctx context.Context, inv Invocation) (*Result, error)
}
