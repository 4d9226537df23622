// Package phase defines the request workflow state machine.
//
// A request moves through an ordered sequence of phases, each with a fixed
// capability allow-list, a wall-clock timeout, and a prompt template. The
// registry here is static and total: every accessor switches exhaustively
// over the phase set, so adding a phase is a compile-checked exercise.
package phase

import (
	"fmt"
	"time"
)

// Phase is a named stage in a request's workflow.
type Phase string

// Workflow phases in execution order.
const (
	Plan     Phase = "plan"
	Dev      Phase = "dev"
	Test     Phase = "test"
	Deploy   Phase = "deploy"
	Verify   Phase = "verify"
	Document Phase = "document"
	Commit   Phase = "commit"
	Complete Phase = "complete"
)

// All returns every phase in workflow order, terminal phase last.
func All() []Phase {
	return []Phase{Plan, Dev, Test, Deploy, Verify, Document, Commit, Complete}
}

// Parse converts a string to a Phase, rejecting unknown values.
func Parse(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase: %q", s)
	}
	return p, nil
}

// Valid reports whether p is a registered phase.
func (p Phase) Valid() bool {
	switch p {
	case Plan, Dev, Test, Deploy, Verify, Document, Commit, Complete:
		return true
	}
	return false
}

// Terminal reports whether p is the terminal phase.
func (p Phase) Terminal() bool {
	return p == Complete
}

func (p Phase) String() string {
	return string(p)
}

// Order returns the phase's ordinal in the workflow. Used by the scheduler
// to process work closer to completion first. Complete sorts highest but is
// filtered out of scheduling before ordering matters.
func (p Phase) Order() int {
	switch p {
	case Plan:
		return 1
	case Dev:
		return 2
	case Test:
		return 3
	case Deploy:
		return 4
	case Verify:
		return 5
	case Document:
		return 6
	case Commit:
		return 7
	case Complete:
		return 8
	}
	return 0
}

// Next returns the phase that follows p in the raw ordering, without skip
// resolution. Complete is a fixed point.
func (p Phase) Next() Phase {
	switch p {
	case Plan:
		return Dev
	case Dev:
		return Test
	case Test:
		return Deploy
	case Deploy:
		return Verify
	case Verify:
		return Document
	case Document:
		return Commit
	case Commit:
		return Complete
	case Complete:
		return Complete
	}
	return Complete
}

// Capabilities returns the tool allow-list the agent receives for p.
// Earlier phases are read-only; write and execute capabilities open up
// from dev onward.
func (p Phase) Capabilities() []string {
	switch p {
	case Plan:
		return []string{"Read", "Glob", "Grep"}
	case Dev:
		return []string{"Read", "Glob", "Grep", "Write", "Edit", "Bash"}
	case Test:
		return []string{"Read", "Bash", "Glob", "Grep"}
	case Deploy:
		return []string{"Bash"}
	case Verify:
		return []string{"Read", "Bash", "WebFetch", "Glob", "Grep"}
	case Document:
		return []string{"Read", "Write"}
	case Commit:
		return []string{"Bash", "Read", "Grep"}
	case Complete:
		return nil
	}
	return nil
}

// Timeout returns the maximum wall-clock budget for one agent invocation
// in phase p.
func (p Phase) Timeout() time.Duration {
	switch p {
	case Plan:
		return 30 * time.Minute
	case Dev:
		return 4 * time.Hour
	case Test:
		return time.Hour
	case Deploy:
		return 30 * time.Minute
	case Verify:
		return 30 * time.Minute
	case Document:
		return 30 * time.Minute
	case Commit:
		return 10 * time.Minute
	case Complete:
		return 0
	}
	return 0
}

// Template returns the prompt template identifier for p.
func (p Phase) Template() string {
	if p == Complete {
		return ""
	}
	return string(p) + ".tpl.md"
}

// SkipState carries the resolved policy inputs for skip decisions. It is
// computed freshly at every advance so infrastructure or commit-policy
// changes made mid-flight take effect on the next transition.
type SkipState struct {
	// LocalOnly is true when the resolved infrastructure has no non-local
	// target, which makes deploy and verify no-ops.
	LocalOnly bool
	// CommitEnabled is the resolved commit policy for the request.
	CommitEnabled bool
}

func (s SkipState) skips(p Phase) bool {
	switch p {
	case Deploy, Verify:
		return s.LocalOnly
	case Commit:
		return !s.CommitEnabled
	case Plan, Dev, Test, Document, Complete:
		return false
	}
	return false
}

// Advance returns the phase that follows p after applying skip predicates.
// With local-only infrastructure a request jumps test to document, and with
// commits disabled document leads straight to complete.
func Advance(p Phase, state SkipState) Phase {
	next := p.Next()
	for !next.Terminal() && state.skips(next) {
		next = next.Next()
	}
	return next
}
