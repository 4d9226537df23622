package phase

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	p, err := Parse("dev")
	if err != nil {
		t.Fatalf("Parse(dev) failed: %v", err)
	}
	if p != Dev {
		t.Errorf("Expected %v, got %v", Dev, p)
	}

	if _, err := Parse("compile"); err == nil {
		t.Error("Expected error for unknown phase")
	}
	if _, err := Parse(""); err == nil {
		t.Error("Expected error for empty phase")
	}
}

func TestNextCoversWorkflow(t *testing.T) {
	want := map[Phase]Phase{
		Plan:     Dev,
		Dev:      Test,
		Test:     Deploy,
		Deploy:   Verify,
		Verify:   Document,
		Document: Commit,
		Commit:   Complete,
		Complete: Complete,
	}
	for p, expected := range want {
		if got := p.Next(); got != expected {
			t.Errorf("%v.Next() = %v, want %v", p, got, expected)
		}
	}
}

func TestOrderIsStrictlyIncreasing(t *testing.T) {
	phases := All()
	for i := 1; i < len(phases); i++ {
		if phases[i].Order() <= phases[i-1].Order() {
			t.Errorf("Order not increasing at %v (%d) vs %v (%d)",
				phases[i-1], phases[i-1].Order(), phases[i], phases[i].Order())
		}
	}
}

func TestCapabilitiesPerPhase(t *testing.T) {
	// Plan is read-only.
	for _, cap := range Plan.Capabilities() {
		if cap == "Write" || cap == "Edit" || cap == "Bash" {
			t.Errorf("Plan phase must not grant %s", cap)
		}
	}

	hasCap := func(p Phase, name string) bool {
		for _, c := range p.Capabilities() {
			if c == name {
				return true
			}
		}
		return false
	}

	if !hasCap(Dev, "Write") || !hasCap(Dev, "Bash") {
		t.Error("Dev phase must grant Write and Bash")
	}
	if hasCap(Test, "Write") {
		t.Error("Test phase must not grant Write")
	}
	if !hasCap(Verify, "WebFetch") {
		t.Error("Verify phase must grant WebFetch")
	}
	if Complete.Capabilities() != nil {
		t.Error("Complete phase must grant nothing")
	}
}

func TestTimeouts(t *testing.T) {
	if Dev.Timeout() != 4*time.Hour {
		t.Errorf("Dev timeout = %v, want 4h", Dev.Timeout())
	}
	if Commit.Timeout() != 10*time.Minute {
		t.Errorf("Commit timeout = %v, want 10m", Commit.Timeout())
	}
	for _, p := range All() {
		if p != Complete && p.Timeout() <= 0 {
			t.Errorf("%v has no timeout budget", p)
		}
	}
}

func TestAdvanceNoSkips(t *testing.T) {
	state := SkipState{LocalOnly: false, CommitEnabled: true}
	if got := Advance(Test, state); got != Deploy {
		t.Errorf("Advance(test) = %v, want deploy", got)
	}
	if got := Advance(Commit, state); got != Complete {
		t.Errorf("Advance(commit) = %v, want complete", got)
	}
}

func TestAdvanceSkipsDeployVerifyWhenLocal(t *testing.T) {
	state := SkipState{LocalOnly: true, CommitEnabled: true}
	if got := Advance(Test, state); got != Document {
		t.Errorf("Advance(test, local) = %v, want document", got)
	}
	// Deploy and verify are never traversed.
	for p := Plan; !p.Terminal(); p = Advance(p, state) {
		if p == Deploy || p == Verify {
			t.Fatalf("Local-only workflow reached %v", p)
		}
	}
}

func TestAdvanceSkipsCommitWhenDisabled(t *testing.T) {
	state := SkipState{LocalOnly: false, CommitEnabled: false}
	if got := Advance(Document, state); got != Complete {
		t.Errorf("Advance(document, no-commit) = %v, want complete", got)
	}
}

func TestAdvanceChainedSkips(t *testing.T) {
	// Local target with commits disabled jumps test straight to document,
	// then document straight to complete.
	state := SkipState{LocalOnly: true, CommitEnabled: false}
	if got := Advance(Test, state); got != Document {
		t.Errorf("Advance(test) = %v, want document", got)
	}
	if got := Advance(Document, state); got != Complete {
		t.Errorf("Advance(document) = %v, want complete", got)
	}
}

func TestTemplateNames(t *testing.T) {
	if Plan.Template() != "plan.tpl.md" {
		t.Errorf("unexpected template name %q", Plan.Template())
	}
	if Complete.Template() != "" {
		t.Error("Complete phase has no template")
	}
}
