// Package loop contains the request processor and the polling daemon that
// drives requests through the phase workflow.
package loop

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"devloop/pkg/config"
	"devloop/pkg/gateway"
	"devloop/pkg/logx"
	"devloop/pkg/persistence"
	"devloop/pkg/phase"
	"devloop/pkg/prompt"
)

// Outcome summarizes one Process call for the daemon's control flow.
type Outcome string

const (
	// OutcomeAborted means another loop won the planning claim; no side
	// effects were made.
	OutcomeAborted Outcome = "aborted"
	// OutcomeBackoff means a rate limit or transient failure reverted the
	// request to tbd; the daemon should enter its backoff window.
	OutcomeBackoff Outcome = "backoff"
	// OutcomeTimeout means the phase exceeded its budget; status is tmout.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeFatal means an unrecoverable failure; status is err.
	OutcomeFatal Outcome = "fatal"
	// OutcomeRetry means test failures regressed the request to dev.
	OutcomeRetry Outcome = "retry"
	// OutcomeAdvanced means the phase completed and the request moved on.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeCompleted means the request reached the terminal phase.
	OutcomeCompleted Outcome = "completed"
)

// docSaveThreshold is the transcript size above which phase output is
// archived to the docs directory.
const docSaveThreshold = 500

// Processor runs exactly one phase attempt for one request.
type Processor struct {
	store   *persistence.Store
	gateway gateway.Gateway
	builder *prompt.Builder
	logger  *logx.Logger
	loopID  string

	// claimJitter is the sleep between writing the planning claim and
	// re-reading it. Overridable in tests.
	claimJitter func() time.Duration
}

// NewProcessor creates a processor owned by the loop with the given identity.
func NewProcessor(store *persistence.Store, gw gateway.Gateway, loopID string) (*Processor, error) {
	builder, err := prompt.NewBuilder(store)
	if err != nil {
		return nil, err
	}
	return &Processor{
		store:   store,
		gateway: gw,
		builder: builder,
		logger:  logx.NewLogger("processor"),
		loopID:  loopID,
		claimJitter: func() time.Duration {
			return time.Duration(1+rand.Intn(2000)) * time.Millisecond
		},
	}, nil
}

// Process attempts one phase-unit of work for req. It makes exactly one
// final store mutation (plus the claim handshake and optional artifacts)
// and exactly one gateway invocation.
func (p *Processor) Process(ctx context.Context, req *persistence.Request) (Outcome, error) {
	current, err := phase.Parse(req.Phase)
	if err != nil {
		return OutcomeFatal, fmt.Errorf("request %d has invalid phase: %w", req.ID, err)
	}
	if current.Terminal() {
		return OutcomeAborted, fmt.Errorf("request %d is already complete", req.ID)
	}

	// Optimistic claim: write our marker, wait a short random interval,
	// re-read, and abort if another loop overwrote it in between.
	claim := persistence.PlanningClaim(p.loopID)
	if err := p.store.UpdateRequestStatus(req.ID, claim, req.ErrorText); err != nil {
		return OutcomeAborted, err
	}
	time.Sleep(p.claimJitter())
	status, err := p.store.GetRequestStatus(req.ID)
	if err != nil {
		return OutcomeAborted, err
	}
	if status != claim {
		p.logger.Info("Lost claim on request %d to %s, backing off", req.ID, status)
		return OutcomeAborted, nil
	}

	if err := p.store.UpdateRequestStatus(req.ID, persistence.StatusWIP, req.ErrorText); err != nil {
		return OutcomeAborted, err
	}

	project, err := p.store.GetProject(req.ProjectID)
	if err != nil {
		return p.fail(req, current, fmt.Errorf("failed to load project: %w", err))
	}

	workDir, err := resolveWorkDir(req, project)
	if err != nil {
		return p.fail(req, current, err)
	}

	resolved, err := p.store.ResolveInfrastructure(req)
	if err != nil {
		return p.fail(req, current, err)
	}
	commitEnabled, commitBranch := resolveCommitPolicy(req, project)

	system, body, err := p.builder.Build(project, req, current, workDir, commitBranch)
	if err != nil {
		return p.fail(req, current, fmt.Errorf("failed to build prompt: %w", err))
	}

	p.logger.Info("Processing request %d (%s) phase=%s project=%s",
		req.ID, req.Name, current, project.Name)

	result, invErr := p.gateway.Invoke(ctx, gateway.Invocation{
		Prompt:       body,
		SystemPrompt: system,
		WorkDir:      workDir,
		Capabilities: current.Capabilities(),
		Timeout:      current.Timeout(),
		Model:        config.Get().Model,
	})

	if invErr != nil {
		return p.handleInvokeError(req, current, project, invErr)
	}

	p.archiveTranscript(req, project, current, result.Transcript)

	if current == phase.Test {
		return p.handleTestResult(req, result, resolved, commitEnabled)
	}
	return p.advance(req, current, resolved, commitEnabled)
}

// handleInvokeError maps a classified gateway failure onto request state.
func (p *Processor) handleInvokeError(req *persistence.Request, current phase.Phase, project *persistence.Project, invErr error) (Outcome, error) {
	switch {
	case gateway.IsBackoff(invErr):
		// Retry without penalty: back to tbd, phase unchanged, no retry
		// counter change. The daemon arms its global backoff window.
		if err := p.store.FinishAttempt(req.ID, current, persistence.StatusTBD, req.TestRetries, ""); err != nil {
			return OutcomeFatal, err
		}
		p.logger.Warn("Transient failure on request %d, reverting to tbd: %v", req.ID, invErr)
		return OutcomeBackoff, nil

	case gateway.IsTimeout(invErr):
		if err := p.store.FinishAttempt(req.ID, current, persistence.StatusTimeout, req.TestRetries, invErr.Error()); err != nil {
			return OutcomeFatal, err
		}
		p.logger.Warn("Request %d timed out in phase %s", req.ID, current)
		return OutcomeTimeout, nil

	default:
		outcome, err := p.fail(req, current, invErr)
		if err != nil {
			return outcome, err
		}
		p.recordFailure(req, project, current, invErr)
		return outcome, nil
	}
}

// handleTestResult applies the bounded retry ladder for the test phase.
func (p *Processor) handleTestResult(req *persistence.Request, result *gateway.Result, resolved map[string]persistence.Infrastructure, commitEnabled bool) (Outcome, error) {
	summary := result.TestSummary
	if summary == nil {
		// No parseable summary counts as a failing run; the retry bound
		// still applies so a confused agent cannot loop forever.
		summary = &gateway.TestSummary{Failed: 1, FailedTests: []string{"(no structured test summary in output)"}}
	}

	if summary.AllPassed() {
		return p.advance(req, phase.Test, resolved, commitEnabled)
	}

	// The bound counts failing attempts: with a budget of 3, the third
	// failing run goes terminal instead of regressing again.
	maxRetries := config.Get().MaxTestRetries
	if req.TestRetries+1 < maxRetries {
		retries := req.TestRetries + 1
		if err := p.store.FinishAttempt(req.ID, phase.Dev, persistence.StatusTBD, retries, summary.String()); err != nil {
			return OutcomeFatal, err
		}
		p.logger.Info("Request %d test failures (%s), retry %d/%d, regressing to dev",
			req.ID, summary, retries, maxRetries)
		return OutcomeRetry, nil
	}

	// Retry budget exhausted: terminal err, phase stays put.
	if err := p.store.FinishAttempt(req.ID, phase.Test, persistence.StatusError, req.TestRetries, summary.String()); err != nil {
		return OutcomeFatal, err
	}
	p.logger.Error("Request %d exhausted test retries: %s", req.ID, summary)
	return OutcomeFatal, nil
}

// advance moves the request to its next phase, applying skip predicates
// freshly from the current infrastructure and commit policy.
func (p *Processor) advance(req *persistence.Request, current phase.Phase, resolved map[string]persistence.Infrastructure, commitEnabled bool) (Outcome, error) {
	next := phase.Advance(current, phase.SkipState{
		LocalOnly:     persistence.LocalOnly(resolved),
		CommitEnabled: commitEnabled,
	})

	status := persistence.StatusTBD
	outcome := OutcomeAdvanced
	if next.Terminal() {
		status = persistence.StatusDone
		outcome = OutcomeCompleted
	}

	// Leaving a successful phase clears the retry counter and error text.
	if err := p.store.FinishAttempt(req.ID, next, status, 0, ""); err != nil {
		return OutcomeFatal, err
	}
	p.logger.Info("Request %d advanced %s -> %s (%s)", req.ID, current, next, status)
	return outcome, nil
}

// fail marks the request err with the failure text, phase unchanged.
func (p *Processor) fail(req *persistence.Request, current phase.Phase, cause error) (Outcome, error) {
	if err := p.store.FinishAttempt(req.ID, current, persistence.StatusError, req.TestRetries, cause.Error()); err != nil {
		return OutcomeFatal, err
	}
	p.logger.Error("Request %d failed in phase %s: %v", req.ID, current, cause)
	return OutcomeFatal, nil
}

// recordFailure appends an error learning and, when enabled, synthesizes a
// remediation bug_fix request so the failure gets revisited.
func (p *Processor) recordFailure(req *persistence.Request, project *persistence.Project, current phase.Phase, cause error) {
	if project == nil {
		return
	}
	note := fmt.Sprintf("Request %q failed during %s: %v", req.Name, current, cause)
	if _, err := p.store.AddLearning(project.ID, note); err != nil {
		p.logger.Warn("Could not record failure learning: %v", err)
	}

	if !config.Get().SpawnFixRequest {
		return
	}
	fix := &persistence.Request{
		ProjectID: project.ID,
		Name:      fmt.Sprintf("fix: %s", req.Name),
		Type:      persistence.TypeBugFix,
		Prompt: fmt.Sprintf("Request %q (id %d) failed during the %s phase with:\n\n%v\n\nInvestigate and fix the underlying problem.",
			req.Name, req.ID, current, cause),
		Priority: req.Priority,
		CodeDir:  req.CodeDir,
	}
	if err := p.store.CreateRequest(fix); err != nil {
		p.logger.Warn("Could not create remediation request: %v", err)
	} else {
		p.logger.Info("Created remediation request %d for failed request %d", fix.ID, req.ID)
	}
}

// archiveTranscript saves substantial phase output under the docs dir and
// records the location on the request.
func (p *Processor) archiveTranscript(req *persistence.Request, project *persistence.Project, current phase.Phase, transcript string) {
	if len(transcript) <= docSaveThreshold {
		return
	}
	dir := filepath.Join(config.DocsDir(), project.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.logger.Warn("Could not create docs dir: %v", err)
		return
	}
	name := fmt.Sprintf("req%d-%s-%s.md", req.ID, current, time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(transcript), 0o644); err != nil {
		p.logger.Warn("Could not archive transcript: %v", err)
		return
	}
	if err := p.store.SetRequestDocPath(req.ID, path); err != nil {
		p.logger.Warn("Could not record doc path: %v", err)
	}
}

// resolveWorkDir applies the override chain: request, then project, then a
// directory named after the project under the current working directory.
// The directory is created if absent.
func resolveWorkDir(req *persistence.Request, project *persistence.Project) (string, error) {
	dir := req.CodeDir
	if dir == "" {
		dir = project.CodeDir
	}
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve working directory: %w", err)
		}
		dir = filepath.Join(cwd, project.Name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create working directory %s: %w", dir, err)
	}
	return dir, nil
}

// resolveCommitPolicy applies the commit override chain: request override,
// then project, then global settings. The branch falls back to the current
// branch when no explicit name is configured.
func resolveCommitPolicy(req *persistence.Request, project *persistence.Project) (enabled bool, branch string) {
	cfg := config.Get()

	switch req.CommitEnabled {
	case persistence.CommitDisabled:
		enabled = false
	case persistence.CommitForced:
		enabled = true
	default:
		if project.CommitEnabled == persistence.CommitDisabled {
			enabled = false
		} else {
			enabled = cfg.CommitEnabled
		}
	}

	branch = req.CommitBranch
	if branch == "" && project.CommitBranchMode == config.CommitBranchOther {
		branch = project.CommitBranchName
	}
	if branch == "" && cfg.CommitBranchMode == config.CommitBranchOther {
		branch = cfg.CommitBranchName
	}
	if strings.TrimSpace(branch) == "" {
		branch = "the current branch"
	}
	return enabled, branch
}
