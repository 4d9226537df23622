package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"devloop/pkg/logx"
	"devloop/pkg/persistence"
	"devloop/pkg/phase"
)

// Learning caps keep prompts bounded as the learning tables grow. Most
// recent entries win.
const (
	maxProjectLearnings = 10
	maxGlobalLearnings  = 5
)

// Artifact filenames the plan phase produces in the working directory.
const (
	PlanFile     = "PLAN.md"
	TestplanFile = "TESTPLAN.md"
)

// Builder assembles the per-phase prompt and system prompt for a request.
type Builder struct {
	store    *persistence.Store
	renderer *Renderer
	logger   *logx.Logger
}

// NewBuilder creates a Builder over the given store.
func NewBuilder(store *persistence.Store) (*Builder, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &Builder{
		store:    store,
		renderer: renderer,
		logger:   logx.NewLogger("prompt"),
	}, nil
}

// Build renders the prompt for the request's current phase. workDir and
// commitBranch come pre-resolved from the processor's override chains.
func (b *Builder) Build(project *persistence.Project, req *persistence.Request, p phase.Phase, workDir, commitBranch string) (system, body string, err error) {
	ctx := &Context{
		ProjectName:    project.Name,
		ProjectVersion: project.Version,
		ProjectPhase:   project.Phase,
		ProjectPrompt:  b.projectPrompt(project),
		RequestName:    req.Name,
		RequestType:    req.Type,
		RequestPrompt:  req.Prompt,
		Phase:          string(p),
		WorkDir:        workDir,
		CommitBranch:   commitBranch,
		Today:          time.Now().Format("2006-01-02"),
	}

	if includesInfrastructure(p) {
		resolved, err := b.store.ResolveInfrastructure(req)
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve infrastructure: %w", err)
		}
		ctx.Infrastructure = FormatInfrastructure(resolved)
	}

	learnings, err := b.store.ListLearnings(project.ID)
	if err != nil {
		return "", "", fmt.Errorf("failed to load learnings: %w", err)
	}
	ctx.Learnings = FormatLearnings(learnings)

	// The plan phase writes these artifacts; later phases read them back.
	if p != phase.Plan {
		ctx.Plan = readArtifact(workDir, PlanFile)
	}
	if p == phase.Test {
		ctx.Testplan = readArtifact(workDir, TestplanFile)
	}
	if p == phase.Dev && req.TestRetries > 0 {
		ctx.ErrorText = req.ErrorText
	}

	system, err = b.renderer.Render(SystemTemplate, ctx)
	if err != nil {
		return "", "", err
	}
	body, err = b.renderer.RenderPhase(p, ctx)
	if err != nil {
		return "", "", err
	}
	return system, body, nil
}

// projectPrompt combines the project's augmentation text with the contents
// of its instruction file reference, when one is configured and readable.
func (b *Builder) projectPrompt(project *persistence.Project) string {
	parts := []string{}
	if project.PromptText != "" {
		parts = append(parts, project.PromptText)
	}
	if project.ClaudeMDRef != "" {
		content, err := os.ReadFile(project.ClaudeMDRef)
		if err != nil {
			b.logger.Warn("Could not read instruction file %s: %v", project.ClaudeMDRef, err)
		} else {
			parts = append(parts, strings.TrimSpace(string(content)))
		}
	}
	return strings.Join(parts, "\n\n")
}

// includesInfrastructure reports whether the phase prompt carries the
// infrastructure block. Verification happens against the deployed system,
// so verify gets its context from the deploy transcript instead.
func includesInfrastructure(p phase.Phase) bool {
	return p == phase.Plan || p == phase.Dev || p == phase.Deploy
}

// FormatInfrastructure renders resolved infrastructure as a bullet list in
// stable type order.
func FormatInfrastructure(resolved map[string]persistence.Infrastructure) string {
	if len(resolved) == 0 {
		return ""
	}
	types := make([]string, 0, len(resolved))
	for t := range resolved {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	for _, t := range types {
		infra := resolved[t]
		fmt.Fprintf(&b, "- %s: %s", infra.Type, infra.Provider)
		if infra.Value != "" {
			fmt.Fprintf(&b, " (%s)", infra.Value)
		}
		if infra.Note != "" {
			fmt.Fprintf(&b, " [%s]", infra.Note)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatLearnings renders learnings as two capped sections, project notes
// first. ListLearnings returns project rows before global rows.
func FormatLearnings(learnings []*persistence.Learning) string {
	var project, global []*persistence.Learning
	for _, l := range learnings {
		if l.ProjectID == persistence.GlobalProjectID {
			global = append(global, l)
		} else {
			project = append(project, l)
		}
	}
	project = tail(project, maxProjectLearnings)
	global = tail(global, maxGlobalLearnings)

	var b strings.Builder
	if len(project) > 0 {
		b.WriteString("Project learnings:\n")
		for _, l := range project {
			fmt.Fprintf(&b, "- %s\n", l.Description)
		}
	}
	if len(global) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Global learnings:\n")
		for _, l := range global {
			fmt.Fprintf(&b, "- %s\n", l.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func tail(learnings []*persistence.Learning, n int) []*persistence.Learning {
	if len(learnings) <= n {
		return learnings
	}
	return learnings[len(learnings)-n:]
}

func readArtifact(workDir, name string) string {
	content, err := os.ReadFile(filepath.Join(workDir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(content))
}
