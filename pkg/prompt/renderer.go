// Package prompt renders per-phase agent prompts from embedded templates.
// Substitution goes through a typed Context so a missing placeholder is a
// compile or test failure, not a runtime surprise.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"devloop/pkg/phase"
)

//go:embed *.tpl.md
var templateFS embed.FS

// SystemTemplate frames the agent's role; it is sent as the system prompt
// alongside every phase template.
const SystemTemplate = "system.tpl.md"

// Context holds every value the phase templates can reference.
type Context struct {
	ProjectName    string
	ProjectVersion string
	ProjectPhase   string
	ProjectPrompt  string // per-project prompt augmentation text
	RequestName    string
	RequestType    string
	RequestPrompt  string
	Phase          string
	WorkDir        string
	Infrastructure string // formatted block, empty when not applicable
	Learnings      string // formatted block, empty when none
	Plan           string // PLAN.md content for dev and later phases
	Testplan       string // TESTPLAN.md content for the test phase
	CommitBranch   string
	ErrorText      string // last recorded error, shown when regressing
	Today          string
}

// Renderer caches the parsed phase templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses all embedded templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}

	names := []string{SystemTemplate}
	for _, p := range phase.All() {
		if p.Terminal() {
			continue
		}
		names = append(names, p.Template())
	}

	for _, name := range names {
		content, err := templateFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render renders the named template with the given context.
func (r *Renderer) Render(name string, ctx *Context) (string, error) {
	tmpl, exists := r.templates[name]
	if !exists {
		return "", fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderPhase renders the template registered for the given phase.
func (r *Renderer) RenderPhase(p phase.Phase, ctx *Context) (string, error) {
	if p.Terminal() {
		return "", fmt.Errorf("phase %s has no template", p)
	}
	return r.Render(p.Template(), ctx)
}
