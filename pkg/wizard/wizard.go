// Package wizard implements the interactive setup flow: it walks the user
// through creating (or selecting) a project, capturing infrastructure
// preferences, and queueing the first request for the development loop.
package wizard

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"devloop/pkg/config"
	"devloop/pkg/logx"
	"devloop/pkg/persistence"
)

// Wizard drives the interactive project and request setup.
type Wizard struct {
	store  *persistence.Store
	in     *bufio.Scanner
	out    io.Writer
	logger *logx.Logger

	// readSecret reads sensitive input without echo. Swapped out in tests
	// and when stdin is not a terminal.
	readSecret func() (string, error)
}

// New creates a wizard reading from stdin and writing to stdout.
func New(store *persistence.Store) *Wizard {
	w := &Wizard{
		store:  store,
		in:     bufio.NewScanner(os.Stdin),
		out:    os.Stdout,
		logger: logx.NewLogger("wizard"),
	}
	w.readSecret = func() (string, error) {
		if term.IsTerminal(syscall.Stdin) {
			raw, err := term.ReadPassword(syscall.Stdin)
			fmt.Fprintln(w.out)
			if err != nil {
				return "", fmt.Errorf("failed to read secret: %w", err)
			}
			return strings.TrimSpace(string(raw)), nil
		}
		return w.readLine(), nil
	}
	return w
}

// Run executes the full flow and returns the created request.
func (w *Wizard) Run() (*persistence.Request, error) {
	fmt.Fprintln(w.out, "devloop setup wizard")
	fmt.Fprintln(w.out, "This will set up a project and queue its first request.")
	fmt.Fprintln(w.out)

	if err := w.ensureAPIKey(); err != nil {
		return nil, err
	}

	project, err := w.selectProject()
	if err != nil {
		return nil, err
	}

	req, err := w.buildRequest(project)
	if err != nil {
		return nil, err
	}

	if !w.confirm(project, req) {
		fmt.Fprintln(w.out, "Cancelled, nothing was created.")
		return nil, nil
	}

	if err := w.store.CreateRequest(req); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for _, infra := range w.collectRequestInfra(req) {
		if err := w.store.UpsertRequestInfrastructure(infra); err != nil {
			return nil, fmt.Errorf("failed to store infrastructure preference: %w", err)
		}
	}

	w.showNextSteps(project, req)
	return req, nil
}

// ensureAPIKey prompts for an Anthropic API key when neither the environment
// nor the stored settings provide one.
func (w *Wizard) ensureAPIKey() error {
	if config.Get().ResolveAPIKey() != "" {
		return nil
	}

	fmt.Fprint(w.out, "Anthropic API key (stored in settings.yaml, Enter to skip): ")
	key, err := w.readSecret()
	if err != nil {
		return err
	}
	if key == "" {
		fmt.Fprintln(w.out, "No key stored. Set ANTHROPIC_API_KEY before starting the daemon.")
		return nil
	}

	if err := config.Update(func(s *config.Settings) {
		s.APIKey = key
	}); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	fmt.Fprintln(w.out, "API key stored.")
	return nil
}

// selectProject offers existing projects or creates a new one.
func (w *Wizard) selectProject() (*persistence.Project, error) {
	projects, err := w.store.ListProjects()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	if len(projects) == 0 {
		fmt.Fprintln(w.out, "No projects found. Let's create one.")
		return w.createProject()
	}

	fmt.Fprintln(w.out, "Projects:")
	for i, p := range projects {
		fmt.Fprintf(w.out, "  %d) %s (%s)\n", i+1, p.Name, p.Version)
	}
	fmt.Fprintf(w.out, "  %d) [create new project]\n", len(projects)+1)
	fmt.Fprintf(w.out, "Select a project [1]: ")

	choice := w.readIntDefault(1, 1, len(projects)+1)
	if choice == len(projects)+1 {
		return w.createProject()
	}
	return projects[choice-1], nil
}

func (w *Wizard) createProject() (*persistence.Project, error) {
	name := w.prompt("Project name", "")
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}

	version := w.prompt("Project version", "0.1.0")

	fmt.Fprint(w.out, "Project priority (1=highest, 10=lowest) [5]: ")
	priority := w.readIntDefault(5, 1, 10)

	description := w.prompt("Project description (optional)", "")
	codeDir := w.prompt("Code directory (optional, Enter to skip)", "")

	project := &persistence.Project{
		Name:        name,
		Version:     version,
		Priority:    priority,
		Description: description,
		CodeDir:     codeDir,
	}
	if err := w.store.CreateProject(project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	fmt.Fprintf(w.out, "Project %q created (ID %d).\n\n", project.Name, project.ID)

	w.askProjectInfrastructure(project)
	return project, nil
}

// askProjectInfrastructure walks the infra categories using the option
// catalog. Answers become project-level defaults.
func (w *Wizard) askProjectInfrastructure(project *persistence.Project) {
	fmt.Fprintln(w.out, "Infrastructure preferences (Enter to skip a category):")

	for _, infraType := range persistence.InfraTypes() {
		options, err := w.store.ListInfraOptions(infraType)
		if err != nil {
			w.logger.Warn("Failed to load %s options: %v", infraType, err)
			continue
		}
		if len(options) == 0 {
			continue
		}

		fmt.Fprintf(w.out, "  %s:\n", infraType)
		for i, opt := range options {
			fmt.Fprintf(w.out, "    %d) %s: %s\n", i+1, opt.Provider, opt.Description)
		}
		fmt.Fprintf(w.out, "  Choice for %s [skip]: ", infraType)

		choice := w.readIntDefault(0, 1, len(options))
		if choice == 0 {
			continue
		}

		opt := options[choice-1]
		err = w.store.UpsertInfrastructure(&persistence.Infrastructure{
			ProjectID: project.ID,
			Type:      opt.Type,
			Provider:  opt.Provider,
			Note:      opt.Description,
		})
		if err != nil {
			w.logger.Warn("Failed to store %s preference: %v", infraType, err)
		}
	}
	fmt.Fprintln(w.out)
}

// buildRequest gathers the first request's fields without persisting yet.
func (w *Wizard) buildRequest(project *persistence.Project) (*persistence.Request, error) {
	name := w.prompt("Request name", "")
	if name == "" {
		return nil, fmt.Errorf("request name is required")
	}

	fmt.Fprintln(w.out, "Change type:")
	fmt.Fprintln(w.out, "  1) New feature")
	fmt.Fprintln(w.out, "  2) Bug fix")
	fmt.Fprintln(w.out, "  3) Enhancement")
	fmt.Fprint(w.out, "Select [1]: ")
	reqType := persistence.TypeNewFeature
	switch w.readIntDefault(1, 1, 3) {
	case 2:
		reqType = persistence.TypeBugFix
	case 3:
		reqType = persistence.TypeEnhancement
	}

	fmt.Fprint(w.out, "Priority (1=highest, 10=lowest) [5]: ")
	priority := w.readIntDefault(5, 1, 10)

	if project.CodeDir != "" {
		fmt.Fprintf(w.out, "(Project default code dir: %s)\n", project.CodeDir)
	}
	codeDir := w.prompt("Code directory override (optional, Enter for project default)", "")

	fmt.Fprintln(w.out, "Describe what you want done. Be specific; this becomes the working prompt.")
	promptText := w.prompt("Description", "")
	if promptText == "" {
		promptText = "No description provided."
	}

	return &persistence.Request{
		ProjectID: project.ID,
		Name:      name,
		Type:      reqType,
		Priority:  priority,
		CodeDir:   codeDir,
		Prompt:    promptText,
	}, nil
}

// collectRequestInfra asks for request-level overrides on non-bugfix work.
func (w *Wizard) collectRequestInfra(req *persistence.Request) []*persistence.RequestInfrastructure {
	if req.Type == persistence.TypeBugFix {
		return nil
	}

	fmt.Fprint(w.out, "Add request-level infrastructure overrides? [y/N]: ")
	if !strings.EqualFold(w.readLine(), "y") {
		return nil
	}

	var overrides []*persistence.RequestInfrastructure
	for _, infraType := range persistence.InfraTypes() {
		options, err := w.store.ListInfraOptions(infraType)
		if err != nil || len(options) == 0 {
			continue
		}
		fmt.Fprintf(w.out, "  %s:\n", infraType)
		for i, opt := range options {
			fmt.Fprintf(w.out, "    %d) %s: %s\n", i+1, opt.Provider, opt.Description)
		}
		fmt.Fprintf(w.out, "  Choice for %s [skip]: ", infraType)
		choice := w.readIntDefault(0, 1, len(options))
		if choice == 0 {
			continue
		}
		opt := options[choice-1]
		overrides = append(overrides, &persistence.RequestInfrastructure{
			RequestID: req.ID,
			Type:      opt.Type,
			Provider:  opt.Provider,
			Note:      opt.Description,
		})
	}
	return overrides
}

func (w *Wizard) confirm(project *persistence.Project, req *persistence.Request) bool {
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Review:")
	fmt.Fprintf(w.out, "  Project:  %s (%s)\n", project.Name, project.Version)
	fmt.Fprintf(w.out, "  Request:  %s\n", req.Name)
	fmt.Fprintf(w.out, "  Type:     %s\n", req.Type)
	fmt.Fprintf(w.out, "  Priority: %d\n", req.Priority)
	if req.CodeDir != "" {
		fmt.Fprintf(w.out, "  Code dir: %s\n", req.CodeDir)
	} else if project.CodeDir != "" {
		fmt.Fprintf(w.out, "  Code dir: %s (from project)\n", project.CodeDir)
	}
	fmt.Fprintf(w.out, "  Prompt:   %s\n", firstLine(req.Prompt))
	fmt.Fprint(w.out, "Create this request? [Y/n]: ")
	return !strings.EqualFold(w.readLine(), "n")
}

func (w *Wizard) showNextSteps(project *persistence.Project, req *persistence.Request) {
	fmt.Fprintln(w.out)
	fmt.Fprintf(w.out, "Request %d queued for project %s.\n", req.ID, project.Name)
	fmt.Fprintln(w.out, "A running daemon will pick it up on its next poll. Otherwise:")
	fmt.Fprintln(w.out, "  devloop daemon start")
	fmt.Fprintln(w.out, "  devloop status")
	fmt.Fprintf(w.out, "  devloop request show %d\n", req.ID)
}

// prompt prints "label [default]: " and returns the entered line, or the
// default when the line is empty.
func (w *Wizard) prompt(label, def string) string {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", label)
	}
	line := w.readLine()
	if line == "" {
		return def
	}
	return line
}

func (w *Wizard) readLine() string {
	if !w.in.Scan() {
		return ""
	}
	return strings.TrimSpace(w.in.Text())
}

// readIntDefault parses the next line as an integer in [min, max]. Empty or
// unparseable input yields def; out-of-range values clamp.
func (w *Wizard) readIntDefault(def, min, max int) int {
	line := w.readLine()
	if line == "" {
		return def
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
