package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"devloop/pkg/phase"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

func now() time.Time {
	return time.Now().UTC()
}

// --- Projects ---

// CreateProject inserts a new project and fills in its assigned ID.
// Name must be unique and non-empty; priority defaults to 5.
func (s *Store) CreateProject(p *Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project name must not be empty")
	}
	if p.Priority == 0 {
		p.Priority = 5
	}
	if p.Priority < 1 || p.Priority > 10 {
		return fmt.Errorf("project priority must be 1-10, got %d", p.Priority)
	}
	if p.Phase == "" {
		p.Phase = string(phase.Plan)
	}
	// Zero means "not specified" at creation time; explicit disables go
	// through UpdateProject.
	if p.CommitEnabled == 0 {
		p.CommitEnabled = CommitInherit
	}
	if p.CommitEnabled != CommitInherit {
		return fmt.Errorf("project commit_enabled must be 0 or %d at creation, got %d", CommitInherit, p.CommitEnabled)
	}
	p.TouchedAt = now()

	result, err := s.db.Exec(`
		INSERT INTO projects (
			name, version, priority, phase, description, code_dir,
			prompt_text, claude_md_ref, commit_enabled, commit_branch_mode,
			commit_branch_name, touched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Version, p.Priority, p.Phase, p.Description, p.CodeDir,
		p.PromptText, p.ClaudeMDRef, p.CommitEnabled, p.CommitBranchMode,
		p.CommitBranchName, p.TouchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project %q: %w", p.Name, err)
	}
	p.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read project id: %w", err)
	}
	return nil
}

const projectColumns = `id, name, version, priority, phase, description, code_dir,
	prompt_text, claude_md_ref, commit_enabled, commit_branch_mode,
	commit_branch_name, touched_at`

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var p Project
	err := row.Scan(
		&p.ID, &p.Name, &p.Version, &p.Priority, &p.Phase, &p.Description,
		&p.CodeDir, &p.PromptText, &p.ClaudeMDRef, &p.CommitEnabled,
		&p.CommitBranchMode, &p.CommitBranchName, &p.TouchedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProject returns the project with the given id.
func (s *Store) GetProject(id int64) (*Project, error) {
	row := s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %d: %w", id, err)
	}
	return p, nil
}

// GetProjectByName returns the project with the given unique name.
func (s *Store) GetProjectByName(name string) (*Project, error) {
	row := s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE name = ?`, name)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %q: %w", name, err)
	}
	return p, nil
}

// ListProjects returns all projects ordered by priority then name.
func (s *Store) ListProjects() ([]*Project, error) {
	rows, err := s.db.Query(`SELECT ` + projectColumns + ` FROM projects ORDER BY priority ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject writes all mutable project fields and refreshes the
// touch timestamp.
func (s *Store) UpdateProject(p *Project) error {
	p.TouchedAt = now()
	result, err := s.db.Exec(`
		UPDATE projects SET
			name = ?, version = ?, priority = ?, phase = ?, description = ?,
			code_dir = ?, prompt_text = ?, claude_md_ref = ?, commit_enabled = ?,
			commit_branch_mode = ?, commit_branch_name = ?, touched_at = ?
		WHERE id = ?`,
		p.Name, p.Version, p.Priority, p.Phase, p.Description, p.CodeDir,
		p.PromptText, p.ClaudeMDRef, p.CommitEnabled, p.CommitBranchMode,
		p.CommitBranchName, p.TouchedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project %d: %w", p.ID, err)
	}
	return requireRow(result, fmt.Sprintf("project %d", p.ID))
}

// DeleteProject removes a project; requests, infrastructure, and request
// overrides cascade. Learnings reference the project id without a foreign
// key so global rows can use the sentinel, so they are swept explicitly.
func (s *Store) DeleteProject(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM learnings WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete learnings for project %d: %w", id, err)
	}
	result, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project %d: %w", id, err)
	}
	if err := requireRow(result, fmt.Sprintf("project %d", id)); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Requests ---

// CreateRequest validates and inserts a new request. Requests always start
// in the plan phase with status tbd; priority defaults to 5.
func (s *Store) CreateRequest(r *Request) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("request name must not be empty")
	}
	if r.Type == "" {
		r.Type = TypeNewFeature
	}
	if !IsValidRequestType(r.Type) {
		return fmt.Errorf("invalid request type: %q", r.Type)
	}
	if r.Priority == 0 {
		r.Priority = 5
	}
	if r.Priority < 1 || r.Priority > 10 {
		return fmt.Errorf("request priority must be 1-10, got %d", r.Priority)
	}
	// Zero means "not specified" at creation time; explicit overrides go
	// through UpdateRequest.
	if r.CommitEnabled == 0 {
		r.CommitEnabled = CommitInherit
	}
	if r.CommitEnabled != CommitInherit && r.CommitEnabled != CommitForced {
		return fmt.Errorf("request commit_enabled must be 0, %d, or %d at creation, got %d",
			CommitInherit, CommitForced, r.CommitEnabled)
	}
	if _, err := s.GetProject(r.ProjectID); err != nil {
		return fmt.Errorf("request project: %w", err)
	}

	r.Status = StatusTBD
	r.Phase = string(phase.Plan)
	r.TestRetries = 0
	r.TouchedAt = now()

	result, err := s.db.Exec(`
		INSERT INTO requests (
			project_id, name, type, status, phase, prompt, priority, code_dir,
			plan_path, testplan_path, doc_path, test_retries, error_text,
			commit_enabled, commit_branch, touched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ProjectID, r.Name, r.Type, r.Status, r.Phase, r.Prompt, r.Priority,
		r.CodeDir, r.PlanPath, r.TestplanPath, r.DocPath, r.TestRetries,
		r.ErrorText, r.CommitEnabled, r.CommitBranch, r.TouchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create request %q: %w", r.Name, err)
	}
	r.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read request id: %w", err)
	}
	return nil
}

const requestColumns = `id, project_id, name, type, status, phase, prompt, priority,
	code_dir, plan_path, testplan_path, doc_path, test_retries, error_text,
	commit_enabled, commit_branch, touched_at`

func scanRequest(row interface{ Scan(...any) error }) (*Request, error) {
	var r Request
	err := row.Scan(
		&r.ID, &r.ProjectID, &r.Name, &r.Type, &r.Status, &r.Phase, &r.Prompt,
		&r.Priority, &r.CodeDir, &r.PlanPath, &r.TestplanPath, &r.DocPath,
		&r.TestRetries, &r.ErrorText, &r.CommitEnabled, &r.CommitBranch,
		&r.TouchedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRequest returns the request with the given id.
func (s *Store) GetRequest(id int64) (*Request, error) {
	row := s.db.QueryRow(`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request %d: %w", id, err)
	}
	return r, nil
}

// GetRequestStatus returns just the status column for the given request.
// Used by the planning-claim double check.
func (s *Store) GetRequestStatus(id int64) (string, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM requests WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get request %d status: %w", id, err)
	}
	return status, nil
}

// ListRequests returns requests for a project (or all when projectID is 0),
// newest phase first.
func (s *Store) ListRequests(projectID int64) ([]*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests`
	var args []any
	if projectID != 0 {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY ` + phaseOrderExpr + ` DESC, priority ASC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// UpdateRequest writes the mutable configuration fields of a request. Phase,
// status, and retry state are owned by FinishAttempt and UpdateRequestStatus.
func (s *Store) UpdateRequest(r *Request) error {
	if !IsValidRequestType(r.Type) {
		return fmt.Errorf("invalid request type: %q", r.Type)
	}
	if r.Priority < 1 || r.Priority > 10 {
		return fmt.Errorf("request priority must be 1-10, got %d", r.Priority)
	}
	result, err := s.db.Exec(`
		UPDATE requests SET
			name = ?, type = ?, prompt = ?, priority = ?, code_dir = ?,
			commit_enabled = ?, commit_branch = ?, touched_at = ?
		WHERE id = ?`,
		r.Name, r.Type, r.Prompt, r.Priority, r.CodeDir,
		r.CommitEnabled, r.CommitBranch, now(), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request %d: %w", r.ID, err)
	}
	return requireRow(result, fmt.Sprintf("request %d", r.ID))
}

// UpdateRequestStatus sets the status and error text for a request and
// refreshes the touch timestamp. Phase is untouched.
func (s *Store) UpdateRequestStatus(id int64, status, errorText string) error {
	if !IsValidStatus(status) {
		return fmt.Errorf("invalid status: %q", status)
	}
	result, err := s.db.Exec(
		`UPDATE requests SET status = ?, error_text = ?, touched_at = ? WHERE id = ?`,
		status, errorText, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update request %d status: %w", id, err)
	}
	return requireRow(result, fmt.Sprintf("request %d", id))
}

// FinishAttempt atomically records the outcome of one phase attempt: phase,
// status, retry counter, and error text in a single update.
func (s *Store) FinishAttempt(id int64, newPhase phase.Phase, status string, retries int, errorText string) error {
	if !newPhase.Valid() {
		return fmt.Errorf("invalid phase: %q", newPhase)
	}
	if !IsValidStatus(status) {
		return fmt.Errorf("invalid status: %q", status)
	}
	result, err := s.db.Exec(`
		UPDATE requests SET
			phase = ?, status = ?, test_retries = ?, error_text = ?, touched_at = ?
		WHERE id = ?`,
		string(newPhase), status, retries, errorText, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish attempt for request %d: %w", id, err)
	}
	return requireRow(result, fmt.Sprintf("request %d", id))
}

// SetRequestPlanPaths records the plan and testplan artifact locations.
func (s *Store) SetRequestPlanPaths(id int64, planPath, testplanPath string) error {
	result, err := s.db.Exec(
		`UPDATE requests SET plan_path = ?, testplan_path = ? WHERE id = ?`,
		planPath, testplanPath, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set plan paths for request %d: %w", id, err)
	}
	return requireRow(result, fmt.Sprintf("request %d", id))
}

// SetRequestDocPath records where a phase's output document was saved.
func (s *Store) SetRequestDocPath(id int64, docPath string) error {
	result, err := s.db.Exec(`UPDATE requests SET doc_path = ? WHERE id = ?`, docPath, id)
	if err != nil {
		return fmt.Errorf("failed to set doc path for request %d: %w", id, err)
	}
	return requireRow(result, fmt.Sprintf("request %d", id))
}

// DeleteRequest removes a request and its infrastructure overrides.
func (s *Store) DeleteRequest(id int64) error {
	result, err := s.db.Exec(`DELETE FROM requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete request %d: %w", id, err)
	}
	return requireRow(result, fmt.Sprintf("request %d", id))
}

// phaseOrderExpr maps the phase column to its workflow ordinal for ordering.
// Later phases sort higher so work closer to completion is scheduled first.
var phaseOrderExpr = buildPhaseOrderExpr()

func buildPhaseOrderExpr() string {
	var b strings.Builder
	b.WriteString("CASE phase")
	for _, p := range phase.All() {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", p, p.Order())
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}

// NextEligibleRequest returns the head of the scheduling order, or nil when
// no request is eligible. A request is eligible when its status is tbd, or
// it is a wip or tmout row untouched for longer than wipTimeout, or a stale
// planning claim older than planningTimeout. Requests in the terminal phase
// are never selected.
func (s *Store) NextEligibleRequest(wipTimeout, planningTimeout time.Duration) (*Request, error) {
	wipCutoff := now().Add(-wipTimeout)
	planningCutoff := now().Add(-planningTimeout)

	query := `SELECT ` + requestColumns + ` FROM requests
		WHERE phase != ?
		AND (
			status = ?
			OR (status IN (?, ?) AND touched_at < ?)
			OR (status LIKE 'planning-%' AND touched_at < ?)
		)
		ORDER BY ` + phaseOrderExpr + ` DESC, priority ASC, id ASC
		LIMIT 1`

	row := s.db.QueryRow(query,
		string(phase.Complete),
		StatusTBD,
		StatusWIP, StatusTimeout, wipCutoff,
		planningCutoff,
	)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select next request: %w", err)
	}
	return r, nil
}

// --- Infrastructure ---

// UpsertInfrastructure sets a project's infrastructure row for one type,
// replacing any previous assignment.
func (s *Store) UpsertInfrastructure(infra *Infrastructure) error {
	if !IsValidInfraType(infra.Type) {
		return fmt.Errorf("invalid infrastructure type: %q", infra.Type)
	}
	if !IsValidProvider(infra.Provider) {
		return fmt.Errorf("invalid infrastructure provider: %q", infra.Provider)
	}
	result, err := s.db.Exec(`
		INSERT INTO infrastructure (project_id, type, provider, value, note)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, type) DO UPDATE SET
			provider = excluded.provider,
			value = excluded.value,
			note = excluded.note`,
		infra.ProjectID, infra.Type, infra.Provider, infra.Value, infra.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert infrastructure %s for project %d: %w", infra.Type, infra.ProjectID, err)
	}
	if id, err := result.LastInsertId(); err == nil && id != 0 {
		infra.ID = id
	}
	return nil
}

// ListInfrastructure returns a project's infrastructure rows.
func (s *Store) ListInfrastructure(projectID int64) ([]*Infrastructure, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, type, provider, value, note FROM infrastructure
		 WHERE project_id = ? ORDER BY type ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list infrastructure for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var result []*Infrastructure
	for rows.Next() {
		var i Infrastructure
		if err := rows.Scan(&i.ID, &i.ProjectID, &i.Type, &i.Provider, &i.Value, &i.Note); err != nil {
			return nil, fmt.Errorf("failed to scan infrastructure: %w", err)
		}
		result = append(result, &i)
	}
	return result, rows.Err()
}

// DeleteInfrastructure removes a project's row for one infrastructure type.
func (s *Store) DeleteInfrastructure(projectID int64, infraType string) error {
	result, err := s.db.Exec(
		`DELETE FROM infrastructure WHERE project_id = ? AND type = ?`, projectID, infraType)
	if err != nil {
		return fmt.Errorf("failed to delete infrastructure %s for project %d: %w", infraType, projectID, err)
	}
	return requireRow(result, fmt.Sprintf("infrastructure %s for project %d", infraType, projectID))
}

// UpsertRequestInfrastructure sets a per-request infrastructure override.
func (s *Store) UpsertRequestInfrastructure(infra *RequestInfrastructure) error {
	if !IsValidInfraType(infra.Type) {
		return fmt.Errorf("invalid infrastructure type: %q", infra.Type)
	}
	if !IsValidProvider(infra.Provider) {
		return fmt.Errorf("invalid infrastructure provider: %q", infra.Provider)
	}
	_, err := s.db.Exec(`
		INSERT INTO request_infrastructure (request_id, type, provider, value, note)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(request_id, type) DO UPDATE SET
			provider = excluded.provider,
			value = excluded.value,
			note = excluded.note`,
		infra.RequestID, infra.Type, infra.Provider, infra.Value, infra.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert request infrastructure %s for request %d: %w", infra.Type, infra.RequestID, err)
	}
	return nil
}

// ListRequestInfrastructure returns a request's override rows.
func (s *Store) ListRequestInfrastructure(requestID int64) ([]*RequestInfrastructure, error) {
	rows, err := s.db.Query(
		`SELECT id, request_id, type, provider, value, note FROM request_infrastructure
		 WHERE request_id = ? ORDER BY type ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list request infrastructure for %d: %w", requestID, err)
	}
	defer rows.Close()

	var result []*RequestInfrastructure
	for rows.Next() {
		var i RequestInfrastructure
		if err := rows.Scan(&i.ID, &i.RequestID, &i.Type, &i.Provider, &i.Value, &i.Note); err != nil {
			return nil, fmt.Errorf("failed to scan request infrastructure: %w", err)
		}
		result = append(result, &i)
	}
	return result, rows.Err()
}

// DeleteRequestInfrastructure removes a request's override for one type.
func (s *Store) DeleteRequestInfrastructure(requestID int64, infraType string) error {
	result, err := s.db.Exec(
		`DELETE FROM request_infrastructure WHERE request_id = ? AND type = ?`, requestID, infraType)
	if err != nil {
		return fmt.Errorf("failed to delete request infrastructure %s for request %d: %w", infraType, requestID, err)
	}
	return requireRow(result, fmt.Sprintf("request infrastructure %s for request %d", infraType, requestID))
}

// ResolveInfrastructure merges infrastructure for a request: request
// override wins, then the project row; an absent type is treated as local.
func (s *Store) ResolveInfrastructure(r *Request) (map[string]Infrastructure, error) {
	resolved := make(map[string]Infrastructure)

	projectRows, err := s.ListInfrastructure(r.ProjectID)
	if err != nil {
		return nil, err
	}
	for _, row := range projectRows {
		resolved[row.Type] = *row
	}

	overrides, err := s.ListRequestInfrastructure(r.ID)
	if err != nil {
		return nil, err
	}
	for _, row := range overrides {
		resolved[row.Type] = Infrastructure{
			ID:        row.ID,
			ProjectID: r.ProjectID,
			Type:      row.Type,
			Provider:  row.Provider,
			Value:     row.Value,
			Note:      row.Note,
		}
	}
	return resolved, nil
}

// LocalOnly reports whether resolved infrastructure has no remote target.
// An empty resolution is local by definition.
func LocalOnly(resolved map[string]Infrastructure) bool {
	for _, infra := range resolved {
		if infra.Provider != ProviderLocal {
			return false
		}
	}
	return true
}

// --- Learnings ---

// AddLearning appends a learning note for a project. Use GlobalProjectID
// for notes that apply everywhere. Learnings are never mutated.
func (s *Store) AddLearning(projectID int64, description string) (*Learning, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("learning description must not be empty")
	}
	l := &Learning{ProjectID: projectID, Description: description, TouchedAt: now()}
	result, err := s.db.Exec(
		`INSERT INTO learnings (project_id, description, touched_at) VALUES (?, ?, ?)`,
		l.ProjectID, l.Description, l.TouchedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add learning for project %d: %w", projectID, err)
	}
	l.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read learning id: %w", err)
	}
	return l, nil
}

// ListLearnings returns a project's learnings followed by all global ones,
// each oldest first.
func (s *Store) ListLearnings(projectID int64) ([]*Learning, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, description, touched_at FROM learnings
		WHERE project_id IN (?, ?)
		ORDER BY CASE project_id WHEN ? THEN 1 ELSE 0 END ASC, id ASC`,
		projectID, GlobalProjectID, GlobalProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list learnings for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var learnings []*Learning
	for rows.Next() {
		var l Learning
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Description, &l.TouchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learning: %w", err)
		}
		learnings = append(learnings, &l)
	}
	return learnings, rows.Err()
}

// DeleteLearning removes one learning by id.
func (s *Store) DeleteLearning(id int64) error {
	result, err := s.db.Exec(`DELETE FROM learnings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete learning %d: %w", id, err)
	}
	return requireRow(result, fmt.Sprintf("learning %d", id))
}

// --- Infra options ---

// ListInfraOptions returns the wizard catalog, optionally filtered by type.
func (s *Store) ListInfraOptions(infraType string) ([]*InfraOption, error) {
	query := `SELECT id, type, provider, description FROM infra_options`
	var args []any
	if infraType != "" {
		query += ` WHERE type = ?`
		args = append(args, infraType)
	}
	query += ` ORDER BY type ASC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list infra options: %w", err)
	}
	defer rows.Close()

	var options []*InfraOption
	for rows.Next() {
		var o InfraOption
		if err := rows.Scan(&o.ID, &o.Type, &o.Provider, &o.Description); err != nil {
			return nil, fmt.Errorf("failed to scan infra option: %w", err)
		}
		options = append(options, &o)
	}
	return options, rows.Err()
}

// --- Aggregates ---

// CountRequestsByStatus returns request counts per stored status. Planning
// claims are folded into wip.
func (s *Store) CountRequestsByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		if IsPlanningClaim(status) {
			status = StatusWIP
		}
		counts[status] += n
	}
	return counts, rows.Err()
}

func requireRow(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
