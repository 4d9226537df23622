package persistence

import (
	"strings"
	"time"
)

// Request status constants. Status is orthogonal to phase: a request can be
// stuck err or tmout at any phase.
const (
	StatusTBD     = "tbd"
	StatusWIP     = "wip"
	StatusDone    = "done"
	StatusError   = "err"
	StatusTimeout = "tmout"
)

// planningPrefix marks a short-lived claim taken by a loop before prompt
// generation. The claim embeds the loop identity so racing daemons can tell
// whose claim won.
const planningPrefix = "planning-"

// PlanningClaim returns the claim status for the given loop identity.
func PlanningClaim(loopID string) string {
	return planningPrefix + loopID
}

// IsPlanningClaim reports whether status is a planning claim.
func IsPlanningClaim(status string) bool {
	return strings.HasPrefix(status, planningPrefix)
}

// ValidStatuses returns all valid stored statuses, claims excluded.
func ValidStatuses() []string {
	return []string{StatusTBD, StatusWIP, StatusDone, StatusError, StatusTimeout}
}

// IsValidStatus checks if a status string is valid. Planning claims are
// accepted because they are written to the same column.
func IsValidStatus(status string) bool {
	if IsPlanningClaim(status) {
		return true
	}
	for _, valid := range ValidStatuses() {
		if status == valid {
			return true
		}
	}
	return false
}

// Request type constants.
const (
	TypeNewFeature  = "new_feature"
	TypeBugFix      = "bug_fix"
	TypeEnhancement = "enhancement"
)

// IsValidRequestType checks if a request type string is valid.
func IsValidRequestType(t string) bool {
	return t == TypeNewFeature || t == TypeBugFix || t == TypeEnhancement
}

// Infrastructure type constants.
const (
	InfraCompute = "compute"
	InfraStorage = "storage"
	InfraQueue   = "queue"
	InfraAccess  = "access"
	InfraUI      = "ui"
)

// InfraTypes returns all infrastructure types in display order.
func InfraTypes() []string {
	return []string{InfraCompute, InfraStorage, InfraQueue, InfraAccess, InfraUI}
}

// IsValidInfraType checks if an infrastructure type string is valid.
func IsValidInfraType(t string) bool {
	for _, valid := range InfraTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// Infrastructure provider constants. ProviderLocal is the skip-deploy
// sentinel: a project whose resolved infrastructure is all-local never
// enters the deploy or verify phases.
const (
	ProviderLocal     = "local"
	ProviderContainer = "container"
	ProviderAWS       = "aws"
	ProviderGCP       = "gcp"
	ProviderAzure     = "azure"
)

// IsValidProvider checks if a provider string is valid.
func IsValidProvider(p string) bool {
	switch p {
	case ProviderLocal, ProviderContainer, ProviderAWS, ProviderGCP, ProviderAzure:
		return true
	}
	return false
}

// Commit policy override values. A request or project stores CommitInherit
// to defer to the next level of the override chain.
const (
	CommitDisabled = 0
	CommitInherit  = 1
	CommitForced   = 2
)

// GlobalProjectID is the sentinel project id for learnings that apply to
// every project.
const GlobalProjectID = -1

// Project identifies a code target that owns requests, infrastructure rows,
// and learnings. Deleting a project cascades to everything it owns.
type Project struct {
	TouchedAt        time.Time `json:"touched_at"`
	Name             string    `json:"name"`
	Version          string    `json:"version"`
	Phase            string    `json:"phase"`
	Description      string    `json:"description"`
	CodeDir          string    `json:"code_dir,omitempty"`
	PromptText       string    `json:"prompt_text,omitempty"`
	ClaudeMDRef      string    `json:"claude_md_ref,omitempty"`
	CommitBranchMode string    `json:"commit_branch_mode,omitempty"`
	CommitBranchName string    `json:"commit_branch_name,omitempty"`
	ID               int64     `json:"id"`
	Priority         int       `json:"priority"`
	CommitEnabled    int       `json:"commit_enabled"`
}

// Request is the unit of work the scheduler drives. Phase and status are
// mutated exclusively through UpdateRequestStatus and FinishAttempt, both
// of which refresh TouchedAt.
type Request struct {
	TouchedAt     time.Time `json:"touched_at"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Phase         string    `json:"phase"`
	Prompt        string    `json:"prompt"`
	CodeDir       string    `json:"code_dir,omitempty"`
	PlanPath      string    `json:"plan_path,omitempty"`
	TestplanPath  string    `json:"testplan_path,omitempty"`
	DocPath       string    `json:"doc_path,omitempty"`
	ErrorText     string    `json:"error_text,omitempty"`
	CommitBranch  string    `json:"commit_branch,omitempty"`
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"project_id"`
	Priority      int       `json:"priority"`
	TestRetries   int       `json:"test_retries"`
	CommitEnabled int       `json:"commit_enabled"`
}

// Infrastructure is a project-level infrastructure assignment, one row per
// (project, type).
type Infrastructure struct {
	Type      string `json:"type"`
	Provider  string `json:"provider"`
	Value     string `json:"value,omitempty"`
	Note      string `json:"note,omitempty"`
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
}

// RequestInfrastructure overrides a project infrastructure row for a single
// request, keyed by the same type enumeration.
type RequestInfrastructure struct {
	Type      string `json:"type"`
	Provider  string `json:"provider"`
	Value     string `json:"value,omitempty"`
	Note      string `json:"note,omitempty"`
	ID        int64  `json:"id"`
	RequestID int64  `json:"request_id"`
}

// Learning is an append-only note used to enrich future prompts. Rows with
// ProjectID == GlobalProjectID apply to every project.
type Learning struct {
	TouchedAt   time.Time `json:"touched_at"`
	Description string    `json:"description"`
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
}

// InfraOption is a catalog entry offered by the setup wizard when choosing
// infrastructure providers.
type InfraOption struct {
	Type        string `json:"type"`
	Provider    string `json:"provider"`
	Description string `json:"description"`
	ID          int64  `json:"id"`
}
