package persistence

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"devloop/pkg/phase"
)

// Helper to create a fresh store for each test.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestProject(t *testing.T, store *Store, name string) *Project {
	t.Helper()
	p := &Project{Name: name, Version: "0.1.0", Description: "test project"}
	if err := store.CreateProject(p); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	return p
}

func createTestRequest(t *testing.T, store *Store, projectID int64, name string) *Request {
	t.Helper()
	r := &Request{ProjectID: projectID, Name: name, Type: TypeNewFeature, Prompt: "do the thing"}
	if err := store.CreateRequest(r); err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	return r
}

func TestProjectCRUD(t *testing.T) {
	store := createTestStore(t)

	p := createTestProject(t, store, "widget")
	if p.ID == 0 {
		t.Fatal("Expected assigned project id")
	}
	if p.Priority != 5 {
		t.Errorf("Expected default priority 5, got %d", p.Priority)
	}

	got, err := store.GetProjectByName("widget")
	if err != nil {
		t.Fatalf("Failed to get project by name: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("Expected id %d, got %d", p.ID, got.ID)
	}

	got.Description = "updated"
	got.Priority = 2
	if err := store.UpdateProject(got); err != nil {
		t.Fatalf("Failed to update project: %v", err)
	}
	reread, err := store.GetProject(p.ID)
	if err != nil {
		t.Fatalf("Failed to get project: %v", err)
	}
	if reread.Description != "updated" || reread.Priority != 2 {
		t.Errorf("Update not persisted: %+v", reread)
	}

	if err := store.CreateProject(&Project{Name: "widget"}); err == nil {
		t.Error("Expected unique name violation")
	}
	if err := store.CreateProject(&Project{Name: " "}); err == nil {
		t.Error("Expected empty name rejection")
	}
	if err := store.CreateProject(&Project{Name: "p", Priority: 11}); err == nil {
		t.Error("Expected priority range rejection")
	}
}

func TestProjectDeleteCascades(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "doomed")
	r := createTestRequest(t, store, p.ID, "req")

	err := store.UpsertInfrastructure(&Infrastructure{
		ProjectID: p.ID, Type: InfraCompute, Provider: ProviderAWS, Value: "us-east-1",
	})
	if err != nil {
		t.Fatalf("Failed to upsert infrastructure: %v", err)
	}
	if _, err := store.AddLearning(p.ID, "note"); err != nil {
		t.Fatalf("Failed to add learning: %v", err)
	}

	if err := store.DeleteProject(p.ID); err != nil {
		t.Fatalf("Failed to delete project: %v", err)
	}

	if _, err := store.GetRequest(r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected request cascade delete, got %v", err)
	}
	infra, err := store.ListInfrastructure(p.ID)
	if err != nil {
		t.Fatalf("Failed to list infrastructure: %v", err)
	}
	if len(infra) != 0 {
		t.Errorf("Expected infrastructure cascade delete, got %d rows", len(infra))
	}
	learnings, err := store.ListLearnings(p.ID)
	if err != nil {
		t.Fatalf("Failed to list learnings: %v", err)
	}
	if len(learnings) != 0 {
		t.Errorf("Expected learnings swept, got %d rows", len(learnings))
	}
}

func TestRequestCreationDefaults(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "proj")
	r := createTestRequest(t, store, p.ID, "feature")

	if r.Status != StatusTBD {
		t.Errorf("Expected status tbd, got %s", r.Status)
	}
	if r.Phase != string(phase.Plan) {
		t.Errorf("Expected phase plan, got %s", r.Phase)
	}
	if r.TestRetries != 0 {
		t.Errorf("Expected zero retries, got %d", r.TestRetries)
	}
	if r.CommitEnabled != CommitInherit {
		t.Errorf("Expected commit policy to default to inherit, got %d", r.CommitEnabled)
	}
}

func TestRequestValidation(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "proj")

	cases := []Request{
		{ProjectID: p.ID, Name: "", Type: TypeBugFix},
		{ProjectID: p.ID, Name: "r", Type: "refactor"},
		{ProjectID: p.ID, Name: "r", Type: TypeBugFix, Priority: 99},
		{ProjectID: 9999, Name: "r", Type: TypeBugFix},
		{ProjectID: p.ID, Name: "r", Type: TypeBugFix, CommitEnabled: 7},
	}
	for i := range cases {
		if err := store.CreateRequest(&cases[i]); err == nil {
			t.Errorf("Case %d: expected validation error", i)
		}
	}
}

func TestFinishAttemptSingleUpdate(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "proj")
	r := createTestRequest(t, store, p.ID, "req")

	before := r.TouchedAt
	time.Sleep(10 * time.Millisecond)

	if err := store.FinishAttempt(r.ID, phase.Dev, StatusTBD, 0, ""); err != nil {
		t.Fatalf("Failed to finish attempt: %v", err)
	}

	got, err := store.GetRequest(r.ID)
	if err != nil {
		t.Fatalf("Failed to get request: %v", err)
	}
	if got.Phase != string(phase.Dev) || got.Status != StatusTBD {
		t.Errorf("Unexpected state: phase=%s status=%s", got.Phase, got.Status)
	}
	if !got.TouchedAt.After(before) {
		t.Error("Expected touch timestamp refresh")
	}

	if err := store.FinishAttempt(r.ID, "compile", StatusTBD, 0, ""); err == nil {
		t.Error("Expected invalid phase rejection")
	}
	if err := store.FinishAttempt(r.ID, phase.Dev, "bogus", 0, ""); err == nil {
		t.Error("Expected invalid status rejection")
	}
}

func TestNextEligibleRequestOrdering(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "proj")

	early := createTestRequest(t, store, p.ID, "early-phase")
	late := createTestRequest(t, store, p.ID, "late-phase")
	urgent := createTestRequest(t, store, p.ID, "urgent")

	// late is furthest along, urgent has the best priority at plan phase.
	if err := store.FinishAttempt(late.ID, phase.Test, StatusTBD, 0, ""); err != nil {
		t.Fatalf("Failed to move request: %v", err)
	}
	urgent.Priority = 1
	if err := store.UpdateRequest(urgent); err != nil {
		t.Fatalf("Failed to update request: %v", err)
	}

	// Later phase beats better priority.
	next, err := store.NextEligibleRequest(time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if next == nil || next.ID != late.ID {
		t.Fatalf("Expected request %d first, got %+v", late.ID, next)
	}

	// Same phase: lower priority number wins.
	if err := store.FinishAttempt(late.ID, phase.Complete, StatusDone, 0, ""); err != nil {
		t.Fatalf("Failed to complete request: %v", err)
	}
	next, err = store.NextEligibleRequest(time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if next == nil || next.ID != urgent.ID {
		t.Fatalf("Expected request %d next, got %+v", urgent.ID, next)
	}

	// Tiebreak on id.
	urgent.Priority = 5
	if err := store.UpdateRequest(urgent); err != nil {
		t.Fatalf("Failed to update request: %v", err)
	}
	next, err = store.NextEligibleRequest(time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if next == nil || next.ID != early.ID {
		t.Fatalf("Expected request %d by id tiebreak, got %+v", early.ID, next)
	}
}

func TestNextEligibleRequestSkipsTerminalAndBusy(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "proj")

	done := createTestRequest(t, store, p.ID, "done")
	if err := store.FinishAttempt(done.ID, phase.Complete, StatusDone, 0, ""); err != nil {
		t.Fatalf("Failed to complete request: %v", err)
	}
	failed := createTestRequest(t, store, p.ID, "failed")
	if err := store.UpdateRequestStatus(failed.ID, StatusError, "boom"); err != nil {
		t.Fatalf("Failed to mark error: %v", err)
	}
	busy := createTestRequest(t, store, p.ID, "busy")
	if err := store.UpdateRequestStatus(busy.ID, StatusWIP, ""); err != nil {
		t.Fatalf("Failed to mark wip: %v", err)
	}

	next, err := store.NextEligibleRequest(time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if next != nil {
		t.Errorf("Expected no eligible request, got %+v", next)
	}
}

func TestNextEligibleRequestRecoversStaleWIP(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "proj")

	stale := createTestRequest(t, store, p.ID, "stale")
	if err := store.UpdateRequestStatus(stale.ID, StatusWIP, ""); err != nil {
		t.Fatalf("Failed to mark wip: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	// With a tiny wip timeout the abandoned row becomes eligible again.
	next, err := store.NextEligibleRequest(time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if next == nil || next.ID != stale.ID {
		t.Fatalf("Expected stale wip recovery, got %+v", next)
	}
}

func TestNextEligibleRequestRecoversStalePlanningClaim(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "proj")

	claimed := createTestRequest(t, store, p.ID, "claimed")
	if err := store.UpdateRequestStatus(claimed.ID, PlanningClaim("loop-1"), ""); err != nil {
		t.Fatalf("Failed to write claim: %v", err)
	}

	// Fresh claim is not eligible.
	next, err := store.NextEligibleRequest(time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if next != nil {
		t.Fatalf("Expected fresh claim to be skipped, got %+v", next)
	}

	time.Sleep(20 * time.Millisecond)
	next, err = store.NextEligibleRequest(time.Hour, time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if next == nil || next.ID != claimed.ID {
		t.Fatalf("Expected stale claim recovery, got %+v", next)
	}
}

func TestPlanningClaimRoundTrip(t *testing.T) {
	claim := PlanningClaim("loop-abc")
	if !IsPlanningClaim(claim) {
		t.Errorf("Expected %q to be a planning claim", claim)
	}
	if IsPlanningClaim(StatusWIP) {
		t.Error("wip must not be a planning claim")
	}
	if !IsValidStatus(claim) {
		t.Error("Claims must be storable statuses")
	}
}

func TestInfrastructureResolution(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "proj")
	r := createTestRequest(t, store, p.ID, "req")

	err := store.UpsertInfrastructure(&Infrastructure{
		ProjectID: p.ID, Type: InfraCompute, Provider: ProviderAWS, Value: "ec2",
	})
	if err != nil {
		t.Fatalf("Failed to upsert infrastructure: %v", err)
	}
	err = store.UpsertInfrastructure(&Infrastructure{
		ProjectID: p.ID, Type: InfraStorage, Provider: ProviderLocal,
	})
	if err != nil {
		t.Fatalf("Failed to upsert infrastructure: %v", err)
	}

	// Request override moves compute to local.
	err = store.UpsertRequestInfrastructure(&RequestInfrastructure{
		RequestID: r.ID, Type: InfraCompute, Provider: ProviderLocal,
	})
	if err != nil {
		t.Fatalf("Failed to upsert override: %v", err)
	}

	resolved, err := store.ResolveInfrastructure(r)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if resolved[InfraCompute].Provider != ProviderLocal {
		t.Errorf("Expected override to win, got %s", resolved[InfraCompute].Provider)
	}
	if resolved[InfraStorage].Provider != ProviderLocal {
		t.Errorf("Expected project row, got %s", resolved[InfraStorage].Provider)
	}
	if !LocalOnly(resolved) {
		t.Error("Expected local-only resolution")
	}

	// Second request without overrides sees the aws compute row.
	other := createTestRequest(t, store, p.ID, "other")
	resolved, err = store.ResolveInfrastructure(other)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if LocalOnly(resolved) {
		t.Error("Expected non-local resolution with aws compute")
	}
}

func TestInfrastructureUpsertReplaces(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "proj")

	for _, provider := range []string{ProviderAWS, ProviderGCP} {
		err := store.UpsertInfrastructure(&Infrastructure{
			ProjectID: p.ID, Type: InfraCompute, Provider: provider,
		})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
	}

	rows, err := store.ListInfrastructure(p.ID)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(rows) != 1 || rows[0].Provider != ProviderGCP {
		t.Errorf("Expected single gcp row, got %+v", rows)
	}
}

func TestLearningsIncludeGlobal(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "proj")
	other := createTestProject(t, store, "other")

	if _, err := store.AddLearning(p.ID, "project note"); err != nil {
		t.Fatalf("Failed to add learning: %v", err)
	}
	if _, err := store.AddLearning(GlobalProjectID, "global note"); err != nil {
		t.Fatalf("Failed to add global learning: %v", err)
	}
	if _, err := store.AddLearning(other.ID, "unrelated"); err != nil {
		t.Fatalf("Failed to add learning: %v", err)
	}

	learnings, err := store.ListLearnings(p.ID)
	if err != nil {
		t.Fatalf("Failed to list learnings: %v", err)
	}
	if len(learnings) != 2 {
		t.Fatalf("Expected 2 learnings, got %d", len(learnings))
	}
	// Project rows come before global rows.
	if learnings[0].Description != "project note" || learnings[1].Description != "global note" {
		t.Errorf("Unexpected ordering: %q, %q", learnings[0].Description, learnings[1].Description)
	}
}

func TestInfraOptionsSeeded(t *testing.T) {
	store := createTestStore(t)

	options, err := store.ListInfraOptions(InfraCompute)
	if err != nil {
		t.Fatalf("Failed to list options: %v", err)
	}
	if len(options) == 0 {
		t.Fatal("Expected seeded compute options")
	}
	for _, o := range options {
		if o.Type != InfraCompute {
			t.Errorf("Filter leaked type %s", o.Type)
		}
	}

	all, err := store.ListInfraOptions("")
	if err != nil {
		t.Fatalf("Failed to list all options: %v", err)
	}
	if len(all) <= len(options) {
		t.Error("Expected catalog to span multiple types")
	}
}

func TestCountRequestsByStatus(t *testing.T) {
	store := createTestStore(t)
	p := createTestProject(t, store, "proj")

	createTestRequest(t, store, p.ID, "a")
	b := createTestRequest(t, store, p.ID, "b")
	c := createTestRequest(t, store, p.ID, "c")
	if err := store.UpdateRequestStatus(b.ID, StatusError, "x"); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	if err := store.UpdateRequestStatus(c.ID, PlanningClaim("loop-1"), ""); err != nil {
		t.Fatalf("Failed to write claim: %v", err)
	}

	counts, err := store.CountRequestsByStatus()
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if counts[StatusTBD] != 1 || counts[StatusError] != 1 || counts[StatusWIP] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestSchemaReopenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	p := createTestProject(t, store, "persisted")
	store.Close()

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetProject(p.ID)
	if err != nil {
		t.Fatalf("Failed to read after reopen: %v", err)
	}
	if got.Name != "persisted" {
		t.Errorf("Expected persisted project, got %+v", got)
	}
}
