package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/suricates/suitability/internal/domain"
)

// createRun inserts a run in its own transaction.
func createRun(t *testing.T, db *sql.DB, run *domain.Run) {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := (&RunRepo{}).CreateTx(context.Background(), tx, run); err != nil {
		t.Fatalf("CreateTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestRunRepo_CreateAndGet(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &RunRepo{}
	seedProject(t, db, "coastal")

	run := &domain.Run{
		RunID:     "run-001",
		Project:   "coastal",
		State:     domain.RunCreated,
		StartedAt: 1700000000,
	}
	createRun(t, db, run)
	if run.StateVersion != 1 {
		t.Errorf("StateVersion after create = %d, want 1", run.StateVersion)
	}

	got, err := repo.GetByID(ctx, db, "run-001")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Project != "coastal" {
		t.Errorf("Project = %q, want %q", got.Project, "coastal")
	}
	if got.State != domain.RunCreated {
		t.Errorf("State = %q, want created", got.State)
	}
	if got.StateVersion != 1 {
		t.Errorf("StateVersion = %d, want 1", got.StateVersion)
	}
	if got.StartedAt != 1700000000 {
		t.Errorf("StartedAt = %d, want 1700000000", got.StartedAt)
	}
	if got.FinishedAt != 0 {
		t.Errorf("FinishedAt = %d, want 0 while open", got.FinishedAt)
	}
	if got.Outputs != nil {
		t.Errorf("Outputs = %v, want none", got.Outputs)
	}
}

func TestRunRepo_GetByID_NotFound(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	_, err = (&RunRepo{}).GetByID(context.Background(), db, "absent")
	if err != domain.ErrRunNotFound {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunRepo_UpdateState_OptimisticLock(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &RunRepo{}
	seedProject(t, db, "coastal")

	run := &domain.Run{RunID: "run-002", Project: "coastal", State: domain.RunCreated, StartedAt: 1}
	createRun(t, db, run)
	stale := *run

	// Update with the current version should succeed.
	run.State = domain.RunRunning
	tx2, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := repo.UpdateStateTx(ctx, tx2, run); err != nil {
		t.Fatalf("UpdateStateTx: %v", err)
	}
	tx2.Commit()
	if run.StateVersion != 2 {
		t.Errorf("StateVersion after update = %d, want 2", run.StateVersion)
	}

	// The stale copy still carries version 1 while the row is at 2.
	stale.State = domain.RunFailed
	tx3, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	err = repo.UpdateStateTx(ctx, tx3, &stale)
	tx3.Rollback()

	if err != domain.ErrOptimisticLock {
		t.Errorf("expected ErrOptimisticLock, got %v", err)
	}
}

func TestRunRepo_ListByProject(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &RunRepo{}
	seedProject(t, db, "coastal")
	seedProject(t, db, "other")

	for i, started := range []int64{100, 300, 200} {
		createRun(t, db, &domain.Run{
			RunID:     []string{"run-a", "run-b", "run-c"}[i],
			Project:   "coastal",
			State:     domain.RunCreated,
			StartedAt: started,
		})
	}
	createRun(t, db, &domain.Run{RunID: "run-x", Project: "other", State: domain.RunCreated, StartedAt: 999})

	got, err := repo.ListByProject(ctx, db, "coastal", 0)
	if err != nil {
		t.Fatalf("ListByProject: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d runs, want 3", len(got))
	}
	if got[0].RunID != "run-b" || got[1].RunID != "run-c" || got[2].RunID != "run-a" {
		t.Errorf("order = %s, %s, %s, want newest first", got[0].RunID, got[1].RunID, got[2].RunID)
	}

	limited, err := repo.ListByProject(ctx, db, "coastal", 2)
	if err != nil {
		t.Fatalf("ListByProject limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d runs with limit 2", len(limited))
	}
}

func TestRunRepo_OutputsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &RunRepo{}
	seedProject(t, db, "coastal")

	run := &domain.Run{RunID: "run-003", Project: "coastal", State: domain.RunCreated, StartedAt: 1}
	createRun(t, db, run)

	run.State = domain.RunRunning
	run.Outputs = domain.PipelineResult{
		domain.ResultKeyRaster:   "/out/raster.grd",
		domain.ThresholdKey(0.5): "/out/cut.grd",
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := repo.UpdateStateTx(ctx, tx, run); err != nil {
		t.Fatalf("UpdateStateTx: %v", err)
	}
	tx.Commit()

	got, err := repo.GetByID(ctx, db, "run-003")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Outputs) != 2 {
		t.Fatalf("Outputs = %v, want 2 entries", got.Outputs)
	}
	if got.Outputs[domain.ThresholdKey(0.5)] != "/out/cut.grd" {
		t.Errorf("threshold output = %q, want /out/cut.grd", got.Outputs[domain.ThresholdKey(0.5)])
	}
}

func TestRunJournal_UpdateRun(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &RunRepo{}
	seedProject(t, db, "coastal")

	run := &domain.Run{RunID: "run-004", Project: "coastal", State: domain.RunCreated, StartedAt: 1}
	createRun(t, db, run)

	events := &RunEventRepo{}
	journal := &RunJournal{DB: db, Runs: repo, Events: events}
	run.State = domain.RunRunning
	run.EstimatedSteps = 11
	if err := journal.UpdateRun(run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := repo.GetByID(ctx, db, "run-004")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.State != domain.RunRunning {
		t.Errorf("State = %q, want running", got.State)
	}
	if got.EstimatedSteps != 11 {
		t.Errorf("EstimatedSteps = %d, want 11", got.EstimatedSteps)
	}
	if got.StateVersion != 2 {
		t.Errorf("StateVersion = %d, want 2", got.StateVersion)
	}

	// The history event commits with the state change.
	history, err := events.ListByRun(ctx, db, "run-004", 0)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d events, want 1", len(history))
	}
	if history[0].State != domain.RunRunning {
		t.Errorf("event state = %q, want running", history[0].State)
	}
	if history[0].At == 0 {
		t.Error("event timestamp not set")
	}
}
