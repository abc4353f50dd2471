package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/suricates/suitability/internal/domain"
)

func TestRunEventRepo_AppendAndList(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &RunEventRepo{}
	seedProject(t, db, "coastal")
	createRun(t, db, &domain.Run{RunID: "run-1", Project: "coastal", State: domain.RunCreated, StartedAt: 1})
	now := time.Now().Unix()

	events := []domain.RunEvent{
		{RunID: "run-1", State: domain.RunRunning, At: now},
		{RunID: "run-1", State: domain.RunFailed, Detail: "source file missing", At: now + 1},
		{RunID: "run-1", State: domain.RunFinished, At: now + 2},
	}

	for _, e := range events {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := repo.AppendTx(ctx, tx, e); err != nil {
			t.Fatalf("AppendTx %s: %v", e.State, err)
		}
		tx.Commit()
	}

	got, err := repo.ListByRun(ctx, db, "run-1", 0)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].State != domain.RunRunning || got[2].State != domain.RunFinished {
		t.Errorf("order = %s..%s, want oldest first", got[0].State, got[2].State)
	}
	if got[1].Detail != "source file missing" {
		t.Errorf("Detail = %q, want the failure message", got[1].Detail)
	}

	// Incremental reads resume after the last seen ID.
	tail, err := repo.ListByRun(ctx, db, "run-1", got[0].ID)
	if err != nil {
		t.Fatalf("ListByRun since: %v", err)
	}
	if len(tail) != 2 {
		t.Fatalf("expected 2 events after the first, got %d", len(tail))
	}
	if tail[0].State != domain.RunFailed {
		t.Errorf("first tail event = %s, want failed", tail[0].State)
	}
}

func TestRunEventRepo_ListByRun_Empty(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	got, err := (&RunEventRepo{}).ListByRun(context.Background(), db, "absent", 0)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
}
