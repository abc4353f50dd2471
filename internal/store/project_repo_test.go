package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/suricates/suitability/internal/domain"
)

func TestProjectRepo_CreateAndGet(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &ProjectRepo{}

	created := time.Now().Unix()
	p := &domain.Project{Name: "coastal", Dir: "/data/coastal", CreatedAt: created}
	if err := repo.Create(ctx, db, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, db, "coastal")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "coastal" {
		t.Errorf("Name = %q, want %q", got.Name, "coastal")
	}
	if got.Dir != "/data/coastal" {
		t.Errorf("Dir = %q, want %q", got.Dir, "/data/coastal")
	}
	if got.CreatedAt != created {
		t.Errorf("CreatedAt = %d, want %d", got.CreatedAt, created)
	}
}

func TestProjectRepo_DuplicateCreate(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &ProjectRepo{}

	p := &domain.Project{Name: "coastal", Dir: "/data/coastal", CreatedAt: 1}
	if err := repo.Create(ctx, db, p); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	err = repo.Create(ctx, db, p)
	if err != domain.ErrDuplicateProject {
		t.Errorf("expected ErrDuplicateProject, got %v", err)
	}
}

func TestProjectRepo_Get_NotFound(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	_, err = (&ProjectRepo{}).Get(context.Background(), db, "absent")
	if err != domain.ErrProjectNotFound {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestProjectRepo_List_Ordered(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &ProjectRepo{}

	for _, name := range []string{"beta", "alpha"} {
		if err := repo.Create(ctx, db, &domain.Project{Name: name, Dir: "/data/" + name, CreatedAt: 1}); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}

	got, err := repo.List(ctx, db)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Name != "alpha" || got[1].Name != "beta" {
		t.Errorf("List order = %v, want alpha then beta", got)
	}
}

func TestProjectRepo_Delete(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &ProjectRepo{}

	if err := repo.Create(ctx, db, &domain.Project{Name: "coastal", Dir: "/d", CreatedAt: 1}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Delete(ctx, db, "coastal"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, db, "coastal"); err != domain.ErrProjectNotFound {
		t.Errorf("expected ErrProjectNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, db, "coastal"); err != domain.ErrProjectNotFound {
		t.Errorf("expected ErrProjectNotFound on second delete, got %v", err)
	}
}

func TestProjectRepo_Delete_Cascades(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	projects := &ProjectRepo{}
	cons := &ConstraintRepo{}
	runs := &RunRepo{}

	if err := projects.Create(ctx, db, &domain.Project{Name: "coastal", Dir: "/d", CreatedAt: 1}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := cons.Append(ctx, db, "coastal", domain.NewMapConstraint("/data/aoi.geojson")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	run := &domain.Run{RunID: "run-1", Project: "coastal", State: domain.RunCreated, StartedAt: 1}
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := runs.CreateTx(ctx, tx, run); err != nil {
		t.Fatalf("CreateTx: %v", err)
	}
	tx.Commit()

	if err := projects.Delete(ctx, db, "coastal"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	count, err := cons.Count(ctx, db, "coastal")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("constraints left after cascade = %d, want 0", count)
	}
	if _, err := runs.GetByID(ctx, db, "run-1"); err != domain.ErrRunNotFound {
		t.Errorf("expected ErrRunNotFound after cascade, got %v", err)
	}
}
