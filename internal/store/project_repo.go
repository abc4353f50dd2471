package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/suricates/suitability/internal/domain"
)

// ProjectRepo handles persistence for project records.
type ProjectRepo struct{}

// Create inserts a project, rejecting duplicates by name.
func (r *ProjectRepo) Create(ctx context.Context, db *sql.DB, p *domain.Project) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE name = ?`, p.Name).Scan(&count); err != nil {
		return fmt.Errorf("check project: %w", err)
	}
	if count > 0 {
		return domain.ErrDuplicateProject
	}
	const q = `INSERT INTO projects (name, dir, created_at) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, q, p.Name, p.Dir, p.CreatedAt); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// Get retrieves a project by name.
func (r *ProjectRepo) Get(ctx context.Context, db *sql.DB, name string) (*domain.Project, error) {
	const q = `SELECT name, dir, created_at FROM projects WHERE name = ?`

	var p domain.Project
	err := db.QueryRowContext(ctx, q, name).Scan(&p.Name, &p.Dir, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrProjectNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// List returns all projects ordered by name.
func (r *ProjectRepo) List(ctx context.Context, db *sql.DB) ([]domain.Project, error) {
	const q = `SELECT name, dir, created_at FROM projects ORDER BY name`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.Name, &p.Dir, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Delete removes a project and, through foreign keys, its constraints
// and runs.
func (r *ProjectRepo) Delete(ctx context.Context, db *sql.DB, name string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM projects WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}
