package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/suricates/suitability/internal/domain"
)

// ConstraintRepo handles persistence for per-project constraint lists.
// List order is the evaluation order; by convention the map row sits at
// position zero.
type ConstraintRepo struct{}

// Append adds a constraint at the end of a project's list. Base names
// must be unique within a project because run outputs are keyed by
// them.
func (r *ConstraintRepo) Append(ctx context.Context, db *sql.DB, project string, c domain.Constraint) error {
	const q = `INSERT INTO constraints (project, position, base, source, type_in, type_out, buffer, priority)
VALUES (?, (SELECT COALESCE(MAX(position)+1, 0) FROM constraints WHERE project = ?), ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		project,
		project,
		c.Base(),
		c.SourceRef,
		string(c.KindInside),
		string(c.KindOutside),
		int(c.Buffer),
		c.Priority,
	)
	if err != nil {
		return fmt.Errorf("append constraint: %w", err)
	}
	return nil
}

// ListByProject returns a project's constraints in evaluation order,
// marking whether each source file still exists on disk.
func (r *ConstraintRepo) ListByProject(ctx context.Context, db *sql.DB, project string) ([]domain.Constraint, error) {
	const q = `SELECT source, type_in, type_out, buffer, priority
FROM constraints WHERE project = ? ORDER BY position`

	rows, err := db.QueryContext(ctx, q, project)
	if err != nil {
		return nil, fmt.Errorf("list constraints: %w", err)
	}
	defer rows.Close()

	var constraints []domain.Constraint
	for rows.Next() {
		var c domain.Constraint
		var typeIn, typeOut string
		var buffer int64
		if err := rows.Scan(&c.SourceRef, &typeIn, &typeOut, &buffer, &c.Priority); err != nil {
			return nil, fmt.Errorf("scan constraint: %w", err)
		}
		if c.KindInside, err = domain.ParseConstraintKind(typeIn); err != nil {
			return nil, err
		}
		if c.KindOutside, err = domain.ParseConstraintKind(typeOut); err != nil {
			return nil, err
		}
		c.Buffer = float64(buffer)
		if _, err := os.Stat(c.SourceRef); err == nil {
			c.Exists = true
		}
		constraints = append(constraints, c)
	}
	return constraints, rows.Err()
}

// Count returns how many constraints a project holds.
func (r *ConstraintRepo) Count(ctx context.Context, db *sql.DB, project string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM constraints WHERE project = ?`, project).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count constraints: %w", err)
	}
	return count, nil
}

// Update rewrites the editable fields of one constraint, addressed by
// its base name.
func (r *ConstraintRepo) Update(ctx context.Context, db *sql.DB, project, base string, c domain.Constraint) error {
	const q = `UPDATE constraints SET type_in = ?, type_out = ?, buffer = ?, priority = ?
WHERE project = ? AND base = ?`
	res, err := db.ExecContext(ctx, q,
		string(c.KindInside),
		string(c.KindOutside),
		int(c.Buffer),
		c.Priority,
		project,
		base,
	)
	if err != nil {
		return fmt.Errorf("update constraint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrConstraintNotFound
	}
	return nil
}

// Delete removes one constraint from a project's list.
func (r *ConstraintRepo) Delete(ctx context.Context, db *sql.DB, project, base string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM constraints WHERE project = ? AND base = ?`, project, base)
	if err != nil {
		return fmt.Errorf("delete constraint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrConstraintNotFound
	}
	return nil
}

// SetThreshold stores the acceptance percentage on the project's map
// row, whose priority doubles as the run threshold.
func (r *ConstraintRepo) SetThreshold(ctx context.Context, db *sql.DB, project string, percent float64) error {
	const q = `UPDATE constraints SET priority = ? WHERE project = ? AND type_in = ?`
	res, err := db.ExecContext(ctx, q, percent, project, string(domain.KindMap))
	if err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrMissingMapConstraint
	}
	return nil
}
