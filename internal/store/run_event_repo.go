package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/suricates/suitability/internal/domain"
)

// RunEventRepo handles persistence for run state-change events.
type RunEventRepo struct{}

// AppendTx inserts a run event within an existing transaction.
func (r *RunEventRepo) AppendTx(ctx context.Context, tx *sql.Tx, event domain.RunEvent) error {
	const q = `INSERT INTO run_events (run_id, state, detail, at) VALUES (?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		event.RunID,
		string(event.State),
		event.Detail,
		event.At,
	)
	if err != nil {
		return fmt.Errorf("append run event: %w", err)
	}
	return nil
}

// ListByRun returns a run's events with IDs greater than sinceID, oldest
// first. Passing zero returns the full history.
func (r *RunEventRepo) ListByRun(ctx context.Context, db *sql.DB, runID string, sinceID int64) ([]domain.RunEvent, error) {
	const q = `SELECT id, run_id, state, detail, at
FROM run_events
WHERE run_id = ? AND id > ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, runID, sinceID)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	var events []domain.RunEvent
	for rows.Next() {
		var e domain.RunEvent
		var state string
		if err := rows.Scan(&e.ID, &e.RunID, &state, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		e.State = domain.RunState(state)
		events = append(events, e)
	}
	return events, rows.Err()
}
