package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/suricates/suitability/internal/domain"
)

// RunRepo handles persistence for run records.
type RunRepo struct{}

// CreateTx inserts a new run within an existing transaction. The run's
// state version is initialized to 1.
func (r *RunRepo) CreateTx(ctx context.Context, tx *sql.Tx, run *domain.Run) error {
	outputs, err := marshalOutputs(run.Outputs)
	if err != nil {
		return err
	}
	const q = `INSERT INTO runs (run_id, project, state, state_version, estimated_steps, produced, error_code, error_message, outputs_json, started_at, finished_at)
VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?, 0)`
	_, err = tx.ExecContext(ctx, q,
		run.RunID,
		run.Project,
		string(run.State),
		run.EstimatedSteps,
		run.Produced,
		run.ErrorCode,
		run.ErrorMessage,
		outputs,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	run.StateVersion = 1
	return nil
}

// UpdateStateTx updates a run within a transaction using optimistic
// locking: the update only succeeds if the stored state_version still
// matches, and the in-memory version is bumped on success.
func (r *RunRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, run *domain.Run) error {
	outputs, err := marshalOutputs(run.Outputs)
	if err != nil {
		return err
	}
	const q = `UPDATE runs SET
		state = ?,
		state_version = state_version + 1,
		estimated_steps = ?,
		produced = ?,
		error_code = ?,
		error_message = ?,
		outputs_json = ?,
		finished_at = ?
	WHERE run_id = ? AND state_version = ?`

	res, err := tx.ExecContext(ctx, q,
		string(run.State),
		run.EstimatedSteps,
		run.Produced,
		run.ErrorCode,
		run.ErrorMessage,
		outputs,
		run.FinishedAt,
		run.RunID,
		run.StateVersion,
	)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOptimisticLock
	}
	run.StateVersion++
	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepo) GetByID(ctx context.Context, db *sql.DB, runID string) (*domain.Run, error) {
	const q = `SELECT run_id, project, state, state_version, estimated_steps, produced, error_code, error_message, outputs_json, started_at, finished_at
FROM runs WHERE run_id = ?`

	run, err := scanRun(db.QueryRowContext(ctx, q, runID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListByProject returns a project's runs, newest first.
func (r *RunRepo) ListByProject(ctx context.Context, db *sql.DB, project string, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	const q = `SELECT run_id, project, state, state_version, estimated_steps, produced, error_code, error_message, outputs_json, started_at, finished_at
FROM runs WHERE project = ? ORDER BY started_at DESC LIMIT ?`

	rows, err := db.QueryContext(ctx, q, project, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var state, outputs string
	err := row.Scan(&run.RunID, &run.Project, &state, &run.StateVersion,
		&run.EstimatedSteps, &run.Produced, &run.ErrorCode, &run.ErrorMessage,
		&outputs, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	run.State = domain.RunState(state)
	if outputs != "" && outputs != "{}" {
		if err := json.Unmarshal([]byte(outputs), &run.Outputs); err != nil {
			return nil, fmt.Errorf("decode outputs: %w", err)
		}
	}
	return &run, nil
}

func marshalOutputs(outputs domain.PipelineResult) (string, error) {
	if len(outputs) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(outputs)
	if err != nil {
		return "", fmt.Errorf("encode outputs: %w", err)
	}
	return string(raw), nil
}

// RunJournal records run transitions one transaction at a time. It is
// the persistence hook the pipeline runner calls on every state change.
type RunJournal struct {
	DB     *sql.DB
	Runs   *RunRepo
	Events *RunEventRepo
}

// UpdateRun applies one optimistic state update in its own transaction.
// When an event repo is attached, the matching history event commits
// with the state change.
func (j *RunJournal) UpdateRun(run *domain.Run) error {
	ctx := context.Background()
	tx, err := j.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run update: %w", err)
	}
	if err := j.Runs.UpdateStateTx(ctx, tx, run); err != nil {
		tx.Rollback()
		return err
	}
	if j.Events != nil {
		event := domain.RunEvent{RunID: run.RunID, State: run.State, At: time.Now().Unix()}
		if run.State == domain.RunFailed {
			event.Detail = run.ErrorMessage
		}
		if err := j.Events.AppendTx(ctx, tx, event); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run update: %w", err)
	}
	return nil
}
