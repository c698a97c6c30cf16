package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Maelco1/reset/internal/models"
)

// AutoAssignmentRunRepository persists the reversible run log of auto-assignment batches.
type AutoAssignmentRunRepository struct {
	db *sqlx.DB
}

// NewAutoAssignmentRunRepository creates a new AutoAssignmentRunRepository.
func NewAutoAssignmentRunRepository(db *sqlx.DB) *AutoAssignmentRunRepository {
	return &AutoAssignmentRunRepository{db: db}
}

// Create stores the run header and its entries in one transaction.
func (r *AutoAssignmentRunRepository) Create(ctx context.Context, run *models.AutoAssignmentRun, entries []models.AutoAssignmentRunEntry) (err error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create auto assignment run: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const header = `INSERT INTO auto_assignment_runs (id, actor_id, actor_trigram, actor_username, planning_reference, tour_number, rotations_used, parameters, summary, created_at)
VALUES (:id, :actor_id, :actor_trigram, :actor_username, :planning_reference, :tour_number, :rotations_used, :parameters, :summary, :created_at)`
	if _, err = tx.NamedExecContext(ctx, header, run); err != nil {
		return fmt.Errorf("insert auto assignment run: %w", err)
	}

	const entry = `INSERT INTO auto_assignment_run_entries (run_id, choice_id, action, previous_state, next_state, reason, created_at)
VALUES (:run_id, :choice_id, :action, :previous_state, :next_state, :reason, :created_at)`
	for i := range entries {
		entries[i].RunID = run.ID
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = run.CreatedAt
		}
		if _, err = tx.NamedExecContext(ctx, entry, entries[i]); err != nil {
			return fmt.Errorf("insert auto assignment entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit auto assignment run: %w", err)
	}
	return nil
}

// Latest returns the most recent run of a reference/tour, sql.ErrNoRows when none exists.
func (r *AutoAssignmentRunRepository) Latest(ctx context.Context, reference string, tour int) (*models.AutoAssignmentRun, error) {
	const query = `SELECT id, actor_id, actor_trigram, actor_username, planning_reference, tour_number, rotations_used, parameters, summary, created_at
FROM auto_assignment_runs WHERE planning_reference = $1 AND tour_number = $2 ORDER BY created_at DESC LIMIT 1`
	var run models.AutoAssignmentRun
	if err := r.db.GetContext(ctx, &run, query, reference, tour); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("latest auto assignment run: %w", err)
	}
	return &run, nil
}

// Entries returns the entries of a run in application order.
func (r *AutoAssignmentRunRepository) Entries(ctx context.Context, runID string) ([]models.AutoAssignmentRunEntry, error) {
	const query = `SELECT id, run_id, choice_id, action, previous_state, next_state, reason, created_at
FROM auto_assignment_run_entries WHERE run_id = $1 ORDER BY id ASC`
	var entries []models.AutoAssignmentRunEntry
	if err := r.db.SelectContext(ctx, &entries, query, runID); err != nil {
		return nil, fmt.Errorf("list auto assignment entries: %w", err)
	}
	return entries, nil
}

// Delete removes a run and its entries.
func (r *AutoAssignmentRunRepository) Delete(ctx context.Context, runID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete auto assignment run: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM auto_assignment_run_entries WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("delete auto assignment entries: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM auto_assignment_runs WHERE id = $1`, runID); err != nil {
		return fmt.Errorf("delete auto assignment run: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete auto assignment run: %w", err)
	}
	return nil
}
