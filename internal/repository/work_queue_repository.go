package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Maelco1/reset/internal/models"
)

const defaultWorkQueueChunk = 100

// WorkQueueRepository maintains the auto-assignment workspace mirror of pending requests.
type WorkQueueRepository struct {
	db        *sqlx.DB
	chunkSize int
}

// NewWorkQueueRepository creates a repository inserting rows in batches of chunkSize.
func NewWorkQueueRepository(db *sqlx.DB, chunkSize int) *WorkQueueRepository {
	if chunkSize <= 0 {
		chunkSize = defaultWorkQueueChunk
	}
	return &WorkQueueRepository{db: db, chunkSize: chunkSize}
}

// Replace clears the workspace of a reference/tour and inserts entries in chunks, all in one
// transaction.
func (r *WorkQueueRepository) Replace(ctx context.Context, reference string, tour int, entries []models.WorkQueueEntry) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace work queue: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM auto_assignment_work_queue WHERE planning_reference = $1 AND tour_number = $2`, reference, tour); err != nil {
		return fmt.Errorf("clear work queue: %w", err)
	}

	const insert = `INSERT INTO auto_assignment_work_queue (choice_id, planning_reference, tour_number, trigram, user_id, user_type, day, column_number, column_label, planning_day_label, slot_type_code, guard_nature, activity_type, choice_index, root_choice_index, choice_rank, consolidated_index, priority, status, is_active, created_at, metadata)
VALUES (:choice_id, :planning_reference, :tour_number, :trigram, :user_id, :user_type, :day, :column_number, :column_label, :planning_day_label, :slot_type_code, :guard_nature, :activity_type, :choice_index, :root_choice_index, :choice_rank, :consolidated_index, :priority, :status, :is_active, :created_at, :metadata)`

	for start := 0; start < len(entries); start += r.chunkSize {
		end := start + r.chunkSize
		if end > len(entries) {
			end = len(entries)
		}
		if _, err = tx.NamedExecContext(ctx, insert, entries[start:end]); err != nil {
			return fmt.Errorf("insert work queue chunk: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit work queue: %w", err)
	}
	return nil
}

// DeleteByChoiceIDs removes the rows of the given requests.
func (r *WorkQueueRepository) DeleteByChoiceIDs(ctx context.Context, reference string, tour int, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `DELETE FROM auto_assignment_work_queue WHERE planning_reference = $1 AND tour_number = $2 AND choice_id = ANY($3)`
	if _, err := r.db.ExecContext(ctx, query, reference, tour, pq.Array(ids)); err != nil {
		return fmt.Errorf("delete work queue rows: %w", err)
	}
	return nil
}

// DeleteByRoot removes the rows of a practitioner sharing a root choice index.
func (r *WorkQueueRepository) DeleteByRoot(ctx context.Context, reference string, tour int, trigram string, rootIndex int) error {
	const query = `DELETE FROM auto_assignment_work_queue WHERE planning_reference = $1 AND tour_number = $2 AND trigram = $3 AND root_choice_index = $4`
	if _, err := r.db.ExecContext(ctx, query, reference, tour, models.NormalizeTrigram(trigram), rootIndex); err != nil {
		return fmt.Errorf("delete work queue group: %w", err)
	}
	return nil
}

// List returns the workspace rows of a reference/tour in priority order.
func (r *WorkQueueRepository) List(ctx context.Context, reference string, tour int) ([]models.WorkQueueEntry, error) {
	const query = `SELECT choice_id, planning_reference, tour_number, trigram, user_id, user_type, day, column_number, column_label, planning_day_label, slot_type_code, guard_nature, activity_type, choice_index, root_choice_index, choice_rank, consolidated_index, priority, status, is_active, created_at, metadata
FROM auto_assignment_work_queue WHERE planning_reference = $1 AND tour_number = $2
ORDER BY root_choice_index DESC NULLS LAST, priority ASC NULLS LAST, created_at ASC`
	var entries []models.WorkQueueEntry
	if err := r.db.SelectContext(ctx, &entries, query, reference, tour); err != nil {
		return nil, fmt.Errorf("list work queue: %w", err)
	}
	return entries, nil
}
