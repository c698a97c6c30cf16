package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Maelco1/reset/internal/models"
)

const choiceColumns = `id, user_id, trigram, user_type, created_at, day, month, year, column_number, column_label, planning_day_label, slot_type_code, guard_nature, activity_type, choice_order, choice_index, choice_rank, etat, is_active, planning_reference, tour_number`

const choiceOrdering = ` ORDER BY choice_index DESC NULLS LAST, choice_rank ASC NULLS LAST, created_at ASC, id ASC`

// ChoiceRepository provides access to submitted planning requests.
type ChoiceRepository struct {
	db *sqlx.DB
}

// NewChoiceRepository creates a new ChoiceRepository.
func NewChoiceRepository(db *sqlx.DB) *ChoiceRepository {
	return &ChoiceRepository{db: db}
}

// List returns requests matching the filter in priority order.
func (r *ChoiceRepository) List(ctx context.Context, filter models.ChoiceFilter) ([]models.PlanningChoice, error) {
	var conditions []string
	var args []interface{}

	if filter.PlanningReference != "" {
		conditions = append(conditions, fmt.Sprintf("planning_reference = $%d", len(args)+1))
		args = append(args, filter.PlanningReference)
	}
	if filter.TourNumber > 0 {
		conditions = append(conditions, fmt.Sprintf("tour_number = $%d", len(args)+1))
		args = append(args, filter.TourNumber)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("etat = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Day != nil {
		conditions = append(conditions, fmt.Sprintf("day = $%d", len(args)+1))
		args = append(args, filter.Day.Format(models.DayLayout))
	}
	if filter.ActivityType != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(activity_type) = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.ActivityType))
	}
	if filter.Trigram != "" {
		conditions = append(conditions, fmt.Sprintf("UPPER(trigram) = $%d", len(args)+1))
		args = append(args, models.NormalizeTrigram(filter.Trigram))
	}
	if filter.Doctor != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(trigram) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(filter.Doctor))+"%")
	}
	if filter.Column != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(column_label) LIKE $%d OR CAST(column_number AS TEXT) = $%d)", len(args)+1, len(args)+2))
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(filter.Column))+"%", strings.TrimSpace(filter.Column))
	}
	if filter.UserType != nil {
		conditions = append(conditions, fmt.Sprintf("user_type = $%d", len(args)+1))
		args = append(args, *filter.UserType)
	}
	if !filter.IncludeInactive {
		conditions = append(conditions, "is_active = TRUE")
	}

	query := "SELECT " + choiceColumns + " FROM planning_choices"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += choiceOrdering

	var choices []models.PlanningChoice
	if err := r.db.SelectContext(ctx, &choices, query, args...); err != nil {
		return nil, fmt.Errorf("list planning choices: %w", err)
	}
	return choices, nil
}

// GetByID returns a single request.
func (r *ChoiceRepository) GetByID(ctx context.Context, id int64) (*models.PlanningChoice, error) {
	query := "SELECT " + choiceColumns + " FROM planning_choices WHERE id = $1 LIMIT 1"
	var choice models.PlanningChoice
	if err := r.db.GetContext(ctx, &choice, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get planning choice: %w", err)
	}
	return &choice, nil
}

// ListBySlot returns the competing set of a grid cell.
func (r *ChoiceRepository) ListBySlot(ctx context.Context, reference string, tour int, day time.Time, column int) ([]models.PlanningChoice, error) {
	query := "SELECT " + choiceColumns + " FROM planning_choices WHERE planning_reference = $1 AND tour_number = $2 AND day = $3 AND column_number = $4" + choiceOrdering
	var choices []models.PlanningChoice
	if err := r.db.SelectContext(ctx, &choices, query, reference, tour, day.Format(models.DayLayout), column); err != nil {
		return nil, fmt.Errorf("list competing planning choices: %w", err)
	}
	return choices, nil
}

// ListByGroup returns the requests of a practitioner sharing a choice index. A nil index
// selects requests without index.
func (r *ChoiceRepository) ListByGroup(ctx context.Context, reference string, tour int, trigram string, index *int) ([]models.PlanningChoice, error) {
	query := "SELECT " + choiceColumns + " FROM planning_choices WHERE planning_reference = $1 AND tour_number = $2 AND UPPER(trigram) = $3"
	args := []interface{}{reference, tour, models.NormalizeTrigram(trigram)}
	if index == nil {
		query += " AND choice_index IS NULL"
	} else {
		query += " AND choice_index = $4"
		args = append(args, *index)
	}
	query += choiceOrdering

	var choices []models.PlanningChoice
	if err := r.db.SelectContext(ctx, &choices, query, args...); err != nil {
		return nil, fmt.Errorf("list planning choice group: %w", err)
	}
	return choices, nil
}

// ListByOrder returns the requests of a practitioner sharing a submission order.
func (r *ChoiceRepository) ListByOrder(ctx context.Context, reference string, tour int, trigram string, order int) ([]models.PlanningChoice, error) {
	query := "SELECT " + choiceColumns + " FROM planning_choices WHERE planning_reference = $1 AND tour_number = $2 AND UPPER(trigram) = $3 AND choice_order = $4" + choiceOrdering
	var choices []models.PlanningChoice
	if err := r.db.SelectContext(ctx, &choices, query, reference, tour, models.NormalizeTrigram(trigram), order); err != nil {
		return nil, fmt.Errorf("list planning choices by order: %w", err)
	}
	return choices, nil
}

// ListValidatedOnDay returns the validated requests of a practitioner on one day.
func (r *ChoiceRepository) ListValidatedOnDay(ctx context.Context, reference string, tour int, trigram string, day time.Time) ([]models.PlanningChoice, error) {
	query := "SELECT " + choiceColumns + " FROM planning_choices WHERE planning_reference = $1 AND tour_number = $2 AND UPPER(trigram) = $3 AND day = $4 AND etat = $5" + choiceOrdering
	var choices []models.PlanningChoice
	if err := r.db.SelectContext(ctx, &choices, query, reference, tour, models.NormalizeTrigram(trigram), day.Format(models.DayLayout), models.StatusValidated); err != nil {
		return nil, fmt.Errorf("list validated planning choices: %w", err)
	}
	return choices, nil
}

// ListByIDs returns the requests with the given ids.
func (r *ChoiceRepository) ListByIDs(ctx context.Context, ids []int64) ([]models.PlanningChoice, error) {
	if len(ids) == 0 {
		return []models.PlanningChoice{}, nil
	}
	query := "SELECT " + choiceColumns + " FROM planning_choices WHERE id = ANY($1)" + choiceOrdering
	var choices []models.PlanningChoice
	if err := r.db.SelectContext(ctx, &choices, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list planning choices by ids: %w", err)
	}
	return choices, nil
}

// ReplacePendingBatch deletes the pending requests of a scope and inserts the new batch in one
// transaction. Inserted ids and timestamps are written back into choices.
func (r *ChoiceRepository) ReplacePendingBatch(ctx context.Context, scope models.ChoiceScope, choices []models.PlanningChoice) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace planning choices: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const deleteQuery = `DELETE FROM planning_choices WHERE planning_reference = $1 AND tour_number = $2 AND UPPER(trigram) = $3 AND etat = $4`
	if _, err = tx.ExecContext(ctx, deleteQuery, scope.PlanningReference, scope.TourNumber, models.NormalizeTrigram(scope.Trigram), models.StatusPending); err != nil {
		return fmt.Errorf("clear pending planning choices: %w", err)
	}

	const insertQuery = `INSERT INTO planning_choices (user_id, trigram, user_type, created_at, day, month, year, column_number, column_label, planning_day_label, slot_type_code, guard_nature, activity_type, choice_order, choice_index, choice_rank, etat, is_active, planning_reference, tour_number)
VALUES (:user_id, :trigram, :user_type, :created_at, :day, :month, :year, :column_number, :column_label, :planning_day_label, :slot_type_code, :guard_nature, :activity_type, :choice_order, :choice_index, :choice_rank, :etat, :is_active, :planning_reference, :tour_number)
RETURNING id`

	now := time.Now().UTC()
	for i := range choices {
		choice := &choices[i]
		if choice.CreatedAt.IsZero() {
			choice.CreatedAt = now
		}
		query, args, bindErr := tx.BindNamed(insertQuery, choice)
		if bindErr != nil {
			err = bindErr
			return fmt.Errorf("bind planning choice: %w", err)
		}
		if err = tx.QueryRowxContext(ctx, query, args...).Scan(&choice.ID); err != nil {
			return fmt.Errorf("insert planning choice: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace planning choices: %w", err)
	}
	return nil
}

// ApplyStateChanges runs the commands in one transaction and returns the ones that touched a
// row. A change guarded by OnlyIfStatus is skipped when the row no longer holds that status.
func (r *ChoiceRepository) ApplyStateChanges(ctx context.Context, changes []models.StateChange) (applied []models.StateChange, err error) {
	if len(changes) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin apply planning changes: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	applied = make([]models.StateChange, 0, len(changes))
	for _, change := range changes {
		query, args := stateUpdate(change)
		if query == "" {
			continue
		}
		res, execErr := tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			err = execErr
			return nil, fmt.Errorf("apply planning change on %d: %w", change.ChoiceID, err)
		}
		affected, rowsErr := res.RowsAffected()
		if rowsErr != nil {
			err = rowsErr
			return nil, fmt.Errorf("planning change rows affected: %w", err)
		}
		if affected > 0 {
			applied = append(applied, change)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit planning changes: %w", err)
	}
	return applied, nil
}

func stateUpdate(change models.StateChange) (string, []interface{}) {
	var sets []string
	var args []interface{}
	if change.Next.Status != nil {
		args = append(args, *change.Next.Status)
		sets = append(sets, fmt.Sprintf("etat = $%d", len(args)))
	}
	if change.Next.IsActive != nil {
		args = append(args, *change.Next.IsActive)
		sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if change.Next.ChoiceRank != nil {
		args = append(args, *change.Next.ChoiceRank)
		sets = append(sets, fmt.Sprintf("choice_rank = $%d", len(args)))
	}
	if len(sets) == 0 {
		return "", nil
	}
	args = append(args, change.ChoiceID)
	query := fmt.Sprintf("UPDATE planning_choices SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if change.OnlyIfStatus != nil {
		args = append(args, *change.OnlyIfStatus)
		query += fmt.Sprintf(" AND etat = $%d", len(args))
	}
	return query, args
}
