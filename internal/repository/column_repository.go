package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Maelco1/reset/internal/models"
)

const columnFields = `tour_number, position, label, type_code, type_category, start_time, end_time, color, quality_weekdays, quality_saturday, quality_sunday, open_mauvaise_weekdays, open_mauvaise_saturday, open_mauvaise_sunday, open_bonus_weekdays, open_bonus_saturday, open_bonus_sunday`

// ColumnRepository manages the per-tour slot catalog.
type ColumnRepository struct {
	db *sqlx.DB
}

// NewColumnRepository creates a new ColumnRepository.
func NewColumnRepository(db *sqlx.DB) *ColumnRepository {
	return &ColumnRepository{db: db}
}

// ListByTour returns the columns of a tour ordered by position.
func (r *ColumnRepository) ListByTour(ctx context.Context, tour int) ([]models.PlanningColumn, error) {
	query := "SELECT " + columnFields + " FROM planning_columns WHERE tour_number = $1 ORDER BY position ASC"
	var columns []models.PlanningColumn
	if err := r.db.SelectContext(ctx, &columns, query, tour); err != nil {
		return nil, fmt.Errorf("list planning columns: %w", err)
	}
	return columns, nil
}

// Get returns one column definition.
func (r *ColumnRepository) Get(ctx context.Context, tour, position int) (*models.PlanningColumn, error) {
	query := "SELECT " + columnFields + " FROM planning_columns WHERE tour_number = $1 AND position = $2 LIMIT 1"
	var column models.PlanningColumn
	if err := r.db.GetContext(ctx, &column, query, tour, position); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get planning column: %w", err)
	}
	return &column, nil
}

// UpsertMany inserts or replaces column definitions within a transaction.
func (r *ColumnRepository) UpsertMany(ctx context.Context, columns []models.PlanningColumn) error {
	if len(columns) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert planning columns: %w", err)
	}
	const query = `INSERT INTO planning_columns (tour_number, position, label, type_code, type_category, start_time, end_time, color, quality_weekdays, quality_saturday, quality_sunday, open_mauvaise_weekdays, open_mauvaise_saturday, open_mauvaise_sunday, open_bonus_weekdays, open_bonus_saturday, open_bonus_sunday)
VALUES (:tour_number, :position, :label, :type_code, :type_category, :start_time, :end_time, :color, :quality_weekdays, :quality_saturday, :quality_sunday, :open_mauvaise_weekdays, :open_mauvaise_saturday, :open_mauvaise_sunday, :open_bonus_weekdays, :open_bonus_saturday, :open_bonus_sunday)
ON CONFLICT (tour_number, position)
DO UPDATE SET label = EXCLUDED.label, type_code = EXCLUDED.type_code, type_category = EXCLUDED.type_category,
              start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time, color = EXCLUDED.color,
              quality_weekdays = EXCLUDED.quality_weekdays, quality_saturday = EXCLUDED.quality_saturday, quality_sunday = EXCLUDED.quality_sunday,
              open_mauvaise_weekdays = EXCLUDED.open_mauvaise_weekdays, open_mauvaise_saturday = EXCLUDED.open_mauvaise_saturday, open_mauvaise_sunday = EXCLUDED.open_mauvaise_sunday,
              open_bonus_weekdays = EXCLUDED.open_bonus_weekdays, open_bonus_saturday = EXCLUDED.open_bonus_saturday, open_bonus_sunday = EXCLUDED.open_bonus_sunday`
	for i := range columns {
		if _, err := tx.NamedExecContext(ctx, query, columns[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert planning column %d: %w", columns[i].Position, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit planning columns: %w", err)
	}
	return nil
}
