package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Maelco1/reset/internal/models"
)

// SettingsRepository reads and writes the administrative planning parameters.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the current settings row. sql.ErrNoRows is returned when none exists.
func (r *SettingsRepository) Get(ctx context.Context) (*models.PlanningSettings, error) {
	const query = `SELECT id, active_tour, planning_year, planning_month_one, planning_month_two, updated_at FROM parametres_administratifs ORDER BY id ASC LIMIT 1`
	var settings models.PlanningSettings
	if err := r.db.GetContext(ctx, &settings, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get planning settings: %w", err)
	}
	return &settings, nil
}

// Save updates the settings row, inserting it on first use.
func (r *SettingsRepository) Save(ctx context.Context, settings *models.PlanningSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	if settings.ID == 0 {
		const insert = `INSERT INTO parametres_administratifs (active_tour, planning_year, planning_month_one, planning_month_two, updated_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`
		if err := r.db.QueryRowxContext(ctx, insert, settings.ActiveTour, settings.PlanningYear, settings.PlanningMonthOne, settings.PlanningMonthTwo, settings.UpdatedAt).Scan(&settings.ID); err != nil {
			return fmt.Errorf("insert planning settings: %w", err)
		}
		return nil
	}
	const update = `UPDATE parametres_administratifs SET active_tour = :active_tour, planning_year = :planning_year, planning_month_one = :planning_month_one, planning_month_two = :planning_month_two, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, update, settings); err != nil {
		return fmt.Errorf("update planning settings: %w", err)
	}
	return nil
}
