package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Maelco1/reset/internal/models"
)

// ChoiceAuditRepository stores request-level audit entries.
type ChoiceAuditRepository struct {
	db *sqlx.DB
}

// NewChoiceAuditRepository creates a new ChoiceAuditRepository.
func NewChoiceAuditRepository(db *sqlx.DB) *ChoiceAuditRepository {
	return &ChoiceAuditRepository{db: db}
}

// Create appends an audit entry.
func (r *ChoiceAuditRepository) Create(ctx context.Context, audit *models.ChoiceAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO planning_choice_audit (id, action, choice_id, target_trigram, target_day, target_column_number, planning_reference, tour_number, reason, metadata, actor_id, actor_trigram, actor_username, created_at)
VALUES (:id, :action, :choice_id, :target_trigram, :target_day, :target_column_number, :planning_reference, :tour_number, :reason, :metadata, :actor_id, :actor_trigram, :actor_username, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, audit); err != nil {
		return fmt.Errorf("create choice audit: %w", err)
	}
	return nil
}

// ListByChoice returns the audit trail of a request, oldest first.
func (r *ChoiceAuditRepository) ListByChoice(ctx context.Context, choiceID int64) ([]models.ChoiceAudit, error) {
	const query = `SELECT id, action, choice_id, target_trigram, target_day, target_column_number, planning_reference, tour_number, reason, metadata, actor_id, actor_trigram, actor_username, created_at
FROM planning_choice_audit WHERE choice_id = $1 ORDER BY created_at ASC`
	var audits []models.ChoiceAudit
	if err := r.db.SelectContext(ctx, &audits, query, choiceID); err != nil {
		return nil, fmt.Errorf("list choice audit: %w", err)
	}
	return audits, nil
}
