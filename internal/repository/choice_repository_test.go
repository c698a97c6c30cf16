package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maelco1/reset/internal/models"
)

var choiceColumnNames = []string{"id", "user_id", "trigram", "user_type", "created_at", "day", "month", "year", "column_number", "column_label", "planning_day_label", "slot_type_code", "guard_nature", "activity_type", "choice_order", "choice_index", "choice_rank", "etat", "is_active", "planning_reference", "tour_number"}

func choiceRow(rows *sqlmock.Rows, id int64, trigram string, status models.ChoiceStatus, rank int) *sqlmock.Rows {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	return rows.AddRow(id, "u-"+trigram, trigram, "medecin", now, day, 6, 2024, 5, "VIS", "Lundi 03 Juin 2024", "VIS", "normale", "visite", 1, 1, rank, string(status), true, "tour1-2024-06-07", 1)
}

func TestChoiceRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChoiceRepository(db)

	status := models.StatusPending
	rows := choiceRow(sqlmock.NewRows(choiceColumnNames), 1, "ABC", models.StatusPending, 1)
	mock.ExpectQuery(regexp.QuoteMeta("FROM planning_choices WHERE planning_reference = $1 AND tour_number = $2 AND etat = $3 AND LOWER(trigram) LIKE $4 AND is_active = TRUE ORDER BY choice_index DESC NULLS LAST, choice_rank ASC NULLS LAST, created_at ASC, id ASC")).
		WithArgs("tour1-2024-06-07", 1, "en attente", "%ab%").
		WillReturnRows(rows)

	choices, err := repo.List(context.Background(), models.ChoiceFilter{
		PlanningReference: "tour1-2024-06-07",
		TourNumber:        1,
		Status:            &status,
		Doctor:            " AB ",
	})
	require.NoError(t, err)
	require.Len(t, choices, 1)
	assert.Equal(t, "ABC", choices[0].Trigram)
	assert.Equal(t, "2024-06-03:5", choices[0].SlotKey())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChoiceRepositoryListBySlot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChoiceRepository(db)

	rows := sqlmock.NewRows(choiceColumnNames)
	choiceRow(rows, 1, "ABC", models.StatusPending, 1)
	choiceRow(rows, 2, "DEF", models.StatusPending, 1)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE planning_reference = $1 AND tour_number = $2 AND day = $3 AND column_number = $4")).
		WithArgs("tour1-2024-06-07", 1, "2024-06-03", 5).
		WillReturnRows(rows)

	choices, err := repo.ListBySlot(context.Background(), "tour1-2024-06-07", 1, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, err)
	assert.Len(t, choices, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChoiceRepositoryListByGroupWithoutIndex(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChoiceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPPER(trigram) = $3 AND choice_index IS NULL")).
		WithArgs("tour1-2024-06-07", 1, "ABC").
		WillReturnRows(sqlmock.NewRows(choiceColumnNames))

	choices, err := repo.ListByGroup(context.Background(), "tour1-2024-06-07", 1, "abc", nil)
	require.NoError(t, err)
	assert.Empty(t, choices)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChoiceRepositoryReplacePendingBatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChoiceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM planning_choices WHERE planning_reference = $1 AND tour_number = $2 AND UPPER(trigram) = $3 AND etat = $4")).
		WithArgs("tour1-2024-06-07", 1, "ABC", "en attente").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery("INSERT INTO planning_choices").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))
	mock.ExpectQuery("INSERT INTO planning_choices").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectCommit()

	batch := []models.PlanningChoice{
		{Trigram: "ABC", Day: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), ColumnNumber: 5, GuardNature: models.NatureNormal, Status: models.StatusPending, IsActive: true},
		{Trigram: "ABC", Day: time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC), ColumnNumber: 5, GuardNature: models.NatureNormal, Status: models.StatusPending, IsActive: true},
	}
	err := repo.ReplacePendingBatch(context.Background(), models.ChoiceScope{PlanningReference: "tour1-2024-06-07", TourNumber: 1, Trigram: "abc"}, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(41), batch[0].ID)
	assert.Equal(t, int64(42), batch[1].ID)
	assert.False(t, batch[0].CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChoiceRepositoryReplacePendingBatchRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChoiceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM planning_choices").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO planning_choices").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.ReplacePendingBatch(context.Background(), models.ChoiceScope{PlanningReference: "ref", TourNumber: 1, Trigram: "ABC"}, []models.PlanningChoice{{Trigram: "ABC"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChoiceRepositoryApplyStateChanges(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChoiceRepository(db)

	validated := models.StatusValidated
	refused := models.StatusRefused
	pending := models.StatusPending
	active := true
	changes := []models.StateChange{
		{ChoiceID: 1, Action: models.ChangeAccept, Next: models.ChoiceState{Status: &validated, IsActive: &active}},
		{ChoiceID: 2, Action: models.ChangeRefuse, Next: models.ChoiceState{Status: &refused}, OnlyIfStatus: &pending},
		{ChoiceID: 3, Action: models.ChangePromote, Next: models.ChoiceState{ChoiceRank: models.IntPtr(1)}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE planning_choices SET etat = $1, is_active = $2 WHERE id = $3")).
		WithArgs("validé", true, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE planning_choices SET etat = $1 WHERE id = $2 AND etat = $3")).
		WithArgs("refusé", int64(2), "en attente").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE planning_choices SET choice_rank = $1 WHERE id = $2")).
		WithArgs(1, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repo.ApplyStateChanges(context.Background(), changes)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, int64(1), applied[0].ChoiceID)
	assert.Equal(t, int64(3), applied[1].ChoiceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChoiceRepositoryApplyStateChangesRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChoiceRepository(db)

	refused := models.StatusRefused
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE planning_choices").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	_, err := repo.ApplyStateChanges(context.Background(), []models.StateChange{{ChoiceID: 9, Next: models.ChoiceState{Status: &refused}}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
