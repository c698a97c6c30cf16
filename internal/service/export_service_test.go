package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/pkg/storage"
)

func newExportServiceForTest(t *testing.T, runs exportRunReader, choices exportChoiceReader) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(runs, choices, store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop(), nil, nil)
	svc.now = fixedClock
	return svc
}

func readExport(t *testing.T, svc *ExportService, relPath string) (string, []byte) {
	t.Helper()
	file, err := svc.Open(relPath)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	return file.Name(), data
}

// appliedRunFixture applies one auto-assignment run over the rotation scenario.
func appliedRunFixture(t *testing.T) *autoAssignmentFixture {
	t.Helper()
	f := newAutoAssignmentFixture(rotationScenario()...)
	_, err := f.svc.Apply(context.Background(), dto.AutoAssignmentRequest{StartTrigram: "ABC", Rotations: 2}, adminClaims())
	require.NoError(t, err)
	return f
}

func TestExportServiceGenerateRunCSV(t *testing.T) {
	f := appliedRunFixture(t)
	svc := newExportServiceForTest(t, f.runs, f.store)

	job := &models.ExportJob{
		ID:                "job-1",
		Kind:              models.ExportKindAutoAssignment,
		PlanningReference: testReference,
		TourNumber:        1,
		Params:            models.ExportJobParams{Format: models.ExportFormatCSV, RunID: "run-1"},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatCSV, result.Format)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/exports/"))
	assert.Equal(t, "auto_assignment_tour1-2024-06-07_20240520_100000.csv", filepath.Base(result.RelativePath))

	_, data := readExport(t, svc, result.RelativePath)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Equal(t, "Demande;Trigramme;Jour;Colonne;Nature;Transition;Avant;Après;Motif", lines[0])
	assert.Len(t, lines, len(f.runs.entries["run-1"])+1)
	assert.Contains(t, string(data), "1;ABC;03/06/2024;1;normale;accept")
	assert.Contains(t, string(data), "Attribution automatique (normale)")
	assert.Contains(t, string(data), "Conflit avec ABC")

	signed, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", signed.JobID)
	assert.Equal(t, result.RelativePath, signed.Path)
}

func TestExportServiceGenerateValidatedPDF(t *testing.T) {
	f := appliedRunFixture(t)
	svc := newExportServiceForTest(t, f.runs, f.store)

	job := &models.ExportJob{
		ID:                "job-2",
		Kind:              models.ExportKindValidated,
		PlanningReference: testReference,
		TourNumber:        1,
		Params:            models.ExportJobParams{Format: models.ExportFormatPDF},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatPDF, result.Format)

	_, data := readExport(t, svc, result.RelativePath)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestExportServiceRejectsStaleRun(t *testing.T) {
	f := appliedRunFixture(t)
	svc := newExportServiceForTest(t, f.runs, f.store)

	_, err := svc.Generate(context.Background(), &models.ExportJob{
		ID:                "job-3",
		Kind:              models.ExportKindAutoAssignment,
		PlanningReference: testReference,
		TourNumber:        1,
		Params:            models.ExportJobParams{Format: models.ExportFormatCSV, RunID: "run-0"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer the latest")
}

func TestExportServiceCleanupRemovesOldFiles(t *testing.T) {
	f := appliedRunFixture(t)
	svc := newExportServiceForTest(t, f.runs, f.store)

	result, err := svc.Generate(context.Background(), &models.ExportJob{
		ID:                "job-4",
		Kind:              models.ExportKindValidated,
		PlanningReference: testReference,
		TourNumber:        1,
		Params:            models.ExportJobParams{Format: models.ExportFormatCSV},
	})
	require.NoError(t, err)

	full, _ := readExport(t, svc, result.RelativePath)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(full, old, old))

	removed, err := svc.Cleanup(0)
	require.NoError(t, err)
	assert.Len(t, removed, 1)
	_, err = os.Stat(full)
	assert.True(t, os.IsNotExist(err))
}

func TestDescribeState(t *testing.T) {
	status := models.StatusRefused
	active := false
	assert.Equal(t, "refusé, inactif, rang 2", describeState(models.ChoiceState{Status: &status, IsActive: &active, ChoiceRank: models.IntPtr(2)}))
	assert.Equal(t, "", describeState(models.ChoiceState{}))
}
