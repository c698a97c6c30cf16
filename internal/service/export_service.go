package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/planning"
	"github.com/Maelco1/reset/pkg/export"
	"github.com/Maelco1/reset/pkg/storage"
)

type exportRunReader interface {
	Latest(ctx context.Context, reference string, tour int) (*models.AutoAssignmentRun, error)
	Entries(ctx context.Context, runID string) ([]models.AutoAssignmentRunEntry, error)
}

type exportChoiceReader interface {
	List(ctx context.Context, filter models.ChoiceFilter) ([]models.PlanningChoice, error)
	ListByIDs(ctx context.Context, ids []int64) ([]models.PlanningChoice, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService builds planning datasets and persists rendered files.
type ExportService struct {
	runs    exportRunReader
	choices exportChoiceReader
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(runs exportRunReader, choices exportChoiceReader, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		runs:    runs,
		choices: choices,
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Generate builds the dataset of the job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Debug("export rendered", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int("rows", len(dataset.Rows)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.SignedToken, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to the configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", job.Kind, sanitizeFilename(job.PlanningReference), timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	switch job.Kind {
	case models.ExportKindAutoAssignment:
		return s.buildRunDataset(ctx, job)
	case models.ExportKindValidated:
		return s.buildValidatedDataset(ctx, job)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported export kind %s", job.Kind)
	}
}

var runExportHeaders = []string{"Demande", "Trigramme", "Jour", "Colonne", "Nature", "Transition", "Avant", "Après", "Motif"}

func (s *ExportService) buildRunDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	run, err := s.runs.Latest(ctx, job.PlanningReference, job.TourNumber)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load latest run: %w", err)
	}
	if job.Params.RunID != "" && job.Params.RunID != run.ID {
		return export.Dataset{}, "", fmt.Errorf("auto-assignment run %s is no longer the latest", job.Params.RunID)
	}
	entries, err := s.runs.Entries(ctx, run.ID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load run entries: %w", err)
	}

	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ChoiceID)
	}
	choices, err := s.choices.ListByIDs(ctx, ids)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load run requests: %w", err)
	}
	byID := make(map[int64]models.PlanningChoice, len(choices))
	for _, c := range choices {
		byID[c.ID] = c
	}

	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		change, err := entry.Change()
		if err != nil {
			return export.Dataset{}, "", err
		}
		c := byID[entry.ChoiceID]
		rows = append(rows, map[string]string{
			"Demande":    strconv.FormatInt(entry.ChoiceID, 10),
			"Trigramme":  c.Trigram,
			"Jour":       formatExportDay(c.Day),
			"Colonne":    columnCaption(c),
			"Nature":     string(c.GuardNature),
			"Transition": string(change.Action),
			"Avant":      describeState(change.Previous),
			"Après":      describeState(change.Next),
			"Motif":      change.Reason,
		})
	}
	title := fmt.Sprintf("Attribution automatique %s (%s)", run.PlanningReference, run.CreatedAt.UTC().Format("02/01/2006 15:04"))
	return export.Dataset{Headers: runExportHeaders, Rows: rows}, title, nil
}

var validatedExportHeaders = []string{"Trigramme", "Population", "Jour", "Colonne", "Nature", "Activité", "Indice"}

func (s *ExportService) buildValidatedDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, string, error) {
	validated := models.StatusValidated
	choices, err := s.choices.List(ctx, models.ChoiceFilter{
		PlanningReference: job.PlanningReference,
		TourNumber:        job.TourNumber,
		Status:            &validated,
	})
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load validated requests: %w", err)
	}
	rows := make([]map[string]string, 0, len(choices))
	for _, c := range choices {
		rows = append(rows, map[string]string{
			"Trigramme":  c.Trigram,
			"Population": string(c.UserType),
			"Jour":       formatExportDay(c.Day),
			"Colonne":    columnCaption(c),
			"Nature":     string(c.GuardNature),
			"Activité":   c.ActivityType,
			"Indice":     planning.ConsolidatedIndex(c.ChoiceIndex, c.ChoiceRank),
		})
	}
	title := fmt.Sprintf("Gardes attribuées %s", job.PlanningReference)
	return export.Dataset{Headers: validatedExportHeaders, Rows: rows}, title, nil
}

func formatExportDay(day time.Time) string {
	if day.IsZero() {
		return ""
	}
	return day.Format("02/01/2006")
}

func columnCaption(c models.PlanningChoice) string {
	if c.ColumnLabel == "" {
		return strconv.Itoa(c.ColumnNumber)
	}
	return fmt.Sprintf("%d - %s", c.ColumnNumber, c.ColumnLabel)
}

func describeState(state models.ChoiceState) string {
	parts := make([]string, 0, 3)
	if state.Status != nil {
		parts = append(parts, string(*state.Status))
	}
	if state.IsActive != nil {
		if *state.IsActive {
			parts = append(parts, "actif")
		} else {
			parts = append(parts, "inactif")
		}
	}
	if state.ChoiceRank != nil {
		parts = append(parts, fmt.Sprintf("rang %d", *state.ChoiceRank))
	}
	return strings.Join(parts, ", ")
}
