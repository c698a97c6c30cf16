package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/dto"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/repository"
	appErrors "github.com/Maelco1/reset/pkg/errors"
	"github.com/Maelco1/reset/pkg/jobs"
	"github.com/Maelco1/reset/pkg/storage"
)

// ExportJobType is the queue job type of planning exports.
const ExportJobType = "planning_export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type exportDispatcher interface {
	Enqueue(job jobs.Job[models.ExportJobParams]) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

type exportFiles interface {
	ParseToken(token string, allowExpired bool) (storage.SignedToken, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	Cleanup(ttl time.Duration) ([]string, error)
}

type latestRunReader interface {
	Latest(ctx context.Context, reference string, tour int) (*models.AutoAssignmentRun, error)
}

// ExportJobServiceConfig governs queue recovery and cleanup.
type ExportJobServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// ExportJobService manages the lifecycle of export jobs.
type ExportJobService struct {
	repo    exportJobStore
	runs    latestRunReader
	catalog catalogReader
	queue   exportDispatcher
	files   exportFiles
	logger  *zap.Logger
	cfg     ExportJobServiceConfig
	now     func() time.Time
}

// NewExportJobService constructs the export job service.
func NewExportJobService(repo exportJobStore, runs latestRunReader, catalog catalogReader, queue exportDispatcher, files exportFiles, logger *zap.Logger, cfg ExportJobServiceConfig) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportJobService{
		repo:    repo,
		runs:    runs,
		catalog: catalog,
		queue:   queue,
		files:   files,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// CreateJob persists an export job for the active window and enqueues it.
func (s *ExportJobService) CreateJob(ctx context.Context, req dto.ExportRequest, claims *models.JWTClaims) (*dto.ExportJobResponse, error) {
	kind := models.ExportKind(req.Kind)
	if kind == "" {
		kind = models.ExportKindAutoAssignment
	}
	format := models.ExportFormat(req.Format)
	if format == "" {
		format = models.ExportFormatCSV
	}
	if kind != models.ExportKindAutoAssignment && kind != models.ExportKindValidated {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export kind")
	}
	if format != models.ExportFormatCSV && format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}

	window, err := s.catalog.Window(ctx)
	if err != nil {
		return nil, err
	}
	params := models.ExportJobParams{Format: format}
	if kind == models.ExportKindAutoAssignment {
		run, err := s.runs.Latest(ctx, window.Reference(), window.Tour)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrNothingToUndo
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load auto-assignment batch")
		}
		params.RunID = run.ID
	}

	job := &models.ExportJob{
		Kind:              kind,
		PlanningReference: window.Reference(),
		TourNumber:        window.Tour,
		Params:            params,
		Status:            models.ExportStatusQueued,
		CreatedBy:         actorFromClaims(claims).ID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job[models.ExportJobParams]{ID: job.ID, Type: ExportJobType, Payload: job.Params}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return exportJobResponse(job), nil
}

// GetStatus exposes job metadata to clients.
func (s *ExportJobService) GetStatus(ctx context.Context, id string) (*dto.ExportJobResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return exportJobResponse(job), nil
}

// ResolveDownload validates the token and opens the stored export file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	signed, err := s.files.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, signed.JobID)
	if err != nil {
		return nil, err
	}
	if job.ResultURL == nil || extractToken(*job.ResultURL) != token {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.files.Open(signed.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(signed.Path),
		Format:    job.Params.Format,
		ExpiresAt: signed.ExpiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a restart.
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) int {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return 0
	}
	recovered := 0
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job[models.ExportJobParams]{ID: job.ID, Type: ExportJobType, Payload: job.Params}); err != nil {
			s.logger.Warn("failed to requeue pending export job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		recovered++
	}
	return recovered
}

// MarkGivenUp records the final failure of a job that exhausted its retries.
func (s *ExportJobService) MarkGivenUp(id string, cause error) {
	msg := "export failed"
	if cause != nil {
		msg = cause.Error()
	}
	s.markFailed(context.Background(), id, msg)
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ExportJobService) cleanupExpired(ctx context.Context) int {
	const batch = 100
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	removed := 0
	seen := make(map[string]struct{})
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, batch)
		if err != nil {
			s.logger.Warn("export cleanup list failed", zap.Error(err))
			return removed
		}
		fresh := 0
		for _, job := range expired {
			if _, ok := seen[job.ID]; ok {
				continue
			}
			seen[job.ID] = struct{}{}
			fresh++
			if job.ResultURL == nil {
				continue
			}
			signed, err := s.files.ParseToken(extractToken(*job.ResultURL), true)
			if err != nil {
				continue
			}
			if err := s.files.Delete(signed.Path); err != nil {
				s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			removed++
		}
		if len(expired) < batch || fresh == 0 {
			break
		}
	}
	if _, err := s.files.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export filesystem cleanup failed", zap.Error(err))
	}
	return removed
}

func (s *ExportJobService) load(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

func (s *ExportJobService) markFailed(ctx context.Context, id, msg string) {
	failed := models.ExportStatusFailed
	progress := 100
	now := s.now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
}

func exportJobResponse(job *models.ExportJob) *dto.ExportJobResponse {
	resp := &dto.ExportJobResponse{
		ID:          job.ID,
		Kind:        job.Kind,
		Status:      job.Status,
		Progress:    job.Progress,
		Format:      job.Params.Format,
		DownloadURL: job.ResultURL,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// ExportWorker bridges queue jobs to the ExportService.
type ExportWorker struct {
	repo       exportJobStore
	exporter   exportGenerator
	logger     *zap.Logger
	maxRetries int
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, exporter exportGenerator, maxRetries int, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ExportWorker{
		repo:       repo,
		exporter:   exporter,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes a queue job.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job[models.ExportJobParams]) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		params := repository.UpdateExportJobParams{ErrorMessage: &msg}
		if job.Attempt >= w.maxRetries {
			failed := models.ExportStatusFailed
			done := 100
			now := time.Now().UTC()
			params.Status, params.Progress, params.FinishedAt = &failed, &done, &now
		} else {
			queued := models.ExportStatusQueued
			reset := 0
			params.Status, params.Progress = &queued, &reset
		}
		if updateErr := w.repo.Update(ctx, job.ID, params); updateErr != nil {
			w.logger.Warn("failed to record export failure", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ExportStatusFinished
	progress = 100
	now := time.Now().UTC()
	url := result.URL
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark export job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.logger.Info("export job finished", zap.String("job_id", job.ID), zap.String("kind", string(record.Kind)))
	return nil
}
