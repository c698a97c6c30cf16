// Package app assembles the repositories and services shared by the HTTP gateway and gardectl.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/repository"
	"github.com/Maelco1/reset/internal/service"
	"github.com/Maelco1/reset/pkg/cache"
	"github.com/Maelco1/reset/pkg/config"
	"github.com/Maelco1/reset/pkg/database"
	"github.com/Maelco1/reset/pkg/export"
	"github.com/Maelco1/reset/pkg/jobs"
	"github.com/Maelco1/reset/pkg/storage"
)

// Container holds the wired dependency graph.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Users    *repository.UserRepository
	Choices  *repository.ChoiceRepository
	Runs     *repository.AutoAssignmentRunRepository
	Queue    *repository.WorkQueueRepository
	JobStore *repository.ExportJobRepository

	Metrics        *service.MetricsService
	Notifier       *service.ChangeNotifier
	Auth           *service.AuthService
	UserAccounts   *service.UserService
	Catalog        *service.CatalogService
	Selection      *service.SelectionService
	Resolution     *service.ResolutionService
	AutoAssignment *service.AutoAssignmentService
	Exports        *service.ExportService
	ExportJobs     *service.ExportJobService
	Board          *service.RequestBoard

	exportQueue *jobs.Queue[models.ExportJobParams]
}

// New connects PostgreSQL (required) and Redis (optional) and builds every service.
// Without Redis the catalog cache is disabled, drafts stay in memory and change events are
// delivered in-process.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, running without cache and shared change feed", zap.Error(err))
		redisClient = nil
	}

	c, err := build(cfg, logger, db, redisClient)
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func build(cfg *config.Config, logger *zap.Logger, db *sqlx.DB, redisClient *redis.Client) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, DB: db, Redis: redisClient}
	validate := validator.New()

	c.Users = repository.NewUserRepository(db)
	c.Choices = repository.NewChoiceRepository(db)
	c.Runs = repository.NewAutoAssignmentRunRepository(db)
	c.Queue = repository.NewWorkQueueRepository(db, cfg.AutoAssignment.ChunkSize)
	c.JobStore = repository.NewExportJobRepository(db)
	columns := repository.NewColumnRepository(db)
	settings := repository.NewSettingsRepository(db)
	audits := repository.NewChoiceAuditRepository(db)
	drafts := repository.NewDraftRepository(redisClient, cfg.Planning.DraftTTL)

	c.Metrics = service.NewMetricsService()
	var feed *redis.Client
	if cfg.Realtime.Enabled {
		feed = redisClient
	}
	c.Notifier = service.NewChangeNotifier(feed, cfg.Realtime.Channel, logger.Named("changes"))

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logger), c.Metrics, cfg.Planning.CacheTTL, logger, redisClient != nil)

	c.Auth = service.NewAuthService(c.Users, validate, logger, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "garde-planning",
	})
	c.UserAccounts = service.NewUserService(c.Users, validate, logger)
	c.Catalog = service.NewCatalogService(columns, settings, cacheSvc, c.Users, validate, logger, service.CatalogServiceConfig{
		DefaultTour: cfg.Planning.DefaultTour,
		CacheTTL:    cfg.Planning.CacheTTL,
	})
	c.Selection = service.NewSelectionService(drafts, c.Choices, c.Catalog, c.Notifier, validate, logger)
	c.Resolution = service.NewResolutionService(c.Choices, audits, c.Queue, c.Catalog, c.Metrics, c.Notifier, validate, logger)
	c.AutoAssignment = service.NewAutoAssignmentService(c.Choices, c.Resolution, c.Runs, c.Queue, c.Users, c.Catalog, c.Metrics, c.Notifier, validate, logger)
	c.Board = service.NewRequestBoard(c.Resolution, logger.Named("board"), service.WithLoadObserver(c.Metrics))

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return c, fmt.Errorf("init export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	c.Exports = service.NewExportService(c.Runs, c.Choices, files, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logger, export.NewCSVExporter(), export.NewPDFExporter())

	worker := service.NewExportWorker(c.JobStore, c.Exports, cfg.Exports.WorkerRetries, logger.Named("exports"))
	c.exportQueue = jobs.NewQueue[models.ExportJobParams]("exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logger.Named("queue"),
		OnGiveUp: func(id string, err error) {
			c.ExportJobs.MarkGivenUp(id, err)
		},
	})
	c.ExportJobs = service.NewExportJobService(c.JobStore, c.Runs, c.Catalog, c.exportQueue, c.Exports, logger.Named("exports"), service.ExportJobServiceConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: time.Hour,
	})
	return c, nil
}

// StartBackground launches the export workers, re-enqueues jobs left queued by a previous
// process, starts result cleanup and keeps the request board in sync with the change feed.
func (c *Container) StartBackground(ctx context.Context) {
	c.exportQueue.Start(ctx)
	if n := c.ExportJobs.RecoverPendingJobs(ctx); n > 0 {
		c.Logger.Info("recovered queued exports", zap.Int("count", n))
	}
	c.ExportJobs.StartCleanup(ctx)
	go func() {
		if err := c.Board.Run(ctx, c.Notifier); err != nil && ctx.Err() == nil {
			c.Logger.Error("request board stopped", zap.Error(err))
		}
	}()
}

// Ping reports database availability.
func (c *Container) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// PingRedis reports cache availability. A container running without Redis is considered ready.
func (c *Container) PingRedis(ctx context.Context) error {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.Ping(ctx).Err()
}

// Close stops the workers and releases connections.
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.exportQueue != nil {
		c.exportQueue.Stop()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}
