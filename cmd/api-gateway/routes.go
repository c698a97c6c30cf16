package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/Maelco1/reset/internal/app"
	"github.com/Maelco1/reset/internal/handler"
	"github.com/Maelco1/reset/internal/middleware"
	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/pkg/config"
	"github.com/Maelco1/reset/pkg/logger"
	corsmiddleware "github.com/Maelco1/reset/pkg/middleware/cors"
	reqidmiddleware "github.com/Maelco1/reset/pkg/middleware/requestid"
	"github.com/Maelco1/reset/pkg/ratelimit"
)

func newRouter(ctx context.Context, c *app.Container) (*gin.Engine, *handler.RealtimeHandler) {
	cfg := c.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(c.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(c.Metrics))

	metricsHandler := handler.NewMetricsHandler(c.Metrics, map[string]handler.ReadinessCheck{
		"postgres": c.Ping,
		"redis":    c.PingRedis,
	})
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.Run(ctx, time.Minute)

	authHandler := handler.NewAuthHandler(c.Auth)
	userHandler := handler.NewUserHandler(c.UserAccounts)
	catalogHandler := handler.NewCatalogHandler(c.Catalog)
	selectionHandler := handler.NewSelectionHandler(c.Selection)
	requestHandler := handler.NewRequestHandler(c.Resolution, c.Board)
	autoHandler := handler.NewAutoAssignmentHandler(c.AutoAssignment)
	exportHandler := handler.NewExportHandler(c.ExportJobs, c.Logger)
	realtime := handler.NewRealtimeHandler(cfg.CORS.AllowedOrigins, c.Logger.Named("ws"))
	c.Board.Subscribe(realtime.Broadcast)

	jwt := middleware.JWT(c.Auth)
	admin := middleware.RequireAdmin()

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	auth := api.Group("/auth")
	auth.POST("/login", limiter.Middleware(), authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", jwt, authHandler.Logout)
	auth.GET("/me", jwt, authHandler.Me)

	// signed tokens authenticate downloads
	api.GET("/exports/:token", exportHandler.Download)

	secured := api.Group("")
	secured.Use(jwt)

	secured.GET("/ws/planning", realtime.Subscribe)

	users := secured.Group("/users")
	users.GET("/directory", userHandler.Directory)
	users.POST("", admin, userHandler.Create)
	users.DELETE("/:id", admin, userHandler.Delete)

	planning := secured.Group("/planning")
	planning.GET("/settings", catalogHandler.Settings)
	planning.PUT("/settings", admin, catalogHandler.UpdateSettings)
	planning.GET("/columns", catalogHandler.Columns)
	planning.PUT("/columns/:position", admin, catalogHandler.UpdateColumn)
	planning.GET("/calendar", catalogHandler.Calendar)

	selections := secured.Group("/selections")
	selections.Use(middleware.RequirePractitioner())
	selections.GET("", selectionHandler.State)
	selections.POST("", selectionHandler.Add)
	selections.DELETE("", selectionHandler.Clear)
	selections.POST("/toggle", selectionHandler.Toggle)
	selections.PUT("/order", selectionHandler.Reorder)
	selections.PUT("/active-index", selectionHandler.SetActiveIndex)
	selections.DELETE("/:slotKey", selectionHandler.Remove)
	selections.PUT("/:slotKey/role", selectionHandler.SetRole)
	selections.POST("/submit", limiter.Middleware(), selectionHandler.Submit)

	requests := secured.Group("/requests")
	requests.Use(admin)
	requests.GET("", requestHandler.List)
	requests.GET("/summary", requestHandler.Summary)
	requests.GET("/:id/history", requestHandler.History)
	requests.POST("/:id/accept", requestHandler.Accept)
	requests.POST("/:id/refuse", requestHandler.Refuse)

	auto := secured.Group("/auto-assignment")
	auto.Use(admin)
	auto.POST("/preview", autoHandler.Preview)
	auto.POST("/apply", limiter.Middleware(), middleware.Audit(c.Users, c.Logger, models.AuditActionAutoAssignApply, "auto_assignment_runs"), autoHandler.Apply)
	auto.POST("/undo", middleware.Audit(c.Users, c.Logger, models.AuditActionAutoAssignUndo, "auto_assignment_runs"), autoHandler.Undo)
	auto.GET("/last-run", autoHandler.LastRun)
	auto.POST("/stepwise", autoHandler.Stepwise)
	auto.POST("/stepwise/accept", middleware.Audit(c.Users, c.Logger, models.AuditActionAutoAssignStepwise, "planning_choices"), autoHandler.AcceptStep)
	auto.POST("/exports", exportHandler.CreateJob)
	auto.GET("/exports/:id", exportHandler.Status)

	return r, realtime
}
