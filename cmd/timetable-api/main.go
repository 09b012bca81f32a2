package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable/api/swagger"
	"github.com/noah-isme/sma-timetable/internal/handler"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/repository"
	"github.com/noah-isme/sma-timetable/internal/router"
	"github.com/noah-isme/sma-timetable/internal/service"
	"github.com/noah-isme/sma-timetable/pkg/cache"
	"github.com/noah-isme/sma-timetable/pkg/config"
	"github.com/noah-isme/sma-timetable/pkg/database"
	"github.com/noah-isme/sma-timetable/pkg/jobs"
	"github.com/noah-isme/sma-timetable/pkg/logger"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Timetable generation, confirmation and manual editing with conflict-free slot booking.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grid, err := models.ParseSlotGrid(cfg.Timetable.Days, cfg.Timetable.Windows)
	if err != nil {
		logr.Fatal("invalid slot grid configuration", zap.Error(err))
	}

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var rdb *redis.Client
	if cfg.Cache.Enabled {
		rdb, err = cache.NewRedis(ctx, cfg.Redis, logr)
		if err != nil {
			logr.Warn("redis unavailable, entry cache disabled", zap.Error(err))
			rdb = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(rdb, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, rdb != nil)

	entryRepo := repository.NewTimetableEntryRepository(db)
	batchRepo := repository.NewTimetableBatchRepository(db)
	drafts := service.NewDraftStore(entryRepo, batchRepo, db)
	refs := service.TimetableReferences{
		Semesters:  repository.NewSemesterRepository(db),
		Courses:    repository.NewCourseRepository(db),
		Teachers:   repository.NewTeacherRepository(db),
		Classrooms: repository.NewClassroomRepository(db),
	}
	timetableSvc := service.NewTimetableService(grid, entryRepo, drafts, refs, cacheSvc, metrics, validator.New(), logr)

	auditQueue := jobs.NewQueue("timetable-index-audit", timetableSvc.HandleAuditJob, jobs.QueueConfig{
		Workers:    cfg.Timetable.AuditWorkers,
		BufferSize: 4,
		MaxRetries: cfg.Timetable.AuditRetries,
		RetryDelay: 5 * time.Second,
		Coalesce:   true,
		Logger:     logr,
	})
	auditQueue.Start(ctx)
	defer auditQueue.Stop()
	timetableSvc.SetAuditQueue(auditQueue)

	if _, err := timetableSvc.Rebuild(ctx); err != nil {
		logr.Error("initial index rebuild failed; mutations refused until an audit succeeds", zap.Error(err))
	}
	go jobs.Every(ctx, cfg.Timetable.AuditInterval, func(context.Context) {
		job := jobs.Job{ID: uuid.NewString(), Type: service.AuditJobType, Payload: "scheduled"}
		if err := auditQueue.TryEnqueue(job); err != nil {
			logr.Debug("scheduled index audit skipped", zap.Error(err))
		}
	})

	tokens := service.NewTokenService(cfg.JWT.Secret)
	engine := router.Setup(cfg, router.Handlers{
		Timetable: handler.NewTimetableHandler(timetableSvc),
		Metrics:   handler.NewMetricsHandler(metrics, timetableSvc),
	}, tokens, metrics, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
}
