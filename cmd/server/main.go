package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/database"
	"github.com/examsmart/examsmart-backend/internal/detection"
	"github.com/examsmart/examsmart-backend/internal/handler"
	"github.com/examsmart/examsmart-backend/internal/logger"
	"github.com/examsmart/examsmart-backend/internal/repository"
	"github.com/examsmart/examsmart-backend/internal/router"
	"github.com/examsmart/examsmart-backend/internal/service"
	"github.com/examsmart/examsmart-backend/internal/validator"
	"github.com/examsmart/examsmart-backend/internal/vlm"
	"github.com/examsmart/examsmart-backend/internal/worker"
)

const (
	shutdownTimeout = 10 * time.Second
	drainTimeout    = 30 * time.Second
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("detector", cfg.Detection.Mode).
		Str("vlm", cfg.VLM.Provider).
		Msg("Starting ExamSmart Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── External Clients ──────────────────────────────────────────────
	detector := detection.New(cfg.Detection, log)
	extractor, err := vlm.New(ctx, cfg.VLM, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize VLM extractor")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	papers := service.NewRedisPaperCache(rdb)
	events := service.NewRedisEventPublisher(rdb, log)

	authService := service.NewAuthService(cfg, service.NewRedisDenylist(rdb))
	userService := service.NewUserService(userRepo, authService)
	examService := service.NewExamService(examRepo, attemptRepo, papers, extractor, log)
	attemptService := service.NewAttemptService(examRepo, attemptRepo, service.NewGrader(detector, log), papers, events, log)
	monitorService := service.NewMonitorService(examRepo, attemptRepo, rdb)
	mediaService := service.NewMediaService(cfg)
	systemService := service.NewSystemService(pool, service.RedisPinger(rdb), detector, extractor, mediaService)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, userService, cfg, log),
		Exam:          handler.NewExamHandler(examService, attemptService, mediaService),
		StudentPortal: handler.NewStudentPortalHandler(attemptService),
		Monitor:       handler.NewMonitorHandler(monitorService, log),
		WS:            handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
		System:        handler.NewSystemHandler(systemService, rdb),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	gradingWorker := worker.NewGradingWorker(rdb, attemptService, log)
	sweeperWorker := worker.NewSweeperWorker(rdb, attemptRepo, cfg.AttemptGrace, cfg.SweepInterval, log)

	workers.Go(func() { gradingWorker.Start(workerCtx) })
	workers.Go(func() { sweeperWorker.Start(workerCtx) })

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the queue to drain.
	workerCancel()
	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		log.Warn().Msg("Workers did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}
