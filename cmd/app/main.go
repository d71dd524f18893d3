// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crime-scene-platform/internal/config"
	"crime-scene-platform/internal/domain/model"
	"crime-scene-platform/internal/domain/ports/adapter"
	"crime-scene-platform/internal/domain/ports/repository"
	backendAdapters "crime-scene-platform/internal/infra/adapters/backend"
	pg "crime-scene-platform/internal/infra/db/postgres"
	"crime-scene-platform/internal/infra/logging"
	"crime-scene-platform/internal/infra/metrics"
	"crime-scene-platform/internal/infra/queue"
	red "crime-scene-platform/internal/infra/redis"
	"crime-scene-platform/internal/infra/web"
	"crime-scene-platform/internal/infra/worker"
	"crime-scene-platform/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, in-memory broker fallback")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	var redisClient *red.Client
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
	} else if !cfg.Runtime.Dev {
		logger.Fatal().Msg("redis.url is required outside dev mode")
	}

	// ---- Queue broker ----
	// Redis is the durable broker; dev mode without a Redis URL falls back to
	// the in-process broker, which loses state on restart.
	var jobQueue *queue.JobQueue
	if redisClient != nil {
		jobQueue = queue.NewJobQueue(red.NewListBroker(redisClient), cfg.Queue.VisibilityTimeout, logger)
	} else {
		logger.Warn().Msg("no redis configured, using the in-memory broker")
		jobQueue = queue.NewJobQueue(queue.NewMemoryBroker(), cfg.Queue.VisibilityTimeout, logger)
	}
	defer jobQueue.Close()

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool)
	commitRepo := pg.NewCommitRepo(pool)
	branchRepo := pg.NewBranchRepo(pool)
	var snapshotRepo repository.SnapshotRepository = pg.NewSnapshotRepo(pool)
	if redisClient != nil {
		snapshotRepo = pg.NewSnapshotRepoCacheDecorator(snapshotRepo, redisClient)
	}

	// ---- Processing backend ----
	var backend adapter.ProcessingBackend
	if cfg.Backend.BaseURL != "" {
		backend, err = backendAdapters.NewHTTPBackend(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("processing backend")
		}
		logger.Info().Str("base_url", cfg.Backend.BaseURL).Msg("using HTTP processing backend")
	} else {
		logger.Warn().Msg("no backend base_url configured, using the noop backend")
		backend = backendAdapters.NewNoopBackend()
	}

	// ---- Use cases ----
	snapshotUC := usecase.NewSnapshotUseCase(commitRepo, snapshotRepo, tm, logger)
	timelineUC := usecase.NewTimelineUseCase(commitRepo, branchRepo, snapshotUC, tm, logger)

	workers := worker.AllWorkers(backend, snapshotRepo)
	registered := make([]string, 0, len(workers))
	jobTypes := make([]model.JobType, 0, len(workers))
	for _, w := range workers {
		registered = append(registered, string(w.Type()))
		jobTypes = append(jobTypes, w.Type())
	}
	jobUC := usecase.NewJobUseCase(jobRepo, commitRepo, snapshotUC, jobQueue, tm, jobTypes, logger)
	logger.Info().Strs("job_types", registered).Msg("workers registered")

	// ---- Worker manager ----
	manager := worker.NewManager(jobQueue, jobRepo, jobUC, workers, cfg.Queue, cfg.Worker, logger)
	manager.Start(ctx)

	// ---- HTTP server ----
	srv := web.NewServer(jobUC, timelineUC, snapshotUC, jobQueue, cfg.HTTP.APIKey, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownDeadline)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	manager.Stop()
	cancel()
}
