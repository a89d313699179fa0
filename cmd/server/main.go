package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adscope/adscope/internal/api"
	"github.com/adscope/adscope/internal/api/handler"
	"github.com/adscope/adscope/internal/config"
	"github.com/adscope/adscope/internal/downloader"
	"github.com/adscope/adscope/internal/repository"
	"github.com/adscope/adscope/internal/service"
	"github.com/adscope/adscope/internal/worker"
	"github.com/adscope/adscope/pkg/backend"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("adscope %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting adscope",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Ensure storage directories exist
	for _, dir := range []string{cfg.Storage.BasePath, cfg.Storage.TempPath, cfg.Storage.StatePath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("failed to create storage directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	// Open the local database
	db, err := repository.OpenSQLite(filepath.Join(cfg.Storage.StatePath, "adscope.db"))
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize dependencies
	historyRepo := repository.NewSQLiteHistoryRepository(db)
	genRepo := repository.NewSQLiteGenerationRepository(db)
	jobRepo := repository.NewInMemoryJobRepository()
	sessionRepo := repository.NewFilesystemSessionRepository(cfg.Storage.StatePath)
	backendClient := backend.NewClient(cfg.Backend)
	dl := downloader.NewHTTPDownloader(cfg.Download)

	// Initialize services
	mediaSvc := service.NewMediaService(
		backendClient,
		historyRepo,
		jobRepo,
		dl,
		cfg.Storage,
		cfg.Worker,
		logger,
	)
	analysisSvc := service.NewAnalysisService(backendClient, historyRepo, sessionRepo, logger)
	generationSvc := service.NewGenerationService(backendClient, genRepo, historyRepo, cfg.Veo, logger)
	mergeSvc := service.NewMergeService(backendClient, historyRepo, sessionRepo, dl, cfg.Storage, logger)
	exportSvc := service.NewExportService(historyRepo, genRepo, cfg.Storage, logger)

	// Activity feed shared by the pipeline services
	eventSvc := service.NewEventService(service.EventServiceConfig{}, logger)
	mediaSvc.SetEventEmitter(eventSvc)
	generationSvc.SetEventEmitter(eventSvc)
	mergeSvc.SetEventEmitter(eventSvc)
	exportSvc.SetEventEmitter(eventSvc)

	// Setup router
	router := api.NewRouter(api.Handlers{
		Ad:         handler.NewAdHandler(mediaSvc, logger),
		Analysis:   handler.NewAnalysisHandler(analysisSvc, logger),
		Generation: handler.NewGenerationHandler(generationSvc, logger),
		Merge:      handler.NewMergeHandler(mergeSvc, logger),
		Export:     handler.NewExportHandler(exportSvc, logger),
		Competitor: handler.NewCompetitorHandler(backendClient, logger),
		Events:     handler.NewEventsHandler(eventSvc, logger),
		Health:     handler.NewHealthHandler(jobRepo, cfg.Storage.BasePath),
	}, cfg.Server.APIKey, logger)

	// Initialize worker pool for media downloads
	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
		},
		jobRepo,
		mediaSvc,
		logger,
	)
	pool.Start()

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop workers (allow in-flight downloads to complete)
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	// Stop generation poll loops
	generationSvc.Close()

	logger.Info("shutdown complete")
}
