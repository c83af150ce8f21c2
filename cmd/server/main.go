package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"vidqueue/internal/http/handlers"
	"vidqueue/internal/http/httpapi"
	"vidqueue/internal/infra"
	"vidqueue/internal/infra/credentials"
	"vidqueue/internal/providers/genai"
	"vidqueue/internal/providers/video"
	"vidqueue/internal/queue"
	"vidqueue/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	// A database is optional: with one, API keys survive restarts; without,
	// the key comes from the environment or the credentials endpoint.
	var credStore *credentials.Store
	apiKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		credStore = credentials.NewStore(infra.NewSQLRunner(pool, logger))
		if apiKey == "" {
			stored, err := credStore.GeminiAPIKey(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to load api key from store")
			} else {
				apiKey = stored
			}
		}
	}

	client := genai.NewClient(genai.Options{
		APIKey:       apiKey,
		BaseURL:      cfg.GeminiBaseURL,
		Model:        cfg.GeminiModel,
		PollInterval: cfg.PollInterval,
		Logger:       &logger,
	})
	if !client.HasCredential() {
		logger.Warn().Msg("no gemini api key configured; jobs stay pending until one is set")
	}

	store := queue.NewStore()
	gate := queue.NewGate(cfg.MaxConcurrentJobs, cfg.MaxJobsPerWindow, cfg.RateWindow)
	runner := video.NewVeoRunner(client, fileStore, logger)
	scheduler := queue.NewScheduler(store, gate, runner, queue.SchedulerOptions{
		Interval: cfg.TickInterval,
		Logger:   logger,
	})

	janitor := queue.NewJanitor(store, cfg.JobRetention, logger)
	if err := janitor.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start janitor")
	}
	defer janitor.Stop()

	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("scheduler stopped with error")
		}
	}()

	app := handlers.NewApp(store, fileStore, client, credStore, logger)
	router := httpapi.NewRouter(app, cfg.RateLimitPerMin, cfg.AllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
