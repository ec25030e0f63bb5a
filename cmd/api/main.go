package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/pipeline"
	"server/internal/providers/genai"
	"server/internal/providers/image"
	"server/internal/providers/prompt"
	"server/internal/providers/video"
	"server/internal/providers/videomerge"
	"server/internal/providers/vision"
	"server/internal/storage"
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

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: file store init failed")
	}

	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		// Analytics degrade gracefully without country resolution.
		logger.Warn().Err(err).Msg("api: geoip disabled")
		geo = nil
	}

	gemini, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		VideoModel: cfg.VeoModel,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: gemini client init failed")
	}

	projects := repo.NewProjectRepository(pool)
	analytics := repo.NewAnalyticsRepository(pool)

	orchestrator := pipeline.New(ctx, pipeline.Deps{
		Repo:      projects,
		Analytics: analytics,
		Analyzer:  vision.NewGeminiAnalyzer(gemini),
		Drafter:   prompt.NewGeminiDrafter(gemini),
		Editor: image.NewQwenClient(image.Options{
			APIKey:  cfg.DashScopeAPIKey,
			BaseURL: cfg.DashScopeBaseURL,
		}),
		Videos: video.NewVeoGenerator(gemini),
		Merger: videomerge.NewClient(videomerge.Options{
			BaseURL: cfg.MergeBaseURL,
			APIKey:  cfg.MergeAPIKey,
		}),
		Logger: logger,
	}, pipeline.Config{
		PollInterval:    cfg.PollInterval,
		PollMaxAttempts: cfg.PollMaxAttempts,
		WaitTimeout:     cfg.WaitTimeout,
	})

	app := &handlers.App{
		Logger:    logger,
		Config:    cfg,
		Projects:  projects,
		Analytics: analytics,
		Pipeline:  orchestrator,
		Store:     store,
		Geo:       geo,
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))

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
