package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/infra"
	"server/internal/pipeline"
	"server/internal/providers/genai"
	"server/internal/providers/image"
	"server/internal/providers/prompt"
	"server/internal/providers/video"
	"server/internal/providers/videomerge"
	"server/internal/providers/vision"
)

// sweepInterval is how often the reconciler revisits waiting projects.
// Webhooks remain the fast path; the sweep exists for lost deliveries and
// for enforcing the waiting-state timeout.
const sweepInterval = time.Minute

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
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	gemini, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		VideoModel: cfg.VeoModel,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: gemini client init failed")
	}

	orchestrator := pipeline.New(ctx, pipeline.Deps{
		Repo:      repo.NewProjectRepository(pool),
		Analytics: repo.NewAnalyticsRepository(pool),
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

	logger.Info().Dur("interval", sweepInterval).Msg("worker: reconciler started")

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker: stopped")
			return
		case <-ticker.C:
			n, err := orchestrator.Sweep(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("worker: sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int("projects", n).Msg("worker: sweep reconciled waiting projects")
			}
		}
	}
}
