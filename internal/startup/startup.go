// Package startup wires the application components together.
//
// Construction order matters: the model registry feeds the limiter and the
// scheduler, background goroutines are bound to the run context, and the
// provider clients are only created when their credentials are present.
package startup

import (
	"context"
	"fmt"
	"os"

	"github.com/lashiv/lashivgpt/internal/config"
	"github.com/lashiv/lashivgpt/internal/history"
	"github.com/lashiv/lashivgpt/internal/images"
	"github.com/lashiv/lashivgpt/internal/logging"
	"github.com/lashiv/lashivgpt/internal/provider"
	"github.com/lashiv/lashivgpt/internal/queue"
	"github.com/lashiv/lashivgpt/internal/ratelimit"
	"github.com/lashiv/lashivgpt/internal/scheduler"
	"github.com/lashiv/lashivgpt/internal/stability"
	"github.com/lashiv/lashivgpt/internal/web"
)

// Components holds all initialized application components.
type Components struct {
	Config    *config.Config
	Logger    *logging.Logger
	Models    *config.ModelRegistry
	History   *history.Store
	Images    *images.Store
	Limiter   *ratelimit.Limiter
	Queue     *queue.Queue
	Scheduler *scheduler.Scheduler
	Server    *web.Server
}

// CreateLogger creates the application logger from configuration.
func CreateLogger(cfg *config.Config) *logging.Logger {
	return logging.NewFromString(cfg.LogLevel, os.Stderr)
}

// InitializeAll constructs every component and starts the background
// goroutines (queue worker, daily limiter reset) on ctx.
//
// Missing provider credentials are not fatal: the server starts and the
// affected endpoints report a configuration error instead.
func InitializeAll(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Components, error) {
	models, err := config.LoadModels()
	if err != nil {
		return nil, fmt.Errorf("failed to load model registry: %w", err)
	}
	logger.Info("loaded %d model profiles, default %s", len(models.Profiles()), models.Default())

	historyStore := history.NewStore(cfg.DataDir, logger)
	imageStore := images.NewStore(cfg.ImagesDir)

	limiter := ratelimit.New(models, logger)
	limiter.StartDailyReset(ctx)

	q := queue.New(queue.DefaultSpacing, logger)
	q.Start(ctx)

	sched := scheduler.New(limiter, models, logger)

	var textGen web.TextGenerator
	if cfg.GeminiAPIKey != "" {
		gemini, err := provider.NewGeminiClient(ctx, cfg.GeminiAPIKey, models, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize text provider: %w", err)
		}
		genai := provider.NewGenAIClient(cfg.GeminiAPIKey, models, logger)
		textGen = provider.NewGenerator(gemini, genai, logger)
	} else {
		logger.Warn("%s not set, text generation disabled", config.GeminiKeyEnv)
	}

	var imageGen web.ImageGenerator
	if cfg.StabilityAPIKey != "" {
		imageGen = stability.NewClient(cfg.StabilityAPIKey, logger)
	} else {
		logger.Warn("%s not set, image generation disabled", config.StabilityKeyEnv)
	}

	server := web.NewServer(fmt.Sprintf(":%d", cfg.Port), web.Deps{
		Logger:    logger,
		Models:    models,
		History:   historyStore,
		Images:    imageStore,
		Queue:     q,
		Scheduler: sched,
		TextGen:   textGen,
		ImageGen:  imageGen,
		Fallback:  provider.NewFallback(),
		BaseURL:   cfg.BaseURL,
	})

	return &Components{
		Config:    cfg,
		Logger:    logger,
		Models:    models,
		History:   historyStore,
		Images:    imageStore,
		Limiter:   limiter,
		Queue:     q,
		Scheduler: sched,
		Server:    server,
	}, nil
}

// Run serves HTTP until the context is cancelled.
func Run(ctx context.Context, c *Components) error {
	return c.Server.ListenAndServe(ctx)
}
