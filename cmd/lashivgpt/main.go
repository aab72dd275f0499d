package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lashiv/lashivgpt/internal/config"
	"github.com/lashiv/lashivgpt/internal/startup"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse configuration from CLI flags and the environment
	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if errors.Is(err, config.ErrShowHelp) || errors.Is(err, config.ErrShowVersion) {
		// Help or version was shown, exit successfully
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Create logger early
	logger := startup.CreateLogger(cfg)

	logger.Info("Starting lashivgpt %s...", config.Version)
	logger.Debug("Configuration: port=%d, base-url=%s, data-dir=%s, images-dir=%s, log-level=%s",
		cfg.Port, cfg.BaseURL, cfg.DataDir, cfg.ImagesDir, cfg.LogLevel)

	// Shut down cleanly on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := startup.InitializeAll(ctx, cfg, logger)
	if err != nil {
		logger.Error("Initialization failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := startup.Run(ctx, components); err != nil {
		logger.Error("Server error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}
