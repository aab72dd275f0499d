// Package ratelimit enforces per-model request limits before any provider
// call is attempted.
//
// Each model has a requests-per-minute budget and a cooldown taken from its
// profile. The window is anchored at the last accepted request: once a full
// minute passes with no accepted request, the count resets. Counters are
// also cleared wholesale every 24 hours.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lashiv/lashivgpt/internal/config"
	"github.com/lashiv/lashivgpt/internal/logging"
)

const (
	// window is the rolling interval a model's request budget applies to.
	window = time.Minute

	// resetInterval is how often all counters are cleared.
	resetInterval = 24 * time.Hour
)

// LimitError reports that a model's budget is exhausted.
// The message intentionally contains "Rate limit exceeded" so downstream
// error classification treats it the same as a provider 429.
type LimitError struct {
	// Model is the model whose budget was exhausted.
	Model string

	// WaitSeconds is how long the caller should wait before retrying,
	// rounded up to whole seconds. Never negative.
	WaitSeconds int
}

// Error returns the limit error message.
func (e *LimitError) Error() string {
	return fmt.Sprintf("Rate limit exceeded for %s. Please wait %d seconds.", e.Model, e.WaitSeconds)
}

// usage tracks one model's budget consumption.
type usage struct {
	count       int
	lastRequest time.Time
}

// Limiter tracks per-model request budgets.
// Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	usage  map[string]*usage
	models *config.ModelRegistry
	logger *logging.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// New creates a limiter over the given model registry.
func New(models *config.ModelRegistry, logger *logging.Logger) *Limiter {
	return &Limiter{
		usage:  make(map[string]*usage),
		models: models,
		logger: logger.WithComponent("ratelimit"),
		now:    time.Now,
	}
}

// Allow consumes one request from the model's budget.
// Returns nil and records the request when the budget has room. Returns a
// *LimitError without recording anything when the budget is exhausted.
// Unknown models are charged against the default model's profile.
func (l *Limiter) Allow(modelID string) error {
	profile := l.models.ProfileOrDefault(modelID)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.usage[modelID]
	if !ok {
		u = &usage{}
		l.usage[modelID] = u
	}

	elapsed := now.Sub(u.lastRequest)

	// A full window with no accepted request resets the count.
	if elapsed >= window {
		u.count = 0
	}

	if u.count >= profile.RequestsPerMinute {
		remaining := profile.Cooldown() - elapsed
		waitSeconds := int((remaining + time.Second - 1) / time.Second)
		if waitSeconds < 0 {
			waitSeconds = 0
		}
		l.logger.Warn("budget exhausted for %s, wait %ds", modelID, waitSeconds)
		return &LimitError{Model: modelID, WaitSeconds: waitSeconds}
	}

	u.count++
	u.lastRequest = now
	return nil
}

// StartDailyReset launches a background goroutine that clears all counters
// every 24 hours. The goroutine exits when ctx is cancelled.
func (l *Limiter) StartDailyReset(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(resetInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.resetAll()
			}
		}
	}()
}

// resetAll clears every model's counter.
func (l *Limiter) resetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.usage = make(map[string]*usage)
	l.logger.Info("daily counter reset")
}
