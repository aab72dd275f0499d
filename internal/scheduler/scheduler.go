// Package scheduler drives retries and model fallback for text generation.
//
// A chat turn gets an ordered list of candidate models (primary plus its
// configured fallbacks). Each candidate is charged against the local rate
// limiter, then attempted up to MaxAttempts times with exponential backoff
// on throttling. Non-throttle failures move straight to the next candidate.
package scheduler

import (
	"context"
	"time"

	"github.com/lashiv/lashivgpt/internal/config"
	"github.com/lashiv/lashivgpt/internal/logging"
	"github.com/lashiv/lashivgpt/internal/provider"
	"github.com/lashiv/lashivgpt/internal/ratelimit"
)

const (
	// MaxAttempts is how many times one model is tried before moving on.
	MaxAttempts = 2

	// baseBackoff is the delay after the first throttled attempt.
	baseBackoff = time.Second

	// maxBackoff caps the exponential backoff delay.
	maxBackoff = 30 * time.Second
)

// ErrorKind classifies a generation failure for retry decisions.
type ErrorKind int

const (
	// KindOther is any failure that retrying the same model won't help.
	KindOther ErrorKind = iota
	// KindThrottle is local or upstream rate limiting.
	KindThrottle
)

// ClassifyError maps a generation error to its kind.
func ClassifyError(err error) ErrorKind {
	if provider.IsThrottle(err) {
		return KindThrottle
	}
	return KindOther
}

// Decide returns whether to retry the same model after a failed attempt,
// and how long to back off first. attempt is 1-based.
// Only throttling is worth retrying; anything else fails fast to the next
// candidate.
func Decide(attempt int, kind ErrorKind) (retry bool, delay time.Duration) {
	if kind != KindThrottle || attempt >= MaxAttempts {
		return false, 0
	}

	delay = baseBackoff << (attempt - 1)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return true, delay
}

// ExhaustedError is returned when every candidate model failed.
type ExhaustedError struct {
	// LastErr is the error from the final attempt.
	LastErr error
}

// Error returns the user-facing exhaustion message.
func (e *ExhaustedError) Error() string {
	return "all models are rate limited. Please try again later."
}

// Unwrap exposes the final attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Call performs one generation attempt against a specific model.
type Call func(ctx context.Context, modelID string) (string, error)

// Scheduler coordinates the limiter, the candidate order, and backoff.
type Scheduler struct {
	limiter *ratelimit.Limiter
	models  *config.ModelRegistry
	logger  *logging.Logger

	// sleep is replaceable for tests. Returns ctx.Err() when the context
	// ends the wait.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a scheduler over the given limiter and model registry.
func New(limiter *ratelimit.Limiter, models *config.ModelRegistry, logger *logging.Logger) *Scheduler {
	return NewWithSleep(limiter, models, logger, sleepCtx)
}

// NewWithSleep creates a scheduler with a custom backoff sleep function.
// Tests inject a no-op sleep so exhaustion paths run instantly.
func NewWithSleep(limiter *ratelimit.Limiter, models *config.ModelRegistry, logger *logging.Logger, sleep func(ctx context.Context, d time.Duration) error) *Scheduler {
	return &Scheduler{
		limiter: limiter,
		models:  models,
		logger:  logger.WithComponent("scheduler"),
		sleep:   sleep,
	}
}

// Execute runs call against the primary model and its fallbacks until one
// attempt succeeds. Returns an *ExhaustedError wrapping the last failure
// when every candidate is spent.
func (s *Scheduler) Execute(ctx context.Context, primary string, call Call) (string, error) {
	candidates := s.models.Candidates(primary)

	var lastErr error
	for _, modelID := range candidates {
		if err := s.limiter.Allow(modelID); err != nil {
			s.logger.Info("skipping %s: %v", modelID, err)
			lastErr = err
			continue
		}

		for attempt := 1; attempt <= MaxAttempts; attempt++ {
			reply, err := call(ctx, modelID)
			if err == nil {
				return reply, nil
			}
			lastErr = err

			kind := ClassifyError(err)
			retry, delay := Decide(attempt, kind)
			if !retry {
				if kind == KindThrottle {
					s.logger.Warn("%s throttled after %d attempts, trying next model", modelID, attempt)
				} else {
					s.logger.Warn("%s failed, trying next model: %v", modelID, err)
				}
				break
			}

			s.logger.Info("%s throttled on attempt %d, backing off %v", modelID, attempt, delay)
			if err := s.sleep(ctx, delay); err != nil {
				return "", err
			}
		}
	}

	return "", &ExhaustedError{LastErr: lastErr}
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
