package ratelimit

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lashiv/lashivgpt/internal/config"
	"github.com/lashiv/lashivgpt/internal/logging"
)

func newTestLimiter(t *testing.T) (*Limiter, *time.Time) {
	t.Helper()

	models, err := config.LoadModels()
	if err != nil {
		t.Fatalf("LoadModels() error = %v", err)
	}

	logger := logging.New(logging.LevelError, os.Stderr)
	limiter := New(models, logger)

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }

	return limiter, &clock
}

func TestLimiter_AllowWithinBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	// gemini-2.5-pro allows 30 requests per minute.
	for i := 0; i < 30; i++ {
		if err := limiter.Allow("gemini-2.5-pro"); err != nil {
			t.Fatalf("Allow() request %d error = %v", i+1, err)
		}
	}
}

func TestLimiter_RejectsOverBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	for i := 0; i < 30; i++ {
		if err := limiter.Allow("gemini-2.5-pro"); err != nil {
			t.Fatalf("Allow() request %d error = %v", i+1, err)
		}
	}

	err := limiter.Allow("gemini-2.5-pro")
	if err == nil {
		t.Fatal("Allow() over budget returned nil, want LimitError")
	}

	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("error type = %T, want *LimitError", err)
	}
	if limitErr.Model != "gemini-2.5-pro" {
		t.Errorf("Model = %q, want gemini-2.5-pro", limitErr.Model)
	}
	if limitErr.WaitSeconds <= 0 {
		t.Errorf("WaitSeconds = %d, want positive", limitErr.WaitSeconds)
	}
	if !strings.Contains(err.Error(), "Rate limit exceeded") {
		t.Errorf("error message %q missing throttle marker", err.Error())
	}
}

func TestLimiter_WindowElapseResetsCount(t *testing.T) {
	limiter, clock := newTestLimiter(t)

	for i := 0; i < 30; i++ {
		if err := limiter.Allow("gemini-2.5-pro"); err != nil {
			t.Fatalf("Allow() request %d error = %v", i+1, err)
		}
	}
	if err := limiter.Allow("gemini-2.5-pro"); err == nil {
		t.Fatal("Allow() over budget returned nil")
	}

	*clock = clock.Add(time.Minute)

	if err := limiter.Allow("gemini-2.5-pro"); err != nil {
		t.Errorf("Allow() after window elapsed error = %v, want nil", err)
	}
}

func TestLimiter_WaitSecondsShrinksOverTime(t *testing.T) {
	limiter, clock := newTestLimiter(t)

	// gemini-1.5-pro: 15 requests per minute, 60s cooldown.
	for i := 0; i < 15; i++ {
		if err := limiter.Allow("gemini-1.5-pro"); err != nil {
			t.Fatalf("Allow() request %d error = %v", i+1, err)
		}
	}

	var first *LimitError
	if err := limiter.Allow("gemini-1.5-pro"); !errors.As(err, &first) {
		t.Fatalf("Allow() error = %v, want *LimitError", err)
	}

	*clock = clock.Add(20 * time.Second)

	var second *LimitError
	if err := limiter.Allow("gemini-1.5-pro"); !errors.As(err, &second) {
		t.Fatalf("Allow() error = %v, want *LimitError", err)
	}

	if second.WaitSeconds >= first.WaitSeconds {
		t.Errorf("WaitSeconds did not shrink: first=%d second=%d", first.WaitSeconds, second.WaitSeconds)
	}
}

func TestLimiter_ModelsAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	for i := 0; i < 30; i++ {
		if err := limiter.Allow("gemini-2.5-pro"); err != nil {
			t.Fatalf("Allow() request %d error = %v", i+1, err)
		}
	}
	if err := limiter.Allow("gemini-2.5-pro"); err == nil {
		t.Fatal("Allow() over budget returned nil")
	}

	// Other models still have budget.
	if err := limiter.Allow("gemini-2.0-flash"); err != nil {
		t.Errorf("Allow(gemini-2.0-flash) error = %v, want nil", err)
	}
}

func TestLimiter_ResetAllClearsCounters(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	for i := 0; i < 30; i++ {
		if err := limiter.Allow("gemini-2.5-pro"); err != nil {
			t.Fatalf("Allow() request %d error = %v", i+1, err)
		}
	}
	if err := limiter.Allow("gemini-2.5-pro"); err == nil {
		t.Fatal("Allow() over budget returned nil")
	}

	limiter.resetAll()

	if err := limiter.Allow("gemini-2.5-pro"); err != nil {
		t.Errorf("Allow() after reset error = %v, want nil", err)
	}
}

func TestLimiter_UnknownModelUsesDefaultBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	// Default model allows 60 requests per minute; the unknown model is
	// charged against that budget rather than being unlimited.
	for i := 0; i < 60; i++ {
		if err := limiter.Allow("mystery-model"); err != nil {
			t.Fatalf("Allow() request %d error = %v", i+1, err)
		}
	}
	if err := limiter.Allow("mystery-model"); err == nil {
		t.Error("Allow() over default budget returned nil, want LimitError")
	}
}
