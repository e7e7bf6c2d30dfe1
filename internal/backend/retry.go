package backend

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/resilience"
)

// RateLimited wraps a Summarizer so throttled calls are retried on a fixed
// delay. Other errors return immediately.
type RateLimited struct {
	next  Summarizer
	retry resilience.RetryConfig
}

// WithRateLimitRetry wraps s. Zero values pick the package defaults of
// ten retries six seconds apart. onRetry may be nil.
func WithRateLimitRetry(s Summarizer, maxRetries int, delay time.Duration, onRetry func(attempt int, err error)) *RateLimited {
	cfg := resilience.RateLimitRetryConfig(maxRetries, delay)
	cfg.OnRetry = func(attempt int, err error) {
		slog.Warn("llm rate limited, retrying", "attempt", attempt, "max", cfg.MaxRetries, "delay", cfg.BaseDelay)
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return &RateLimited{next: s, retry: cfg}
}

// GenerateSummary implements Summarizer. Exhausted retries return a
// RATE_LIMITED error carrying RateLimitMessage.
func (r *RateLimited) GenerateSummary(ctx context.Context, p Prompt) (Completion, error) {
	var out Completion
	err := resilience.Retry(ctx, r.retry, func() error {
		c, err := r.next.GenerateSummary(ctx, p)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err == nil {
		return out, nil
	}
	if apperrors.IsRateLimit(err) {
		return Completion{}, apperrors.Wrap(err, apperrors.CodeRateLimited, apperrors.RateLimitMessage)
	}
	return Completion{}, err
}
