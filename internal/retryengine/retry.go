// Package retryengine classifies provider/tool errors and drives
// exponential-backoff-with-jitter retries, per spec §4.3.
package retryengine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config controls one RetryWithPolicy invocation.
type Config struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	PerAttemptLimit time.Duration  // 0 disables the per-attempt timeout
	RetryOn         map[Class]bool // classes eligible for retry
}

// DefaultConfig matches spec §4.3's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2,
		PerAttemptLimit: 60 * time.Second,
		RetryOn: map[Class]bool{
			ClassRateLimit:   true,
			ClassServerError: true,
			ClassTimeout:     true,
		},
	}
}

// Result is returned by RetryWithPolicy alongside the function's result.
type Result[T any] struct {
	Value    T
	Attempts int
}

// Func is a retryable operation. ctx is already bounded by
// Config.PerAttemptLimit when that is non-zero.
type Func[T any] func(ctx context.Context) (T, error)

// OnRetry is invoked before sleeping for each retry attempt.
type OnRetry func(attempt int, delay time.Duration, err error)

// RetryWithPolicy invokes fn, retrying on errors classified into
// cfg.RetryOn, using full-jitter exponential backoff. BudgetExceeded and
// UserAbort classes are never retried regardless of cfg.RetryOn.
func RetryWithPolicy[T any](ctx context.Context, cfg Config, fn Func[T], onRetry OnRetry) (Result[T], error) {
	var zero T
	attempt := 0

	for {
		callCtx := ctx
		var cancel context.CancelFunc
		if cfg.PerAttemptLimit > 0 {
			callCtx, cancel = context.WithTimeout(ctx, cfg.PerAttemptLimit)
		}
		value, err := fn(callCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return Result[T]{Value: value, Attempts: attempt + 1}, nil
		}

		class := Classify(err)
		if class == ClassBudget || class == ClassUserAbort {
			return Result[T]{Attempts: attempt + 1}, err
		}
		if !cfg.RetryOn[class] {
			return Result[T]{Attempts: attempt + 1}, err
		}
		if attempt >= cfg.MaxRetries {
			return Result[T]{Attempts: attempt + 1}, fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, err)
		}

		delay := calculateDelay(cfg, attempt)
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}

		select {
		case <-ctx.Done():
			return Result[T]{Value: zero, Attempts: attempt + 1}, ctx.Err()
		case <-time.After(delay):
		}

		attempt++
	}
}

// calculateDelay implements min(maxDelay, initial*multiplier^attempt) *
// (0.5 + random*0.5) — jitter over the half-to-full range of the exponential
// delay after it has been capped at maxDelay.
func calculateDelay(cfg Config, attempt int) time.Duration {
	base := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}
	jittered := base * (0.5 + rand.Float64()*0.5)
	return time.Duration(jittered)
}
