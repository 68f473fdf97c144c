package retrylimit

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// hardAttemptCap bounds a config that asks for unlimited attempts.
const hardAttemptCap = 100

type RetryConfig struct {
	// MaxAttempts counts the first call. Zero means hardAttemptCap.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// RateLimitDelay is the pause after a 429 that did not say how long to wait.
	RateLimitDelay time.Duration
	Multiplier     float64
	// Jitter adds up to a quarter of the delay at random.
	Jitter          bool
	ErrorClassifier ErrorClassifier
	OnRetry         func(attempt int, err error)
	// Log defaults to the global zerolog logger.
	Log *zerolog.Logger
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     hardAttemptCap,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		RateLimitDelay:  100 * time.Millisecond,
		Multiplier:      2,
		Jitter:          true,
		ErrorClassifier: DefaultClassifier,
	}
}

// WithRetryMax is WithRetryConfig on the default config with a custom attempt count.
func WithRetryMax(ctx context.Context, fn func() error, lim *AdaptiveLimiter, attempts int) error {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	return WithRetryConfig(ctx, fn, lim, cfg)
}

// WithRetryConfig calls fn until it succeeds, returns a FatalError, ctx ends
// or the attempts run out. lim may be nil; when set every call waits for it
// and its rate follows the outcome.
func WithRetryConfig(ctx context.Context, fn func() error, lim *AdaptiveLimiter, cfg RetryConfig) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = hardAttemptCap
	}
	if cfg.ErrorClassifier == nil {
		cfg.ErrorClassifier = DefaultClassifier
	}
	logger := cfg.Log
	if logger == nil {
		logger = &log.Logger
	}

	b := backoff{next: cfg.InitialDelay, max: cfg.MaxDelay, mult: cfg.Multiplier, jitter: cfg.Jitter}
	var last error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		last = fn()
		if last == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				logger.Debug().Int("attempt", attempt).Msg("retry succeeded")
			}
			return nil
		}
		if isFatal(last) {
			return last
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, last)
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		var wait time.Duration
		switch {
		case isRateLimitError(last):
			wait = cfg.RateLimitDelay
			if d, ok := retryAfter(last); ok {
				wait = d
			}
			if lim != nil {
				lim.RateLimited()
			}
			logger.Warn().Int("attempt", attempt).Dur("wait", wait).Msg("rate limited")
		default:
			if cfg.ErrorClassifier(last) && lim != nil {
				lim.RateLimited()
			}
			wait = b.step()
			logger.Debug().Err(last).Int("attempt", attempt).Dur("wait", wait).Msg("attempt failed")
		}

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: cfg.MaxAttempts, Last: last}
}

type backoff struct {
	next   time.Duration
	max    time.Duration
	mult   float64
	jitter bool
}

// step returns the current delay and grows the next one.
func (b *backoff) step() time.Duration {
	d := b.next
	if b.mult > 1 {
		b.next = time.Duration(float64(b.next) * b.mult)
	}
	if b.max > 0 && b.next > b.max {
		b.next = b.max
	}
	if b.jitter && d >= 4 {
		d += rand.N(d / 4)
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
