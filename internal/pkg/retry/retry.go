package retry

import (
	"context"
	"fmt"
	"time"
)

// Config bounds a retry loop. Delay is fixed between attempts; the
// callers of this package talk to rate-limited upstreams where
// exponential growth buys nothing over a short, bounded loop.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultConfig returns the bounded retry used for chain reads and
// store writes when nothing more specific is configured.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, Delay: time.Second}
}

// Do runs fn up to cfg.MaxAttempts times, sleeping cfg.Delay between
// attempts. It stops early when the context is done and always returns
// the last error wrapped with the attempt count.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("cancelled after %d attempts: %w", attempt-1, lastErr)
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(cfg.Delay):
		case <-ctx.Done():
			return fmt.Errorf("cancelled after %d attempts: %w", attempt, lastErr)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
