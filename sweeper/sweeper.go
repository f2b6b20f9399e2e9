// Package sweeper evicts expired cache entries in the background.
package sweeper

import (
	"context"
	"time"
)

// Target is a cache that can be swept, such as *expiringcache.Cache.
type Target interface {
	CleanUp(ctx context.Context) error
}

// IntervalSweeper runs CleanUp on a target at a fixed interval, so expired
// entries are released even when the cache sees no traffic.
type IntervalSweeper struct {
	target            Target
	interval          time.Duration
	onBackgroundError func(error)
}

// NewIntervalSweeper creates a new IntervalSweeper.
// onBackgroundError receives the errors of the background sweeps; it may be nil.
func NewIntervalSweeper(target Target, interval time.Duration, onBackgroundError func(error)) *IntervalSweeper {
	if interval <= 0 {
		panic("sweeper: interval must be positive")
	}
	return &IntervalSweeper{
		target:            target,
		interval:          interval,
		onBackgroundError: onBackgroundError,
	}
}

// LaunchBackgroundSweeper starts the background sweeper.
// It is stopped by canceling ctx. The returned channel is closed once it stopped.
func (s *IntervalSweeper) LaunchBackgroundSweeper(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.poll(ctx)
	}()
	return done
}

func (s *IntervalSweeper) poll(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := s.target.CleanUp(ctx); err != nil {
				if s.onBackgroundError != nil {
					s.onBackgroundError(err)
				}
			}
		}
	}
}
