package chain

import (
	"context"
	"time"
)

// GuardConfig bundles the read-path policies.
type GuardConfig struct {
	Retry         RetryConfig
	RatePerSecond float64
	Burst         int
	Breaker       BreakerConfig
}

// DefaultGuardConfig returns conservative read policies.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Retry:         DefaultRetryConfig(),
		RatePerSecond: 10,
		Burst:         20,
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		},
	}
}

// ReadObserver receives the outcome of every guarded attempt.
type ReadObserver func(endpoint, op string, elapsed time.Duration, err error)

// ReadGuard applies rate limiting and circuit breaking to wallet reads,
// and optionally retries them. It is shared by every provider built from
// one application so limits hold across reconnects.
type ReadGuard struct {
	retry    RetryConfig
	limiter  *RateLimiter
	breakers *Breakers
	observe  ReadObserver
}

// NewReadGuard creates a guard from cfg. observe may be nil.
func NewReadGuard(cfg GuardConfig, observe ReadObserver) *ReadGuard {
	return &ReadGuard{
		retry:    cfg.Retry,
		limiter:  NewRateLimiter(cfg.RatePerSecond, cfg.Burst),
		breakers: NewBreakers(cfg.Breaker),
		observe:  observe,
	}
}

// Breakers exposes the guard's breaker set for status reporting.
func (g *ReadGuard) Breakers() *Breakers {
	return g.breakers
}

// Once runs a single guarded attempt of op.
func Once[T any](ctx context.Context, g *ReadGuard, endpoint, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if g == nil {
		return fn(ctx)
	}

	if err := g.limiter.Wait(ctx, endpoint); err != nil {
		return zero, err
	}

	start := time.Now()
	v, err := g.breakers.Execute(endpoint, func() (any, error) {
		return fn(ctx)
	})
	if g.observe != nil {
		g.observe(endpoint, op, time.Since(start), err)
	}
	if err != nil {
		return zero, err
	}

	out, _ := v.(T)
	return out, nil
}

// Retried runs op through Once with the guard's retry policy.
// Only idempotent reads may use this.
func Retried[T any](ctx context.Context, g *ReadGuard, endpoint, op string, fn func(context.Context) (T, error)) (T, error) {
	cfg := DefaultRetryConfig()
	if g != nil {
		cfg = g.retry
	}
	return Retry(ctx, cfg, func(ctx context.Context) (T, error) {
		return Once(ctx, g, endpoint, op, fn)
	})
}
