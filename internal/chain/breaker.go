package chain

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// BreakerConfig configures the per-endpoint circuit breakers.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker. Zero disables breaking.
	ConsecutiveFailures uint32
	// OpenTimeout is how long an open breaker rejects calls before probing.
	OpenTimeout time.Duration
	// OnStateChange observes transitions; optional.
	OnStateChange func(endpoint string, from, to gobreaker.State)
}

// Breakers holds one circuit breaker per wallet endpoint. Only transport
// failures count against a breaker; a user declining a prompt does not.
type Breakers struct {
	cfg      BreakerConfig
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// NewBreakers creates an empty breaker set.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Execute runs op through the endpoint's breaker. An open breaker yields
// ErrNetworkUnavailable wrapping gobreaker.ErrOpenState.
func (b *Breakers) Execute(endpoint string, op func() (any, error)) (any, error) {
	cb := b.get(endpoint)
	if cb == nil {
		return op()
	}

	v, err := cb.Execute(op)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, tethererr.WithDetails(
			tethererr.WithCause(tethererr.ErrNetworkUnavailable, err),
			map[string]string{"endpoint": endpoint, "breaker": "open"},
		)
	}
	return v, err
}

// State returns the breaker state for endpoint. Unknown endpoints are closed.
func (b *Breakers) State(endpoint string) gobreaker.State {
	b.mu.Lock()
	cb, ok := b.breakers[endpoint]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

func (b *Breakers) get(endpoint string) *gobreaker.CircuitBreaker[any] {
	if b == nil || b.cfg.ConsecutiveFailures == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[endpoint]; ok {
		return cb
	}

	threshold := b.cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1,
		Timeout:     b.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, tethererr.ErrNetworkUnavailable)
		},
	}
	if onChange := b.cfg.OnStateChange; onChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, from, to)
		}
	}

	cb := gobreaker.NewCircuitBreaker[any](settings)
	b.breakers[endpoint] = cb
	return cb
}
