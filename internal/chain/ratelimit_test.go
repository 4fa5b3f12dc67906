package chain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tether/internal/chain"
)

func TestRateLimiter_BurstPerEndpoint(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(0.001, 2)

	assert.True(t, rl.Allow("ws://a"))
	assert.True(t, rl.Allow("ws://a"))
	assert.False(t, rl.Allow("ws://a"))

	assert.True(t, rl.Allow("ws://b"), "endpoints have independent buckets")
}

func TestRateLimiter_Unlimited(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("ws://a"))
	}
}

func TestRateLimiter_WaitCanceled(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(0.001, 1)
	require.True(t, rl.Allow("ws://a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, rl.Wait(ctx, "ws://a"))
}
