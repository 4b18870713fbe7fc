package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	var delays atomic.Int32
	l := New(Config{
		DefaultRPS:   10,
		DefaultBurst: 1,
		OnDelay:      func(string, time.Duration) { delays.Add(1) },
	})

	ctx := context.Background()
	link := "https://www.depop.com/products/a/"

	start := time.Now()
	require.NoError(t, l.Wait(ctx, link))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "first token is immediate")

	start = time.Now()
	require.NoError(t, l.Wait(ctx, link))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.EqualValues(t, 1, delays.Load())
}

func TestLimiter_HostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://www.depop.com/products/a/"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://media.depop.com/b0/x.jpg"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_ContextCancel(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.01, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://www.depop.com/"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx, "https://www.depop.com/"))
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	assert.True(t, New(Config{}).Unlimited())
	assert.False(t, New(Config{DefaultRPS: 1}).Unlimited())
}
