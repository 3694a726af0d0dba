package httpcore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/assoc-pipeline/internal/httpcore"
)

func TestHostLimiterCreatesOneBucketPerHost(t *testing.T) {
	l := httpcore.NewHostLimiter(2)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "a.test"))
	require.NoError(t, l.Wait(ctx, "b.test"))
	assert.Equal(t, 2, l.LimiterCount())
}

func TestHostLimiterWaitHonorsCancellation(t *testing.T) {
	l := httpcore.NewHostLimiter(0.001) // effectively one token then a long wait
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "slow.test")) // drains the initial burst token

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()
	err := l.Wait(cancelCtx, "slow.test")
	assert.Error(t, err)
}

func TestHostLimiterSetRateOverridesDefault(t *testing.T) {
	l := httpcore.NewHostLimiter(1)
	l.SetRate("fast.test", 1000)

	start := time.Now()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, "fast.test"))
	}
	assert.Less(t, time.Since(start), time.Second, "a high override rate must not be throttled at the default rate")
}
