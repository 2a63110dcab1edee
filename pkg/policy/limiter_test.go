package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_BurstThenThrottle(t *testing.T) {
	now := time.Now()
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })

	store := NewMemoryLimiterStore(LimiterPolicy{PerSecond: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		ok, err := store.Allow(context.Background(), "fp-1", 1)
		require.NoError(t, err)
		assert.True(t, ok, "burst token %d", i)
	}

	ok, err := store.Allow(context.Background(), "fp-1", 1)
	require.NoError(t, err)
	assert.False(t, ok, "bucket should be empty")

	// Refill after two seconds restores capacity.
	now = now.Add(2 * time.Second)
	ok, err = store.Allow(context.Background(), "fp-1", 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiter_BucketsAreIndependent(t *testing.T) {
	now := time.Now()
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })

	store := NewMemoryLimiterStore(LimiterPolicy{PerSecond: 1, Burst: 1})

	ok, err := store.Allow(context.Background(), "fp-1", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Allow(context.Background(), "fp-1", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different fingerprint still has a full bucket.
	ok, err = store.Allow(context.Background(), "fp-2", 1)
	require.NoError(t, err)
	assert.True(t, ok)
}
