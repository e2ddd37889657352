/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func newTestSlidingLogLimiter(t *testing.T, window time.Duration, maxRequests int, clock Clock) *SlidingLogLimiter {
	t.Helper()
	store, err := NewMemoryStore(100, nil)
	require.NoError(t, err)
	lim, err := NewSlidingLogLimiter(Policy{
		Name: "test", Window: window, MaxRequests: maxRequests, Message: "slow down",
	}, store, clock)
	require.NoError(t, err)
	return lim
}

func TestSlidingLogLimiter_Check(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	start := clock.Now()
	lim := newTestSlidingLogLimiter(t, time.Second, 2, clock)

	d, err := lim.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, Decision{Limit: 2, Remaining: 1, Reset: start.Add(time.Second), Policy: "test"}, d)

	d, err = lim.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, d.Limited)
	require.Equal(t, 0, d.Remaining)

	d, err = lim.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, Decision{
		Limited: true, Message: "slow down", RetryAfter: time.Second, Limit: 2, Remaining: 0, Policy: "test",
	}, d)
	require.Equal(t, 1, d.RetryAfterSeconds())

	clock.Advance(1001 * time.Millisecond)
	d, err = lim.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, d.Limited)
	require.Equal(t, 1, d.Remaining)
}

func TestSlidingLogLimiter_WindowBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	lim := newTestSlidingLogLimiter(t, time.Second, 1, clock)

	d, _ := lim.Check(ctx, "client")
	require.False(t, d.Limited)

	clock.Advance(999 * time.Millisecond)
	d, _ = lim.Check(ctx, "client")
	require.True(t, d.Limited)
	require.Equal(t, time.Millisecond, d.RetryAfter)

	// A timestamp exactly window-old is outside the window.
	clock.Advance(time.Millisecond)
	d, _ = lim.Check(ctx, "client")
	require.False(t, d.Limited)
}

func TestSlidingLogLimiter_RetryAfterDecreases(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	lim := newTestSlidingLogLimiter(t, 10*time.Second, 3, clock)

	for i := 0; i < 3; i++ {
		d, _ := lim.Check(ctx, "client")
		require.False(t, d.Limited)
		clock.Advance(time.Second)
	}

	prev := time.Duration(1<<63 - 1)
	for i := 0; i < 7; i++ {
		d, _ := lim.Check(ctx, "client")
		require.True(t, d.Limited)
		require.Less(t, d.RetryAfter, prev)
		require.GreaterOrEqual(t, d.RetryAfter, time.Duration(0))
		prev = d.RetryAfter
		clock.Advance(time.Second)
	}
	d, _ := lim.Check(ctx, "client")
	require.False(t, d.Limited)
}

func TestSlidingLogLimiter_RollingWindowNeverExceeded(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	const window = time.Second
	const maxRequests = 5
	lim := newTestSlidingLogLimiter(t, window, maxRequests, clock)

	var admitted []time.Time
	for i := 0; i < 500; i++ {
		d, err := lim.Check(ctx, "client")
		require.NoError(t, err)
		if !d.Limited {
			admitted = append(admitted, clock.Now())
		}
		clock.Advance(time.Duration(37+i%50) * time.Millisecond)
	}
	for i := range admitted {
		inWindow := 0
		for j := i; j < len(admitted) && admitted[j].Sub(admitted[i]) < window; j++ {
			inWindow++
		}
		require.LessOrEqual(t, inWindow, maxRequests)
	}
}

func TestSlidingLogLimiter_IndependentClientsAndPolicies(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store, err := NewMemoryStore(100, nil)
	require.NoError(t, err)
	limA, err := NewSlidingLogLimiter(Policy{Name: "a", Window: time.Minute, MaxRequests: 1}, store, clock)
	require.NoError(t, err)
	limB, err := NewSlidingLogLimiter(Policy{Name: "b", Window: time.Minute, MaxRequests: 1}, store, clock)
	require.NoError(t, err)

	d, _ := limA.Check(ctx, "client1")
	require.False(t, d.Limited)
	d, _ = limA.Check(ctx, "client1")
	require.True(t, d.Limited)

	d, _ = limA.Check(ctx, "client2")
	require.False(t, d.Limited)
	d, _ = limB.Check(ctx, "client1")
	require.False(t, d.Limited)
	require.Equal(t, 3, store.Len())
}

func TestSlidingLogLimiter_Concurrency(t *testing.T) {
	ctx := context.Background()
	const maxRequests = 50
	lim := newTestSlidingLogLimiter(t, time.Hour, maxRequests, nil)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				d, err := lim.Check(ctx, "client")
				if err == nil && !d.Limited {
					admitted.Inc()
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(maxRequests), admitted.Load())
}

func TestSlidingLogLimiter_Forget(t *testing.T) {
	ctx := context.Background()
	lim := newTestSlidingLogLimiter(t, time.Hour, 1, newFakeClock())

	d, _ := lim.Check(ctx, "client")
	require.False(t, d.Limited)
	d, _ = lim.Check(ctx, "client")
	require.True(t, d.Limited)

	require.NoError(t, lim.Forget(ctx, "client"))
	d, _ = lim.Check(ctx, "client")
	require.False(t, d.Limited)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store, err := NewMemoryStore(100, nil)
	require.NoError(t, err)
	short, err := NewSlidingLogLimiter(Policy{Name: "short", Window: time.Second, MaxRequests: 10}, store, clock)
	require.NoError(t, err)
	long, err := NewSlidingLogLimiter(Policy{Name: "long", Window: time.Hour, MaxRequests: 10}, store, clock)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _ = short.Check(ctx, "client"+strconv.Itoa(i))
		_, _ = long.Check(ctx, "client"+strconv.Itoa(i))
	}
	require.Equal(t, 10, store.Len())

	require.Zero(t, store.Sweep(clock.Now()))

	clock.Advance(time.Second)
	require.Equal(t, 5, store.Sweep(clock.Now()))
	require.Equal(t, 5, store.Len())

	// Swept state is recreated empty on the next check.
	d, _ := short.Check(ctx, "client0")
	require.Equal(t, 9, d.Remaining)
}

func TestMemoryStore_EvictionKeepsChecksConsistent(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(4, nil)
	require.NoError(t, err)
	lim, err := NewSlidingLogLimiter(Policy{Name: "p", Window: time.Hour, MaxRequests: 1000}, store, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, checkErr := lim.Check(ctx, strconv.Itoa((g+i)%16))
				assert.NoError(t, checkErr)
				if i%50 == 0 {
					store.Sweep(time.Now().Add(2 * time.Hour))
				}
			}
		}(g)
	}
	wg.Wait()
	require.LessOrEqual(t, store.Len(), 4)
}

func TestNewSlidingLogLimiter_InvalidPolicy(t *testing.T) {
	store, err := NewMemoryStore(1, nil)
	require.NoError(t, err)
	_, err = NewSlidingLogLimiter(Policy{Name: "p", Window: 0, MaxRequests: 1}, store, nil)
	require.ErrorIs(t, err, ErrInvalidPolicy)
	_, err = NewSlidingLogLimiter(Policy{Name: "p", Window: time.Second, MaxRequests: 0}, store, nil)
	require.ErrorIs(t, err, ErrInvalidPolicy)
	_, err = NewSlidingLogLimiter(Policy{Name: "p", Window: time.Second, MaxRequests: 1, Algorithm: "token"}, store, nil)
	require.ErrorIs(t, err, ErrInvalidPolicy)
}
