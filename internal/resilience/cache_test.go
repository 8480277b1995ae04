package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counter(n *atomic.Int32) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		return int(n.Add(1)), nil
	}
}

func TestCacheServesWithinTTL(t *testing.T) {
	clock := NewFakeClock(epoch)
	c := NewCache[int]("items", 30*time.Second, Options{Clock: clock})
	var loads atomic.Int32
	ctx := context.Background()

	v, err := c.GetOrLoad(ctx, counter(&loads))
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(29 * time.Second)
	v, _ = c.GetOrLoad(ctx, counter(&loads))
	assert.Equal(t, 1, v)

	clock.Advance(time.Second)
	v, _ = c.GetOrLoad(ctx, counter(&loads))
	assert.Equal(t, 2, v, "expired entry must be reloaded")
}

func TestCacheInvalidate(t *testing.T) {
	clock := NewFakeClock(epoch)
	c := NewCache[int]("items", time.Minute, Options{Clock: clock})
	var loads atomic.Int32
	ctx := context.Background()

	_, _ = c.GetOrLoad(ctx, counter(&loads))
	c.Invalidate()
	_, ok := c.Get()
	assert.False(t, ok)

	v, _ := c.GetOrLoad(ctx, counter(&loads))
	assert.Equal(t, 2, v)
}

func TestCacheDoesNotStoreLoadRacingInvalidate(t *testing.T) {
	c := NewCache[string]("items", time.Minute, Options{})
	ctx := context.Background()

	v, err := c.GetOrLoad(ctx, func(context.Context) (string, error) {
		c.Invalidate()
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", v)

	_, ok := c.Get()
	assert.False(t, ok, "a load overtaken by Invalidate must not be cached")
}

func TestCacheCollapsesConcurrentLoads(t *testing.T) {
	c := NewCache[int]("commitments", time.Minute, Options{})
	var loads atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	load := func(context.Context) (int, error) {
		loads.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), load)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, loads.Load(), int32(2))
	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}

func TestCacheLoadErrorIsNotCached(t *testing.T) {
	c := NewCache[int]("items", time.Minute, Options{})
	boom := errors.New("backend down")

	_, err := c.GetOrLoad(context.Background(), func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	_, ok := c.Get()
	assert.False(t, ok)
}

func TestCacheLoadOutlivesCancelledCaller(t *testing.T) {
	c := NewCache[int]("commitments", time.Minute, Options{})
	var loads atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	load := func(ctx context.Context) (int, error) {
		loads.Add(1)
		close(started)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-release:
			return 7, nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(ctx, load)
		first <- err
	}()
	<-started

	second := make(chan int, 1)
	go func() {
		v, err := c.GetOrLoad(context.Background(), load)
		assert.NoError(t, err)
		second <- v
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	assert.Equal(t, 7, <-second)
	v, ok := c.Get()
	require.True(t, ok, "the shared load must finish for the remaining callers")
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(1), loads.Load())
}
