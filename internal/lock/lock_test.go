package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erazemk/rezervator/internal/model"
)

// exclusive runs n goroutines that each take key and checks that no two were
// ever inside at once.
func exclusive(t *testing.T, l Locker, n int) {
	t.Helper()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "item-1")
			if !assert.NoError(t, err) {
				return
			}
			cur := inside.Add(1)
			for {
				m := maxInside.Load()
				if cur <= m || maxInside.CompareAndSwap(m, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocalIsExclusive(t *testing.T) {
	l := NewLocal()
	exclusive(t, l, 20)
	assert.Zero(t, l.held(), "released keys must not leak")
}

func TestLocalKeysAreIndependent(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalCancelWhileWaiting(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Zero(t, l.held())
}

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisIsExclusive(t *testing.T) {
	_, rdb := newRedis(t)
	exclusive(t, NewRedis(rdb, time.Second, zaptest.NewLogger(t)), 8)
}

func TestRedisSharedBetweenLockers(t *testing.T) {
	mr, rdb := newRedis(t)
	a := NewRedis(rdb, time.Minute, nil)
	b := NewRedis(rdb, time.Minute, nil)

	unlock, err := a.Lock(context.Background(), "item-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("rezervator:lock:item-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = b.Lock(ctx, "item-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists("rezervator:lock:item-1"))

	unlockB, err := b.Lock(context.Background(), "item-1")
	require.NoError(t, err)
	unlockB()
}

func TestRedisUnlockKeepsForeignLock(t *testing.T) {
	mr, rdb := newRedis(t)
	a := NewRedis(rdb, time.Second, nil)

	unlock, err := a.Lock(context.Background(), "item-1")
	require.NoError(t, err)

	// The lock expires and another process takes it over.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("rezervator:lock:item-1", "someone-else"))

	unlock()
	got, err := mr.Get("rezervator:lock:item-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisUnavailable(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	_, err := NewRedis(rdb, time.Second, nil).Lock(context.Background(), "item-1")
	require.Error(t, err)
	assert.Equal(t, model.RemedyCheckConfig, model.RemedyFor(err))
}

func TestRedisRenewsLeaseWhileHeld(t *testing.T) {
	mr, rdb := newRedis(t)
	const key = "rezervator:lock:item-1"
	r := NewRedis(rdb, 300*time.Millisecond, zaptest.NewLogger(t))

	unlock, err := r.Lock(context.Background(), "item-1")
	require.NoError(t, err)

	// Without renewal the lease would be gone after this.
	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL(key) > 250*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond, "the lease must be extended")

	mr.FastForward(250 * time.Millisecond)
	assert.True(t, mr.Exists(key))

	unlock()
	assert.False(t, mr.Exists(key))

	// A released lock is no longer renewed.
	require.NoError(t, mr.Set(key, "someone-else"))
	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, mr.TTL(key))
}
