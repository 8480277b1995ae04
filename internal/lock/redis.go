package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/model"
)

// DefaultTTL bounds how long a crashed holder can keep a key locked.
const DefaultTTL = 10 * time.Second

// release deletes the key only if it still holds our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extend pushes the expiry of the key forward only if it still holds our token.
var extend = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a lock shared by every process using the same Redis server. Each
// lock expires after its TTL so a crashed holder cannot block a key forever;
// while the holder is alive a watchdog renews the lease every third of the TTL.
type Redis struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	poll   time.Duration
	prefix string
	log    *zap.Logger
}

// NewRedis returns a distributed locker. A non-positive ttl means DefaultTTL.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration, log *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{rdb: rdb, ttl: ttl, poll: 25 * time.Millisecond, prefix: "rezervator:lock:", log: log}
}

// Lock polls SET NX until it owns key or ctx ends.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.rdb.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, model.Unavailable("redis", "check redis.addr and redis.password", fmt.Errorf("acquiring lock %s: %w", key, err))
		}
		if ok {
			break
		}

		t := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.renew(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := release.Run(ctx, r.rdb, []string{k}, token).Err(); err != nil {
				r.log.Warn("releasing lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

// renew extends the lease on k until stop is closed or the lease is lost.
func (r *Redis) renew(k, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := max(r.ttl/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := extend.Run(ctx, r.rdb, []string{k}, token, r.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			r.log.Warn("renewing lock", zap.String("key", k), zap.Error(err))
		case n == 0:
			r.log.Error("lock lease lost before release", zap.String("key", k))
			return
		}
	}
}
