package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
)

// releaseScript deletes a slot only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// Redis is a fleet-wide semaphore of size slots backed by Redis keys.
type Redis struct {
	rdb       *redis.Client
	logger    *zap.Logger
	keyPrefix string
	slots     int
	ttl       time.Duration
	poll      time.Duration
}

// RedisOption defines a functional option for Redis
type RedisOption func(*Redis)

// WithPollInterval sets how often a waiting Acquire retries
func WithPollInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.poll = d
		}
	}
}

// NewRedisClient creates a client from cfg.Redis
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// NewRedis creates a Redis limiter. ttl bounds how long a crashed holder
// can keep a slot.
func NewRedis(rdb *redis.Client, logger *zap.Logger, keyPrefix string, slots int, ttl time.Duration, opts ...RedisOption) *Redis {
	if slots < 1 {
		slots = 1
	}
	r := &Redis{
		rdb:       rdb,
		logger:    logger,
		keyPrefix: keyPrefix,
		slots:     slots,
		ttl:       ttl,
		poll:      100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) slotKey(i int) string {
	return fmt.Sprintf("%s:%d", r.keyPrefix, i)
}

// Acquire polls the slot keys until one is taken or ctx is done
func (r *Redis) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		for i := 0; i < r.slots; i++ {
			key := r.slotKey(i)
			ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("failed to acquire execution slot: %w", err)
			}
			if ok {
				return r.releaser(key, token), nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Redis) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			deleted, err := releaseScript.Run(ctx, r.rdb, []string{key}, token).Int64()
			switch {
			case err != nil && !errors.Is(err, redis.Nil):
				r.logger.Error("failed to release execution slot", zap.String("key", key), zap.Error(err))
			case deleted == 0:
				r.logger.Warn("execution slot expired before release", zap.String("key", key))
			}
		})
	}
}
