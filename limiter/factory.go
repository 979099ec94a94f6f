package limiter

import (
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
)

// New returns a Redis limiter when cfg.Redis.Addr is set, a Local one
// otherwise. closeFn releases the Redis connection pool.
func New(cfg *config.Config, logger *zap.Logger) (l Limiter, closeFn func() error) {
	if cfg.Redis.Addr == "" {
		return NewLocal(cfg.Sandbox.MaxConcurrent), func() error { return nil }
	}

	rdb := NewRedisClient(cfg)
	ttl := time.Duration(cfg.Redis.SlotTTLSec) * time.Second
	logger.Info("using fleet-wide execution limiter",
		zap.String("addr", cfg.Redis.Addr),
		zap.Int("slots", cfg.Sandbox.MaxConcurrent))
	return NewRedis(rdb, logger, cfg.Redis.LimiterKey, cfg.Sandbox.MaxConcurrent, ttl), rdb.Close
}
