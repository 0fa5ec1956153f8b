package synclock

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/revlens/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("sync.lock",
	fx.Provide(NewGuard),
)

// NewGuard picks the shared Redis guard when REDIS_ADDR is set and falls
// back to an in-process guard otherwise.
func NewGuard(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Guard {
	if !cfg.Redis.Enabled() {
		log.Info("synclock.memory", zap.String("reason", "REDIS_ADDR not set"))
		return NewMemoryGuard()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("synclock.redis_unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("synclock.redis", zap.String("addr", cfg.Redis.Addr))
	return NewRedisGuard(client, cfg.Sync.LockTTL)
}
