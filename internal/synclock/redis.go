package synclock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keySyncLock = "revlens:sync:lock:%s"

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisGuard shares leases across processes. A lease expires after ttl so a
// crashed holder cannot block the merchant forever.
type RedisGuard struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisGuard{
		client: client,
		script: redis.NewScript(releaseScript),
		ttl:    ttl,
	}
}

func (g *RedisGuard) Acquire(ctx context.Context, merchantID string) (Lease, error) {
	merchantID, err := normalizeKey(merchantID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf(keySyncLock, merchantID)
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	return &redisLease{guard: g, key: key, token: token}, nil
}

type redisLease struct {
	guard *RedisGuard
	key   string
	token string
}

func (l *redisLease) Release(ctx context.Context) error {
	return l.guard.script.Run(ctx, l.guard.client, []string{l.key}, l.token).Err()
}
