package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/forecast/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	keyPrefix    = "forecast:refresh:"
	pollInterval = 250 * time.Millisecond
)

// RedisLock spans processes. The local mutex keeps a single process from
// polling redis against itself.
type RedisLock struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
	local  *KeyedMutex
	log    *zap.Logger
}

func NewRedisLock(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisLock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisLock{
		client: client,
		script: redis.NewScript(releaseScript),
		ttl:    ttl,
		local:  NewKeyedMutex(),
		log:    log.Named("refresh.lock"),
	}
}

func (l *RedisLock) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, errors.New("lock key is empty")
	}
	releaseLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	redisKey := keyPrefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			releaseLocal()
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			releaseLocal()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.script.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.log.Warn("release failed", zap.String("key", redisKey), zap.Error(err))
			}
			releaseLocal()
		})
	}, nil
}

// NewRedisClient returns nil when REDIS_ADDR is unset.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if !cfg.Redis.Enabled() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

type Params struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Config config.Config
	Log    *zap.Logger
}

// New picks the redis lock when a client is configured.
func New(p Params) Locker {
	if p.Client == nil {
		return NewKeyedMutex()
	}
	return NewRedisLock(p.Client, p.Config.RefreshLockTTL, p.Log)
}

var _ Locker = (*RedisLock)(nil)
