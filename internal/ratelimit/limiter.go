package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/forecast/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const keyPrefix = "forecast:ratelimit:"

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter throttles expensive operations per caller key.
type Limiter interface {
	Enabled() bool
	Allow(ctx context.Context, key string) (Result, error)
}

type Params struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Config config.Config
	Log    *zap.Logger
}

// New limits training requests. Redis shares the bucket across replicas; the
// process-local bucket is used without it. A zero rate disables limiting.
func New(p Params) Limiter {
	cfg := p.Config.TrainRateLimit
	if cfg.PerMinute <= 0 {
		return disabled{}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	perSecond := cfg.PerMinute / 60
	log := p.Log.Named("ratelimit")

	if p.Client != nil {
		log.Info("training rate limit uses redis", zap.Float64("per_minute", cfg.PerMinute), zap.Int("burst", burst))
		return &redisLimiter{bucket: NewTokenBucket(p.Client), rate: perSecond, burst: burst}
	}
	log.Info("training rate limit is process-local", zap.Float64("per_minute", cfg.PerMinute), zap.Int("burst", burst))
	return NewLocalLimiter(perSecond, burst)
}

type disabled struct{}

func (disabled) Enabled() bool { return false }

func (disabled) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true}, nil
}

type redisLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func (l *redisLimiter) Enabled() bool { return true }

func (l *redisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	return l.bucket.Allow(ctx, keyPrefix+strings.TrimSpace(key), l.rate, l.burst)
}

// LocalLimiter keeps one x/time/rate bucket per key.
type LocalLimiter struct {
	mu      sync.Mutex
	rate    rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

func NewLocalLimiter(perSecond float64, burst int) *LocalLimiter {
	return &LocalLimiter{
		rate:    rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

func (l *LocalLimiter) Enabled() bool { return true }

func (l *LocalLimiter) Allow(_ context.Context, key string) (Result, error) {
	key = strings.TrimSpace(key)

	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	now := l.now()
	res := bucket.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Result{Limit: l.burst, RetryAfter: delay}, nil
	}
	return Result{Allowed: true, Limit: l.burst, Remaining: int(bucket.TokensAt(now))}, nil
}
