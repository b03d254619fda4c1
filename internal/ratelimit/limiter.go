package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pathlight-ai/pathlight/internal/config"
)

// Limiter throttles per-user access to metered endpoints. When disabled or
// when redis is unavailable every request is allowed.
type Limiter struct {
	bucket  *TokenBucket
	enabled bool
	rate    float64
	burst   int
	log     *zap.Logger
}

type Params struct {
	fx.In

	Config config.Config
	Redis  *redis.Client `optional:"true"`
	Logger *zap.Logger
}

func NewLimiter(p Params) *Limiter {
	enabled := p.Config.RateLimit.Enabled && p.Redis != nil
	if p.Config.RateLimit.Enabled && p.Redis == nil {
		p.Logger.Warn("rate limiting enabled but redis is not configured, disabling")
	}
	return &Limiter{
		bucket:  NewTokenBucket(p.Redis),
		enabled: enabled,
		rate:    p.Config.RateLimit.Rate,
		burst:   p.Config.RateLimit.Burst,
		log:     p.Logger.Named("ratelimit"),
	}
}

// Allow checks whether the given key may proceed. Redis failures are logged
// and treated as allowed so the limiter never takes the API down.
func (l *Limiter) Allow(ctx context.Context, key string) *Result {
	if l == nil || !l.enabled {
		return &Result{Allowed: true}
	}

	res, err := l.bucket.Allow(ctx, "ratelimit:"+key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request", zap.Error(err))
		return &Result{Allowed: true}
	}
	return res
}

var Module = fx.Module("ratelimit",
	fx.Provide(NewLimiter),
)
