package tokencache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
)

const keyPrefix = "pdaudit:llm_token:"

// Redis shares exchanged tokens between service instances. Redis errors are
// logged and treated as misses; a token exchange is always a valid fallback.
type Redis struct {
	client *redis.Client
	log    *logrus.Entry
	now    func() time.Time
}

func NewRedis(client *redis.Client, log *logrus.Entry) *Redis {
	return &Redis{client: client, log: log, now: time.Now}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	v, err := r.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		r.log.WithError(err).WithField("key", key).Warn("token cache read failed")
		return "", false
	}
	return v, v != ""
}

func (r *Redis) Set(ctx context.Context, key, token string, expiresAt time.Time) {
	ttl := ttlFor(expiresAt, r.now())
	if ttl <= 0 {
		return
	}
	if err := r.client.Set(ctx, keyPrefix+key, token, ttl).Err(); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("token cache write failed")
	}
}

func ttlFor(expiresAt, now time.Time) time.Duration {
	return expiresAt.Add(-ai.TokenSafetyMargin).Sub(now)
}
