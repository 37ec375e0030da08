package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// окно открывается первым запросом, TTL не продлевается последующими
var fixedWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RateLimiter: счётчик запросов в фиксированном окне, общий для всех воркеров.
type RateLimiter struct {
	c      *redis.Client
	prefix string
}

func NewRateLimiter(c *redis.Client, prefix string) *RateLimiter {
	return &RateLimiter{c: c, prefix: prefix}
}

// Allow учитывает запрос в окне key. Если лимит исчерпан, retryAfter: сколько
// осталось до конца окна.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, time.Duration, error) {
	res, err := fixedWindow.Run(ctx, rl.c, []string{rl.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	if len(res) != 2 {
		return false, 0, errors.Errorf("redis ratelimit: unexpected reply %v", res)
	}
	if res[0] <= limit {
		return true, 0, nil
	}
	// PTTL отрицателен, если ключ успел истечь
	return false, max(time.Duration(res[1])*time.Millisecond, 0), nil
}
