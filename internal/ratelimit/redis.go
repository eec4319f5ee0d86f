package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/member-next/internal/logger"
)

// RedisLimiter Redis 实现，用于多实例部署共享失败计数
type RedisLimiter struct {
	client *redis.Client
	prefix string
	opts   Options
}

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(client *redis.Client, prefix string, opts Options) *RedisLimiter {
	if prefix == "" {
		prefix = "member"
	}
	return &RedisLimiter{client: client, prefix: prefix, opts: opts.normalized()}
}

func (l *RedisLimiter) failKey(key string) string {
	return fmt.Sprintf("%s:login_fail:%s", l.prefix, key)
}

func (l *RedisLimiter) lockKey(key string) string {
	return fmt.Sprintf("%s:login_lock:%s", l.prefix, key)
}

// Check 判断 key 当前是否允许尝试登录。Redis 不可用时放行，限流只是减速手段。
func (l *RedisLimiter) Check(ctx context.Context, key string) Decision {
	ttl, err := l.client.PTTL(ctx, l.lockKey(key)).Result()
	if err != nil {
		logger.Warnw("rate_limit_check_failed", "key", key, "error", err)
		return Decision{Allowed: true}
	}
	if ttl > 0 {
		return Decision{Allowed: false, RetryAfter: ttl}
	}
	return Decision{Allowed: true}
}

// RecordFailure 记录一次登录失败，计数达到阈值时写入锁定键
func (l *RedisLimiter) RecordFailure(ctx context.Context, key string) {
	failKey := l.failKey(key)
	count, err := l.client.Incr(ctx, failKey).Result()
	if err != nil {
		logger.Warnw("rate_limit_record_failed", "key", key, "error", err)
		return
	}
	if count == 1 {
		if err := l.client.Expire(ctx, failKey, l.opts.Window).Err(); err != nil {
			logger.Warnw("rate_limit_expire_failed", "key", key, "error", err)
		}
	}
	if count >= int64(l.opts.MaxFailures) {
		pipe := l.client.Pipeline()
		pipe.Set(ctx, l.lockKey(key), 1, l.opts.Block)
		pipe.Del(ctx, failKey)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warnw("rate_limit_lock_failed", "key", key, "error", err)
		}
	}
}

// Clear 登录成功后清除 key 的计数与锁定
func (l *RedisLimiter) Clear(ctx context.Context, key string) {
	if err := l.client.Del(ctx, l.failKey(key), l.lockKey(key)).Err(); err != nil {
		logger.Warnw("rate_limit_clear_failed", "key", key, "error", err)
	}
}
