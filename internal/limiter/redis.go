package limiter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "login:"

// Redis is a Redis-backed limiter with a fixed failure window and lockout.
type Redis struct {
	client   *redis.Client
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

// NewRedis constructs a Redis-backed limiter. The failure window equals the lockout.
func NewRedis(client *redis.Client, maxFails int, blockFor time.Duration) *Redis {
	return &Redis{client: client, window: blockFor, maxFails: maxFails, blockFor: blockFor}
}

func (l *Redis) failKey(username, ip string) string {
	return keyPrefix + "fail:" + strings.ToLower(username) + ":" + HashIP(ip)
}

func (l *Redis) blockKey(username, ip string) string {
	return keyPrefix + "block:" + strings.ToLower(username) + ":" + HashIP(ip)
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Redis) Allow(ctx context.Context, username, ip string) (bool, time.Duration, error) {
	ttl, err := l.client.PTTL(ctx, l.blockKey(username, ip)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, 0, nil
		}
		return false, 0, fmt.Errorf("limiter allow: %w", err)
	}
	if ttl > 0 {
		return false, ttl, nil
	}
	return true, 0, nil
}

// Success resets counters for (username, ip).
func (l *Redis) Success(ctx context.Context, username, ip string) error {
	if err := l.client.Del(ctx, l.failKey(username, ip), l.blockKey(username, ip)).Err(); err != nil {
		return fmt.Errorf("limiter success: %w", err)
	}
	return nil
}

// Failure records a failed attempt; may set a block for blockFor.
func (l *Redis) Failure(ctx context.Context, username, ip string) (bool, time.Duration, error) {
	key := l.failKey(username, ip)

	fails, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("limiter failure: %w", err)
	}
	if fails == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("limiter failure: %w", err)
		}
	}

	if int(fails) < l.maxFails {
		return false, 0, nil
	}

	if err := l.client.Set(ctx, l.blockKey(username, ip), 1, l.blockFor).Err(); err != nil {
		return false, 0, fmt.Errorf("limiter block: %w", err)
	}
	l.client.Del(ctx, key)
	return true, l.blockFor, nil
}
