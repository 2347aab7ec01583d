// Package cache は認証コード再送の間隔制限を提供する。
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "estadias:cooldown:"

// redisStore はRedisCooldownが使うコマンド。*redis.Clientが満たす。
type redisStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCooldown はSET NXとTTLによる間隔制限。複数インスタンス間で共有される。
type RedisCooldown struct {
	client redisStore
}

// NewRedisClient はRedisクライアントを生成する。
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

// NewRedisCooldown はRedisCooldownを生成する。
func NewRedisCooldown(client redisStore) *RedisCooldown {
	return &RedisCooldown{client: client}
}

// Allow はキーが間隔内に使われていなければ記録してtrueを返す。
// 使われていた場合はfalseと残り時間を返す。
func (c *RedisCooldown) Allow(ctx context.Context, key string, cooldown time.Duration) (bool, time.Duration, error) {
	k := keyPrefix + key

	ok, err := c.client.SetNX(ctx, k, time.Now().Unix(), cooldown).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to set cooldown: %w", err)
	}
	if ok {
		return true, 0, nil
	}

	ttl, err := c.client.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read cooldown ttl: %w", err)
	}
	if ttl < 0 {
		ttl = cooldown
	}
	return false, ttl, nil
}

// Release はAllowで記録した間隔を取り消す。
func (c *RedisCooldown) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release cooldown: %w", err)
	}
	return nil
}

// MemoryCooldown はプロセス内の間隔制限。Redis未設定の単一インスタンス構成で使う。
type MemoryCooldown struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewMemoryCooldown はMemoryCooldownを生成する。
func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{until: make(map[string]time.Time), now: time.Now}
}

// Allow はRedisCooldown.Allowと同じ意味を持つ。
func (c *MemoryCooldown) Allow(_ context.Context, key string, cooldown time.Duration) (bool, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if until, ok := c.until[key]; ok && now.Before(until) {
		return false, until.Sub(now), nil
	}

	// 期限切れのキーを掃除する
	for k, until := range c.until {
		if !now.Before(until) {
			delete(c.until, k)
		}
	}
	c.until[key] = now.Add(cooldown)
	return true, 0, nil
}

// Release はRedisCooldown.Releaseと同じ意味を持つ。
func (c *MemoryCooldown) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.until, key)
	return nil
}
