// Package cache 为查询 API 提供 Redis 旁路缓存。
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tooltally/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tooltally:api:"

// Cache 是 JSON 序列化的旁路缓存。rdb 为 nil 时所有操作都是
// 空操作，调用方无需关心缓存是否启用。
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New 创建缓存。ttl 非正时回退为 5 分钟。
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Key 由各查询参数拼出缓存键，长参数串哈希压缩。
func Key(parts ...string) string {
	joined := strings.Join(parts, "|")
	if len(joined) > 120 {
		sum := sha256.Sum256([]byte(joined))
		joined = hex.EncodeToString(sum[:])
	}
	return keyPrefix + joined
}

// Get 查缓存并反序列化到 dest。返回是否命中。
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, nil
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.APICacheTotal.WithLabelValues("miss").Inc()
			return false, nil
		}
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// 缓存内容损坏按未命中处理，等待下次写入覆盖
		metrics.APICacheTotal.WithLabelValues("miss").Inc()
		return false, nil
	}
	metrics.APICacheTotal.WithLabelValues("hit").Inc()
	return true, nil
}

// Set 序列化并写入缓存，写失败只记日志级别的错误返回，不影响主流程。
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
