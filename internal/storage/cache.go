package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps the published read model in Redis. Values have no expiry;
// they are replaced or deleted by the background jobs that own them.
type RedisCache struct {
	redis  *redis.Client
	prefix string
}

// NewRedisCache wraps client. prefix is prepended to every key.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if client == nil {
		panic("storage.NewRedisCache: redis client is nil")
	}
	return &RedisCache{redis: client, prefix: prefix}
}

// NewRedisClient accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=true" connection string.
func NewRedisClient(connStr string) *redis.Client {
	if opts, err := redis.ParseURL(connStr); err == nil {
		return redis.NewClient(opts)
	}
	parts := strings.Split(connStr, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return redis.NewClient(opts)
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	return c.redis.Set(ctx, c.prefix+key, value, 0).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.redis.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.redis.Del(ctx, c.prefix+key).Err()
}

// MemoryCache is a map-backed cache for local runs.
type MemoryCache struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: map[string]string{}}
}

func (c *MemoryCache) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}
