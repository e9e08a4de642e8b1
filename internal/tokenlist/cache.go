package tokenlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"zapScope/internal/model"
)

// Cache stores resolved token metadata per chain.
type Cache interface {
	Get(ctx context.Context, chainID uint64, address string) (model.Token, bool, error)
	Set(ctx context.Context, token model.Token) error
}

func cacheKey(chainID uint64, address string) string {
	return strconv.FormatUint(chainID, 10) + ":" + model.TokenKey(address)
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]model.Token
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]model.Token)}
}

func (c *MemoryCache) Get(_ context.Context, chainID uint64, address string) (model.Token, bool, error) {
	c.mu.RLock()
	token, ok := c.data[cacheKey(chainID, address)]
	c.mu.RUnlock()
	return token, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, token model.Token) error {
	c.mu.Lock()
	c.data[cacheKey(token.ChainID, token.Address)] = token
	c.mu.Unlock()
	return nil
}

const redisKeyPrefix = "zapscope:token:"

// RedisCache shares token metadata between processes as JSON values.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps client. A zero ttl keeps entries forever.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisCacheFromURL parses a redis:// URL.
func NewRedisCacheFromURL(rawURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisCache(redis.NewClient(opts), ttl), nil
}

func (c *RedisCache) Get(ctx context.Context, chainID uint64, address string) (model.Token, bool, error) {
	val, err := c.client.Get(ctx, redisKeyPrefix+cacheKey(chainID, address)).Result()
	if errors.Is(err, redis.Nil) {
		return model.Token{}, false, nil
	}
	if err != nil {
		return model.Token{}, false, fmt.Errorf("redis get: %w", err)
	}
	var token model.Token
	if err := json.Unmarshal([]byte(val), &token); err != nil {
		return model.Token{}, false, fmt.Errorf("decode cached token: %w", err)
	}
	return token, true, nil
}

func (c *RedisCache) Set(ctx context.Context, token model.Token) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+cacheKey(token.ChainID, token.Address), string(payload), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
