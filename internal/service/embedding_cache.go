package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryQueryCache is the in-process TTL cache used when Redis is not
// configured. Expired entries are evicted lazily on read.
type MemoryQueryCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	vector       []float32
	modelVersion string
	expiresAt    time.Time
}

func NewMemoryQueryCache(ttl time.Duration) *MemoryQueryCache {
	return &MemoryQueryCache{
		ttl:     ttl,
		entries: make(map[string]memoryCacheEntry),
	}
}

func (c *MemoryQueryCache) Get(ctx context.Context, key string) ([]float32, string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, "", false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, "", false
	}
	return entry.vector, entry.modelVersion, true
}

func (c *MemoryQueryCache) Set(ctx context.Context, key string, vector []float32, modelVersion string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{
		vector:       vector,
		modelVersion: modelVersion,
		expiresAt:    time.Now().Add(c.ttl),
	}
}

// RedisQueryCache shares the query-embedding cache across processes. Cache
// errors are logged and treated as misses; the cache is never on the failure
// path of a query.
type RedisQueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisQueryCache(client *redis.Client, ttl time.Duration) *RedisQueryCache {
	return &RedisQueryCache{client: client, ttl: ttl}
}

type cachedEmbedding struct {
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}

func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "groundline:qe:" + hex.EncodeToString(sum[:])
}

func (c *RedisQueryCache) Get(ctx context.Context, key string) ([]float32, string, bool) {
	raw, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("embedding cache get failed: %v", err)
		}
		return nil, "", false
	}

	var entry cachedEmbedding
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Printf("embedding cache decode failed: %v", err)
		return nil, "", false
	}
	return entry.Vector, entry.ModelVersion, true
}

func (c *RedisQueryCache) Set(ctx context.Context, key string, vector []float32, modelVersion string) {
	raw, err := json.Marshal(cachedEmbedding{Vector: vector, ModelVersion: modelVersion})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKey(key), raw, c.ttl).Err(); err != nil {
		log.Printf("embedding cache set failed: %v", err)
	}
}
