package storage

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"
)

// SummaryCacheKey holds the summary of the most recent batch.
const SummaryCacheKey = "cerberus:summary:latest"

type Cache interface {
    Get(ctx context.Context, key string) ([]byte, bool)
    Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

type RedisCache struct {
    client *redis.Client
}

type MemoryCache struct {
    mu    sync.Mutex
    items map[string]memItem
    now   func() time.Time
}

type memItem struct {
    val []byte
    exp time.Time
}

// NewCache connects to Redis when redisURL is set and reachable, and falls
// back to an in-process cache otherwise.
func NewCache(redisURL string, logger *logrus.Logger) Cache {
    if redisURL == "" {
        return NewMemoryCache()
    }
    opt, err := redis.ParseURL(redisURL)
    if err != nil {
        logger.WithError(err).Warn("Invalid REDIS_URL, using in-memory cache")
        return NewMemoryCache()
    }
    client := redis.NewClient(opt)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        logger.WithError(err).Warn("Redis unreachable, using in-memory cache")
        client.Close()
        return NewMemoryCache()
    }
    logger.WithField("addr", opt.Addr).Info("Using Redis cache")
    return NewRedisCache(client)
}

func NewRedisCache(client *redis.Client) *RedisCache {
    return &RedisCache{client: client}
}

func NewMemoryCache() *MemoryCache {
    return &MemoryCache{items: make(map[string]memItem), now: time.Now}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
    b, err := r.client.Get(ctx, key).Bytes()
    if err != nil {
        return nil, false
    }
    return b, true
}

func (r *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
    return r.client.Set(ctx, key, val, ttl).Err()
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
    m.mu.Lock()
    defer m.mu.Unlock()
    it, ok := m.items[key]
    if !ok {
        return nil, false
    }
    if !it.exp.IsZero() && m.now().After(it.exp) {
        delete(m.items, key)
        return nil, false
    }
    return it.val, true
}

func (m *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    exp := time.Time{}
    if ttl > 0 {
        exp = m.now().Add(ttl)
    }
    m.items[key] = memItem{val: val, exp: exp}
    return nil
}

func MarshalCache(v any) ([]byte, error) {
    return json.Marshal(v)
}

func UnmarshalCache(data []byte, v any) error {
    return json.Unmarshal(data, v)
}
