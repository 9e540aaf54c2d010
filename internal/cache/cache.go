// Package cache provides the advisory store backing derived projections
// such as the active-shareholder list. Stale reads within the TTL are
// tolerated; correctness never depends on a cache hit, so every
// implementation swallows backend failures and degrades to a miss.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"captable/internal/logger"
)

// Store is a TTL key-value store for rebuildable projections.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// redisStore backs the projection cache with Redis.
type redisStore struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed Store.
func NewRedis(addr, password string) Store {
	return &redisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Get().Warnw("cache get failed", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.Get().Warnw("cache set failed", "key", key, "error", err)
	}
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		logger.Get().Warnw("cache delete failed", "keys", keys, "error", err)
	}
}

// memoryStore is a process-local Store used in tests and when Redis is
// not configured.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemory creates an in-process Store.
func NewMemory() Store {
	return &memoryStore{entries: make(map[string]memoryEntry)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return "", false
	}
	return e.value, true
}

func (s *memoryStore) Set(_ context.Context, key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

func (s *memoryStore) Delete(_ context.Context, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
}
