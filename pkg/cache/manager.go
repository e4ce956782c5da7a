package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultTTL is the expiry applied to cached responses when none is
// configured. Matches the refresh cadence of the underlying statistics.
const DefaultTTL = 30 * time.Minute

// Stats describes the current cache contents.
type Stats struct {
	Entries    int           `json:"entries"`
	TotalBytes int64         `json:"total_bytes"`
	TTL        time.Duration `json:"ttl"`
}

// Manager handles response caching with a Redis backend.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a cache manager. A non-positive ttl falls back to
// DefaultTTL.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get retrieves a cached response body by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis TTL normally evicts first; the explicit check covers clock skew
	// and entries written with a longer TTL before a reconfiguration.
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return entry.Data, nil
}

// Set stores a response body under the manager's TTL.
func (m *Manager) Set(ctx context.Context, key Key, body []byte) error {
	now := time.Now()
	entry := Entry{
		Data:     body,
		CachedAt: now,
		Expires:  now.Add(m.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, m.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.Add(float64(len(data)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes cached responses and returns the number of entries deleted.
// When olderThan > 0, only entries cached at least that long ago are
// removed; otherwise everything under the cache prefix is dropped.
func (m *Manager) Clear(ctx context.Context, olderThan time.Duration) (int, error) {
	deleted := 0

	iter := m.redis.Scan(ctx, 0, keyPrefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()

		if olderThan > 0 {
			data, err := m.redis.Get(ctx, k).Bytes()
			if err != nil {
				continue
			}
			var entry Entry
			if err := json.Unmarshal(data, &entry); err == nil && entry.Age() < olderThan {
				continue
			}
		}

		if err := m.redis.Del(ctx, k).Err(); err != nil {
			CacheErrors.WithLabelValues("clear").Inc()
			return deleted, fmt.Errorf("redis del: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		return deleted, fmt.Errorf("redis scan: %w", err)
	}

	return deleted, nil
}

// Stats reports the number of cached entries and their approximate size.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{TTL: m.ttl}

	iter := m.redis.Scan(ctx, 0, keyPrefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		size, err := m.redis.StrLen(ctx, iter.Val()).Result()
		if err != nil {
			CacheErrors.WithLabelValues("stats").Inc()
			return stats, fmt.Errorf("redis strlen: %w", err)
		}
		stats.Entries++
		stats.TotalBytes += size
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("stats").Inc()
		return stats, fmt.Errorf("redis scan: %w", err)
	}

	return stats, nil
}
