// Package cache provides response caching for Trafikanalys API requests
// with a Redis backend.
//
// The Trafikanalys API serves slowly-changing statistics and sends no cache
// validator headers, so entries are stored with a fixed client-side TTL
// (30 minutes by default) and keyed by the fully resolved request: endpoint
// plus sorted query parameters.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 30*time.Minute)
//
//	key := cache.Key{
//		Endpoint: "/data",
//		Params:   url.Values{"query": []string{"t10016|ar:2020"}, "lang": []string{"sv"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the API, then:
//		manager.Set(ctx, key, body)
//	}
//
// # Maintenance
//
// Clear removes every cached response (optionally only entries older than a
// given age); Stats reports entry count and approximate size. Both operate
// only on keys under the package's "trafa:" prefix.
//
// # Metrics
//
// The manager exports Prometheus metrics:
//
//   - trafa_cache_hits_total - Cache hits
//   - trafa_cache_misses_total - Cache misses
//   - trafa_cache_size_bytes - Bytes written to the cache
//   - trafa_cache_errors_total{operation} - Cache operation errors
package cache
