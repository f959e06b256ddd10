// Package cache provides a two-tier cache that prefers a networked backend
// and degrades to a bounded in-process store when the backend cannot be
// reached.
//
// # FallbackCache
//
// [New] probes the [Backend] once. If the probe succeeds every [FallbackCache.Get],
// [FallbackCache.Set] and [FallbackCache.Delete] goes to the backend; a
// failing call is logged and, for reads, answered from the local store. If
// the probe fails the cache uses only its [Local] store for the rest of its
// life. There is no re-probe: restart the process, or build a new cache, to
// pick up a backend that came back.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	c := cache.New(ctx, cache.NewRedis(rdb), cache.WithNamespace("snapcraft"))
//	defer c.Close()
//
//	_ = c.Set(ctx, "snap", details, time.Hour, cache.Attr{Name: "arch", Value: "amd64"})
//	v, found, err := c.Get(ctx, "snap", cache.Structured, cache.Attr{Name: "arch", Value: "amd64"})
//
// Backend failures never reach the caller. Serialization and
// deserialization failures always do.
//
// # Backends
//
//   - [NewRedis]: backed by Redis using [github.com/redis/go-redis/v9].
//     Values are plain Redis strings with a native TTL. The caller owns the
//     client lifecycle. Each operation uses a per-query timeout
//     ([DefaultQueryTimeout]).
//
//   - [NewSQLite]: backed by a SQLite database using [modernc.org/sqlite]
//     (pure Go, no CGO), so processes on the same host can share a cache
//     file. WAL mode is enabled. Expired rows are removed lazily on read and
//     by a background goroutine.
//
// # Keys
//
// Keys are rendered by [BuildKey] as namespace:base followed by
// :name-value for each [Attr] whose value is set. Attributes holding a zero
// value are dropped, so "snap" with {page: 0} and "snap" alone share an
// entry.
//
// # Serialization
//
// Both tiers hold the same text produced by [Serialize]: strings verbatim,
// []byte as UTF-8 text or a "<binary data: N bytes>" placeholder, everything
// else as JSON. Sets written as map[K]struct{} become sorted arrays. Read
// values back with a [Shape] through [FallbackCache.Get], or into a typed
// target with [GetAs].
//
// # Exec
//
// [Exec] is a cache-aside (read-through) helper that combines lookup and
// population in one call and collapses concurrent misses for a key into a
// single call of the invoker:
//
//	found, snap, err := cache.Exec(ctx, c, cache.ExecConfig{Key: "snap:" + name},
//	    func(ctx context.Context) (Snap, bool, error) {
//	        return store.Snap(ctx, name)
//	    })
package cache
