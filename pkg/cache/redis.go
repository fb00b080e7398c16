package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisEntryPrefix = "depsentry:entry:"
	redisLRUKey      = "depsentry:lru"
	redisSizesKey    = "depsentry:sizes"
)

// RedisBackend stores entries in Redis: one hash per entry, a sorted set
// ordered by last access for LRU eviction, and a size index for the ceiling
// check. Expiry is tracked in the entry itself rather than via Redis TTLs so
// expired entries remain countable until cleanup runs.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend connects to Redis at addr (host:port) and verifies the
// connection with a short ping.
func NewRedisBackend(addr string) (*RedisBackend, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &RedisBackend{rdb: rdb}, nil
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Get(ctx context.Context, key string) (*Entry, error) {
	m, err := r.rdb.HGetAll(ctx, redisEntryPrefix+key).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return entryFromFields(key, m), nil
}

func (r *RedisBackend) Put(ctx context.Context, e *Entry) error {
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, redisEntryPrefix+e.Key, map[string]any{
		"value":         e.Value,
		"created_at":    e.CreatedAt.UnixNano(),
		"expires_at":    e.ExpiresAt.UnixNano(),
		"hit_count":     0,
		"last_accessed": e.LastAccessed.UnixNano(),
		"size_bytes":    e.SizeBytes,
	})
	pipe.ZAdd(ctx, redisLRUKey, redis.Z{Score: float64(e.LastAccessed.UnixNano()), Member: e.Key})
	pipe.HSet(ctx, redisSizesKey, e.Key, e.SizeBytes)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisBackend) Touch(ctx context.Context, key string, at time.Time) error {
	pipe := r.rdb.TxPipeline()
	pipe.HIncrBy(ctx, redisEntryPrefix+key, "hit_count", 1)
	pipe.HSet(ctx, redisEntryPrefix+key, "last_accessed", at.UnixNano())
	pipe.ZAdd(ctx, redisLRUKey, redis.Z{Score: float64(at.UnixNano()), Member: key})
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, redisEntryPrefix+key)
	pipe.ZRem(ctx, redisLRUKey, key)
	pipe.HDel(ctx, redisSizesKey, key)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisBackend) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	keys, err := r.rdb.ZRange(ctx, redisLRUKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	var n int
	for _, key := range keys {
		expires, err := r.rdb.HGet(ctx, redisEntryPrefix+key, "expires_at").Int64()
		if err != nil {
			continue
		}
		if expires <= now.UnixNano() {
			if err := r.Delete(ctx, key); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (r *RedisBackend) Clear(ctx context.Context) error {
	keys, err := r.rdb.ZRange(ctx, redisLRUKey, 0, -1).Result()
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, redisEntryPrefix+key)
	}
	pipe.Del(ctx, redisLRUKey)
	pipe.Del(ctx, redisSizesKey)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisBackend) TotalSize(ctx context.Context) (int64, error) {
	sizes, err := r.rdb.HVals(ctx, redisSizesKey).Result()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, s := range sizes {
		n, _ := strconv.ParseInt(s, 10, 64)
		total += n
	}
	return total, nil
}

func (r *RedisBackend) EvictLRU(ctx context.Context, need int64) (int, error) {
	keys, err := r.rdb.ZRange(ctx, redisLRUKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	var freed int64
	var n int
	for _, key := range keys {
		if freed >= need {
			break
		}
		size, _ := r.rdb.HGet(ctx, redisSizesKey, key).Int64()
		if err := r.Delete(ctx, key); err != nil {
			return n, err
		}
		freed += size
		n++
	}
	return n, nil
}

func (r *RedisBackend) Stats(ctx context.Context, now time.Time) (BackendStats, error) {
	keys, err := r.rdb.ZRange(ctx, redisLRUKey, 0, -1).Result()
	if err != nil {
		return BackendStats{}, err
	}
	var st BackendStats
	for _, key := range keys {
		m, err := r.rdb.HGetAll(ctx, redisEntryPrefix+key).Result()
		if err != nil || len(m) == 0 {
			continue
		}
		e := entryFromFields(key, m)
		st.Entries++
		st.TotalSizeBytes += e.SizeBytes
		st.TotalHits += e.HitCount
		if e.Expired(now) {
			st.ExpiredEntries++
		}
	}
	return st, nil
}

func (r *RedisBackend) Close() error { return r.rdb.Close() }

func entryFromFields(key string, m map[string]string) *Entry {
	parse := func(field string) int64 {
		n, _ := strconv.ParseInt(m[field], 10, 64)
		return n
	}
	return &Entry{
		Key:          key,
		Value:        []byte(m["value"]),
		CreatedAt:    time.Unix(0, parse("created_at")),
		ExpiresAt:    time.Unix(0, parse("expires_at")),
		HitCount:     parse("hit_count"),
		LastAccessed: time.Unix(0, parse("last_accessed")),
		SizeBytes:    parse("size_bytes"),
	}
}
