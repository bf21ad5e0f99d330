// Package redisstore implements the remote key-value fingerprint/state
// backend named in spec.md §4.3: a thin wrapper over
// github.com/redis/go-redis/v9, keys native-TTL'd, and a sorted set
// scored by created_at for LRU trimming.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"eve.evalgo.org/otelscrape/store"
)

// Config configures the connection, mirroring queue/redis/queue.go's
// Config{RedisURL, KeyPrefix} shape. Backend is either "redis" or
// "valkey" per spec.md §6 — the wire protocol is identical, so one
// implementation serves both.
type Config struct {
	Addr      string
	Password  string
	DB        int
	TLS       bool
	KeyPrefix string
}

// Store is the redis/valkey-backed store.Store implementation.
type Store struct {
	client *redis.Client
	prefix string
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: ping %s: %w", cfg.Addr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "scraper"
	}
	return &Store{client: client, prefix: prefix}, nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) fpKey(source, digest string) string { return fmt.Sprintf("%s:fp:%s:%s", s.prefix, source, digest) }
func (s *Store) idxKey(source string) string        { return fmt.Sprintf("%s:fp_idx:%s", s.prefix, source) }
func (s *Store) stateKey(source string) string      { return fmt.Sprintf("%s:state:%s", s.prefix, source) }

func (s *Store) LoadLastSuccess(ctx context.Context, source string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.stateKey(source)).Int64()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &store.Error{Op: "LoadLastSuccess", Err: err}
	}
	return time.Unix(val, 0).UTC(), true, nil
}

func (s *Store) SaveLastSuccess(ctx context.Context, source string, end time.Time) error {
	if err := s.client.Set(ctx, s.stateKey(source), end.Unix(), 0).Err(); err != nil {
		return &store.Error{Op: "SaveLastSuccess", Err: err}
	}
	return nil
}

func (s *Store) Seen(ctx context.Context, source, digest string) (bool, error) {
	n, err := s.client.Exists(ctx, s.fpKey(source, digest)).Result()
	if err != nil {
		return false, &store.Error{Op: "Seen", Err: err}
	}
	return n > 0, nil
}

func (s *Store) InsertMany(ctx context.Context, source string, digests []string, ttl time.Duration) error {
	if len(digests) == 0 {
		return nil
	}
	if len(digests) > 10000 {
		return &store.Error{Op: "InsertMany", Err: fmt.Errorf("batch of %d exceeds 10^4 transaction cap", len(digests))}
	}

	now := float64(time.Now().Unix())
	pipe := s.client.TxPipeline()
	for _, d := range digests {
		pipe.Set(ctx, s.fpKey(source, d), 1, ttl)
		pipe.ZAdd(ctx, s.idxKey(source), redis.Z{Score: now, Member: d})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &store.Error{Op: "InsertMany", Err: err}
	}
	return nil
}

func (s *Store) EnforceCap(ctx context.Context, source string, maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}
	idx := s.idxKey(source)
	count, err := s.client.ZCard(ctx, idx).Result()
	if err != nil {
		return &store.Error{Op: "EnforceCap", Err: err}
	}
	overflow := count - int64(maxEntries)
	if overflow <= 0 {
		return nil
	}

	oldest, err := s.client.ZRange(ctx, idx, 0, overflow-1).Result()
	if err != nil {
		return &store.Error{Op: "EnforceCap", Err: err}
	}
	if len(oldest) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, digest := range oldest {
		pipe.Del(ctx, s.fpKey(source, digest))
	}
	pipe.ZRem(ctx, idx, toInterfaceSlice(oldest)...)
	if _, err := pipe.Exec(ctx); err != nil {
		return &store.Error{Op: "EnforceCap", Err: err}
	}
	return nil
}

func toInterfaceSlice(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// GCExpired is a no-op for the redis backend: fp:* keys carry native
// TTL and self-expire. The fp_idx:* sorted set entries for expired
// keys are swept lazily by EnforceCap and GCOrphans instead of a
// dedicated scan, since redis has no efficient "expired but still
// indexed" query.
func (s *Store) GCExpired(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *Store) GCOrphans(ctx context.Context, liveSources []string) (int, error) {
	live := make(map[string]bool, len(liveSources))
	for _, src := range liveSources {
		live[src] = true
	}

	var cursor uint64
	removed := 0
	pattern := s.prefix + ":fp_idx:*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, &store.Error{Op: "GCOrphans", Err: err}
		}
		for _, key := range keys {
			source := key[len(s.prefix+":fp_idx:"):]
			if live[source] {
				continue
			}
			members, err := s.client.ZRange(ctx, key, 0, -1).Result()
			if err != nil {
				return removed, &store.Error{Op: "GCOrphans", Err: err}
			}
			pipe := s.client.TxPipeline()
			for _, digest := range members {
				pipe.Del(ctx, s.fpKey(source, digest))
			}
			pipe.Del(ctx, key)
			pipe.Del(ctx, s.stateKey(source))
			if _, err := pipe.Exec(ctx); err != nil {
				return removed, &store.Error{Op: "GCOrphans", Err: err}
			}
			removed += len(members) + 1
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

var _ store.Store = (*Store)(nil)
