// Package idempotency implements the deterministic keying and result
// memoisation contract: a job identified by the same
// (incidentId, state, attempt, jobData) tuple must return the recorded
// result of its first successful run instead of re-executing side
// effects, and concurrent callers racing on the same key must collapse
// into a single execution.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/wp-autohealer/engine/internal/metrics"
)

// DefaultMemoCacheSize bounds the in-memory memo cache.
const DefaultMemoCacheSize = 4096

// DefaultRedisTTL is how long a memoised result survives in the optional
// Redis backing store, long enough to cover a crash-restart resumption
// window without accumulating forever.
const DefaultRedisTTL = 24 * time.Hour

// Key builds the deterministic idempotency key:
// incidentId ":" state ":" attempt ":" sha256(canonicalJson(jobData)).
// jobData is marshaled with sorted map keys so that the same logical data
// always hashes to the same digest regardless of field insertion order.
func Key(incidentID, state string, attempt int, jobData interface{}) (string, error) {
	digest, err := canonicalHash(jobData)
	if err != nil {
		return "", fmt.Errorf("idempotency: hash job data: %w", err)
	}
	return fmt.Sprintf("%s:%s:%d:%s", incidentID, state, attempt, digest), nil
}

// canonicalHash marshals v into canonical JSON — object keys sorted at
// every level — and returns the hex SHA-256 digest of the result. This
// makes the digest independent of Go map iteration order and of
// whitespace/field-order differences between equivalent payloads.
func canonicalHash(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}

	canonical, err := marshalCanonical(generic)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func marshalCanonical(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyJSON...)
			buf = append(buf, ':')
			valJSON, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, valJSON...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []interface{}:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			itemJSON, err := marshalCanonical(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, itemJSON...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(val)
	}
}

// Result is the memoised outcome of a job execution, stored opaquely —
// the caller decides what Value holds (typically a domain.FixResult or
// similar serialized payload).
type Result struct {
	Value json.RawMessage `json:"value"`
	At    time.Time       `json:"at"`
}

// Store memoises the first successful completion per idempotency key. A
// bounded in-memory LRU serves the hot path; an optional Redis client
// backs cross-process resumption after a restart. Concurrent callers for
// the same key collapse into one execution via singleflight, preventing
// the duplicate work outright rather than just recording it after the
// fact.
type Store struct {
	memo    *lru.Cache[string, Result]
	redis   *redis.Client
	group   singleflight.Group
	ttl     time.Duration
	metrics *metrics.IdempotencyMetrics
}

// Option configures a Store.
type Option func(*Store)

// WithRedis backs the store with a Redis client for cross-process
// resumption. Without it, memoisation only survives within one process.
func WithRedis(client *redis.Client, ttl time.Duration) Option {
	return func(s *Store) {
		s.redis = client
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMetrics attaches hit/miss counters.
func WithMetrics(m *metrics.IdempotencyMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a Store with the given in-memory cache size (0 uses
// DefaultMemoCacheSize).
func NewStore(cacheSize int, opts ...Option) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultMemoCacheSize
	}
	cache, err := lru.New[string, Result](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("idempotency: create memo cache: %w", err)
	}

	s := &Store{memo: cache, ttl: DefaultRedisTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Execute runs fn at most once per key: a memoised result from a prior
// successful run is returned immediately; concurrent callers for the
// same key share one in-flight execution; only a successful fn result is
// memoised, so a failing fn may be retried under the same key.
func (s *Store) Execute(ctx context.Context, key string, fn func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if result, ok, err := s.lookup(ctx, key); err != nil {
		return nil, err
	} else if ok {
		s.recordHit()
		return result.Value, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Re-check after winning the singleflight race: another
		// goroutine may have completed and memoised while we waited.
		if result, ok, lookupErr := s.lookup(ctx, key); lookupErr == nil && ok {
			s.recordHit()
			return result.Value, nil
		}

		s.recordMiss()
		value, fnErr := fn(ctx)
		if fnErr != nil {
			return nil, fnErr
		}

		if storeErr := s.store(ctx, key, value); storeErr != nil {
			return nil, storeErr
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Lookup reports whether key has a memoised result, without executing
// anything.
func (s *Store) Lookup(ctx context.Context, key string) (json.RawMessage, bool, error) {
	result, ok, err := s.lookup(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return result.Value, true, nil
}

func (s *Store) lookup(ctx context.Context, key string) (Result, bool, error) {
	if result, ok := s.memo.Get(key); ok {
		return result, true, nil
	}

	if s.redis == nil {
		return Result{}, false, nil
	}

	raw, err := s.redis.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("idempotency: redis lookup %s: %w", key, err)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Result{}, false, fmt.Errorf("idempotency: decode cached result for %s: %w", key, err)
	}
	s.memo.Add(key, result)
	return result, true, nil
}

// store memoises a successful result both in the local cache and, if
// configured, in Redis.
func (s *Store) store(ctx context.Context, key string, value json.RawMessage) error {
	result := Result{Value: value, At: time.Now()}
	s.memo.Add(key, result)

	if s.redis == nil {
		return nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("idempotency: encode result for %s: %w", key, err)
	}
	if err := s.redis.Set(ctx, redisKey(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: redis store %s: %w", key, err)
	}
	return nil
}

func (s *Store) recordHit() {
	if s.metrics != nil {
		s.metrics.RecordHit()
	}
}

func (s *Store) recordMiss() {
	if s.metrics != nil {
		s.metrics.RecordMiss()
	}
}

func redisKey(key string) string {
	return "idempotency:" + key
}
