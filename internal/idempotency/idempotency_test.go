package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsDeterministicRegardlessOfFieldOrder(t *testing.T) {
	a := map[string]interface{}{"b": 2, "a": 1}
	b := map[string]interface{}{"a": 1, "b": 2}

	keyA, err := Key("incident-1", "FIX_ATTEMPT", 1, a)
	require.NoError(t, err)
	keyB, err := Key("incident-1", "FIX_ATTEMPT", 1, b)
	require.NoError(t, err)

	assert.Equal(t, keyA, keyB)
}

func TestKeyDiffersForDifferentData(t *testing.T) {
	keyA, err := Key("incident-1", "FIX_ATTEMPT", 1, map[string]interface{}{"fix": "disk-cleanup"})
	require.NoError(t, err)
	keyB, err := Key("incident-1", "FIX_ATTEMPT", 1, map[string]interface{}{"fix": "memory-limit"})
	require.NoError(t, err)

	assert.NotEqual(t, keyA, keyB)
}

func TestKeyDiffersForDifferentAttemptOrState(t *testing.T) {
	base, err := Key("incident-1", "FIX_ATTEMPT", 1, map[string]interface{}{"fix": "x"})
	require.NoError(t, err)
	otherAttempt, err := Key("incident-1", "FIX_ATTEMPT", 2, map[string]interface{}{"fix": "x"})
	require.NoError(t, err)
	otherState, err := Key("incident-1", "VERIFY", 1, map[string]interface{}{"fix": "x"})
	require.NoError(t, err)

	assert.NotEqual(t, base, otherAttempt)
	assert.NotEqual(t, base, otherState)
}

func TestExecuteRunsOnceAndMemoizes(t *testing.T) {
	store, err := NewStore(0)
	require.NoError(t, err)

	var calls int32
	fn := func(ctx context.Context) (json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		return json.RawMessage(`{"ok":true}`), nil
	}

	v1, err := store.Execute(context.Background(), "key-1", fn)
	require.NoError(t, err)
	v2, err := store.Execute(context.Background(), "key-1", fn)
	require.NoError(t, err)

	assert.JSONEq(t, string(v1), string(v2))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExecuteCollapsesConcurrentCallers(t *testing.T) {
	store, err := NewStore(0)
	require.NoError(t, err)

	var calls int32
	start := make(chan struct{})
	fn := func(ctx context.Context) (json.RawMessage, error) {
		<-start
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return json.RawMessage(`{"ok":true}`), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, execErr := store.Execute(context.Background(), "shared-key", fn)
			assert.NoError(t, execErr)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExecuteDoesNotMemoizeFailure(t *testing.T) {
	store, err := NewStore(0)
	require.NoError(t, err)

	var calls int32
	fn := func(ctx context.Context) (json.RawMessage, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return nil, assert.AnError
		}
		return json.RawMessage(`{"ok":true}`), nil
	}

	_, err = store.Execute(context.Background(), "key-retry", fn)
	require.Error(t, err)

	v, err := store.Execute(context.Background(), "key-retry", fn)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(v))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLookupReportsMemoizedResult(t *testing.T) {
	store, err := NewStore(0)
	require.NoError(t, err)

	_, ok, err := store.Lookup(context.Background(), "missing-key")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Execute(context.Background(), "present-key", func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})
	require.NoError(t, err)

	v, ok, err := store.Lookup(context.Background(), "present-key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(v))
}

func TestRedisBackedStoreSurvivesCacheEviction(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store, err := NewStore(1, WithRedis(client, time.Hour))
	require.NoError(t, err)

	_, err = store.Execute(context.Background(), "key-a", func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"fix":"a"}`), nil
	})
	require.NoError(t, err)

	// Evict key-a from the bounded in-memory cache by forcing key-b in.
	_, err = store.Execute(context.Background(), "key-b", func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"fix":"b"}`), nil
	})
	require.NoError(t, err)

	var calls int32
	v, err := store.Execute(context.Background(), "key-a", func(ctx context.Context) (json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		return json.RawMessage(`{"fix":"should-not-run"}`), nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fix":"a"}`, string(v))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "result must come from redis, not re-execute")
}
