package sshx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestConnection(serverID string, connected bool) *PooledConnection {
	c := &PooledConnection{
		ConnectionID: serverID + "-conn",
		ServerID:     serverID,
		CreatedAt:    time.Now(),
		isConnected:  connected,
		lastUsed:     time.Now(),
		limiter:      rate.NewLimiter(rate.Limit(1), 1),
	}
	return c
}

func TestPoolAddAndGetLeasesIdleConnection(t *testing.T) {
	p := NewPool(2, time.Minute, nil, nil)
	defer p.Shutdown()

	conn := newTestConnection("srv-1", true)
	require.NoError(t, p.Add("srv-1", conn))

	got, ok := p.Get("srv-1")
	require.True(t, ok)
	assert.Equal(t, conn.ConnectionID, got.ConnectionID)

	_, ok = p.Get("srv-1")
	assert.False(t, ok, "already-leased connection must not be returned twice")
}

func TestPoolReleaseMakesConnectionAvailableAgain(t *testing.T) {
	p := NewPool(2, time.Minute, nil, nil)
	defer p.Shutdown()

	conn := newTestConnection("srv-1", true)
	require.NoError(t, p.Add("srv-1", conn))

	_, ok := p.Get("srv-1")
	require.True(t, ok)

	p.Release(conn.ConnectionID)

	_, ok = p.Get("srv-1")
	assert.True(t, ok)
}

func TestPoolAddFailsWhenFullOfActiveConnections(t *testing.T) {
	p := NewPool(1, time.Minute, nil, nil)
	defer p.Shutdown()

	conn := newTestConnection("srv-1", true)
	require.NoError(t, p.Add("srv-1", conn))
	_, ok := p.Get("srv-1")
	require.True(t, ok)

	second := newTestConnection("srv-2", true)
	addErr := p.Add("srv-2", second)
	require.Error(t, addErr)
}

func TestPoolEvictIdleRemovesStaleConnections(t *testing.T) {
	p := NewPool(5, time.Millisecond, nil, nil)
	defer p.Shutdown()

	conn := newTestConnection("srv-1", true)
	conn.lastUsed = time.Now().Add(-time.Hour)
	require.NoError(t, p.Add("srv-1", conn))

	p.evictIdle()

	stats := p.Stats()
	assert.Equal(t, 0, stats.Size)
}

func TestPoolEvictIdleSkipsLeasedConnections(t *testing.T) {
	p := NewPool(5, time.Millisecond, nil, nil)
	defer p.Shutdown()

	conn := newTestConnection("srv-1", true)
	conn.lastUsed = time.Now().Add(-time.Hour)
	require.NoError(t, p.Add("srv-1", conn))
	_, ok := p.Get("srv-1")
	require.True(t, ok)

	p.evictIdle()

	stats := p.Stats()
	assert.Equal(t, 1, stats.Size)
}

func TestPoolStatsReflectsLeases(t *testing.T) {
	p := NewPool(3, time.Minute, nil, nil)
	defer p.Shutdown()

	a := newTestConnection("srv-1", true)
	b := newTestConnection("srv-2", true)
	require.NoError(t, p.Add("srv-1", a))
	require.NoError(t, p.Add("srv-2", b))

	_, ok := p.Get("srv-1")
	require.True(t, ok)

	stats := p.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 1, stats.Active)
}

func TestPoolShutdownClosesAllConnections(t *testing.T) {
	p := NewPool(3, time.Minute, nil, nil)
	conn := newTestConnection("srv-1", true)
	require.NoError(t, p.Add("srv-1", conn))

	p.Shutdown()

	assert.False(t, conn.IsConnected())
	assert.Equal(t, 0, p.Stats().Size)
}
