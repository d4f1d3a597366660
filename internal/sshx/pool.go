package sshx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/time/rate"

	"github.com/wp-autohealer/engine/internal/errkind"
	"github.com/wp-autohealer/engine/internal/metrics"
)

// PooledConnection is a leased, authenticated SSH session held by the pool
//. The pool owns it; executors hold
// short-lived borrows via Lease.
type PooledConnection struct {
	ConnectionID string
	ServerID     string
	Config       ConnectionConfig
	Client       *ssh.Client
	CreatedAt    time.Time

	mu          sync.Mutex
	isConnected bool
	lastUsed    time.Time
	limiter     *rate.Limiter
	leased      bool
}

// IsConnected reports whether the underlying transport is still usable.
func (c *PooledConnection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

func (c *PooledConnection) touch() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

func (c *PooledConnection) idleFor(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastUsed)
}

func (c *PooledConnection) markDisconnected() {
	c.mu.Lock()
	c.isConnected = false
	c.mu.Unlock()
}

// Lease acquires the connection's exclusive, per-connection slot so that at
// most one command runs on it at a time. Release must be called when the
// command finishes.
func (c *PooledConnection) Lease(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// PoolStats is the snapshot returned by Pool.Stats().
type PoolStats struct {
	Size   int
	Active int
}

// Pool is the bounded, idle-evicting SSH connection pool keyed by
// server-id: a mutex-guarded closed flag, metrics hooks, and a cancellable
// background eviction task awaited on shutdown.
type Pool struct {
	maxSize     int
	maxIdleTime time.Duration
	logger      *slog.Logger
	metrics     *metrics.SSHMetrics

	mu      sync.Mutex
	conns   map[string]*PooledConnection // keyed by connection-id
	byServer map[string][]string          // server-id -> connection-ids
	active  map[string]bool               // connection-id -> currently leased

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewPool constructs a Pool and starts its background eviction task.
func NewPool(maxSize int, maxIdleTime time.Duration, logger *slog.Logger, m *metrics.SSHMetrics) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultPoolMaxSize
	}
	if maxIdleTime <= 0 {
		maxIdleTime = DefaultPoolMaxIdleTime
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		maxSize:     maxSize,
		maxIdleTime: maxIdleTime,
		logger:      logger,
		metrics:     m,
		conns:       make(map[string]*PooledConnection),
		byServer:    make(map[string][]string),
		active:      make(map[string]bool),
		stopCh:      make(chan struct{}),
	}

	p.wg.Add(1)
	go p.evictLoop()

	return p
}

func (p *Pool) evictLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) evictIdle() {
	now := time.Now()
	p.mu.Lock()
	var toClose []*PooledConnection
	for id, conn := range p.conns {
		if p.active[id] {
			continue
		}
		if !conn.IsConnected() || conn.idleFor(now) > p.maxIdleTime {
			toClose = append(toClose, conn)
		}
	}
	p.mu.Unlock()

	for _, conn := range toClose {
		p.Close(conn.ConnectionID)
	}
}

// Add inserts an already-connected PooledConnection into the pool under
// serverID. If the pool is full, unleased connections that are
// disconnected or idle past maxIdleTime are evicted first; if still full,
// admission fails with PoolError.
func (p *Pool) Add(serverID string, conn *PooledConnection) error {
	p.mu.Lock()
	if len(p.conns) >= p.maxSize {
		p.mu.Unlock()
		p.evictIdle()
		p.mu.Lock()
	}
	if len(p.conns) >= p.maxSize {
		active := 0
		for _, leased := range p.active {
			if leased {
				active++
			}
		}
		size := len(p.conns)
		p.mu.Unlock()
		return errkind.PoolError(fmt.Sprintf("pool full: size=%d active=%d", size, active))
	}

	conn.ServerID = serverID
	p.conns[conn.ConnectionID] = conn
	p.byServer[serverID] = append(p.byServer[serverID], conn.ConnectionID)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.SetPoolSize(serverID, float64(len(p.byServer[serverID])))
	}
	return nil
}

// Get returns an idle, connected PooledConnection for serverID if one
// exists, leasing it for the caller. Returns (nil, false) if none is
// available; the caller should then dial a fresh connection and Add it.
func (p *Pool) Get(serverID string) (*PooledConnection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.byServer[serverID] {
		conn, ok := p.conns[id]
		if !ok || p.active[id] {
			continue
		}
		if !conn.IsConnected() {
			continue
		}
		p.active[id] = true
		conn.touch()
		if p.metrics != nil {
			p.metrics.SetPoolActive(serverID, float64(p.countActive(serverID)))
		}
		return conn, true
	}
	return nil, false
}

func (p *Pool) countActive(serverID string) int {
	n := 0
	for _, id := range p.byServer[serverID] {
		if p.active[id] {
			n++
		}
	}
	return n
}

// Release returns a leased connection to the idle pool.
func (p *Pool) Release(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.conns[connID]; ok {
		conn.touch()
	}
	p.active[connID] = false
}

// Close tears down one connection and removes it from the pool. Tolerant of
// errors closing the underlying handle.
func (p *Pool) Close(connID string) {
	p.mu.Lock()
	conn, ok := p.conns[connID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.conns, connID)
	delete(p.active, connID)
	ids := p.byServer[conn.ServerID]
	for i, id := range ids {
		if id == connID {
			p.byServer[conn.ServerID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	serverID := conn.ServerID
	remaining := len(p.byServer[conn.ServerID])
	p.mu.Unlock()

	conn.markDisconnected()
	if conn.Client != nil {
		_ = conn.Client.Close() // tolerant of errors
	}

	if p.metrics != nil {
		p.metrics.SetPoolSize(serverID, float64(remaining))
	}
}

// CloseAll tears down every pooled connection and stops the eviction task.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.Close(id)
	}
}

// Shutdown stops the background eviction task and closes every connection.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
	p.CloseAll()
}

// Stats returns a snapshot of total pooled connections and active leases.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := 0
	for _, leased := range p.active {
		if leased {
			active++
		}
	}
	return PoolStats{Size: len(p.conns), Active: active}
}

// NewPooledConnection wraps an established ssh.Client for insertion into
// the pool.
func NewPooledConnection(cfg ConnectionConfig, client *ssh.Client) *PooledConnection {
	now := time.Now()
	return &PooledConnection{
		ConnectionID: uuid.NewString(),
		Config:       cfg,
		Client:       client,
		CreatedAt:    now,
		isConnected:  true,
		lastUsed:     now,
		limiter:      rate.NewLimiter(rate.Limit(1), 1),
	}
}
