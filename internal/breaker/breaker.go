// Package breaker implements the per-key circuit breaker registry:
// closed/open/half-open admission control for any keyed resource — a
// server, a site, a playbook target.
package breaker

import (
	"sync"
	"time"

	"github.com/wp-autohealer/engine/internal/metrics"
)

// State is one of the three circuit states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// metricValue mirrors the gauge encoding documented on BreakerMetrics.
func (s State) metricValue() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// Config holds the three tunables every circuit shares.
type Config struct {
	Threshold        int
	RecoveryTimeout  time.Duration
	MonitoringPeriod time.Duration
}

const (
	DefaultThreshold        = 5
	DefaultRecoveryTimeout  = 60 * time.Second
	DefaultMonitoringPeriod = 5 * time.Minute
)

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:        DefaultThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
		MonitoringPeriod: DefaultMonitoringPeriod,
	}
}

// circuit is one key's mutable state: a registry of arbitrary keys, each
// closing again on a single half-open success rather than a success
// threshold.
type circuit struct {
	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailureAt time.Time
}

// Registry is the per-key circuit breaker store.
type Registry struct {
	cfg     Config
	metrics *metrics.BreakerMetrics

	mu       sync.Mutex
	circuits map[string]*circuit
}

// NewRegistry constructs a Registry. A zero Config is replaced with
// DefaultConfig.
func NewRegistry(cfg Config, m *metrics.BreakerMetrics) *Registry {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.MonitoringPeriod <= 0 {
		cfg.MonitoringPeriod = DefaultMonitoringPeriod
	}
	return &Registry{cfg: cfg, metrics: m, circuits: make(map[string]*circuit)}
}

func (r *Registry) circuitFor(key string) *circuit {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.circuits[key]
	if !ok {
		c = &circuit{state: StateClosed}
		r.circuits[key] = c
	}
	return c
}

// CanExecute reports whether key currently admits an attempt. An OPEN
// circuit whose recovery timeout has elapsed transitions to HALF_OPEN as a
// side effect, per the documented state machine.
func (r *Registry) CanExecute(key string) bool {
	c := r.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(c.lastFailureAt) >= r.cfg.RecoveryTimeout {
			c.state = StateHalfOpen
			r.setState(key, StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// OnSuccess records a successful attempt. In HALF_OPEN a single success
// closes the circuit; in CLOSED it resets the decaying failure count.
func (r *Registry) OnSuccess(key string) {
	c := r.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateHalfOpen:
		c.state = StateClosed
		c.failureCount = 0
		r.setState(key, StateClosed)
	case StateClosed:
		c.failureCount = 0
	}
}

// OnFailure records a failed attempt. Failures older than the monitoring
// period have already decayed and do not count toward the threshold. A
// half-open failure reopens the circuit and resets the recovery timer.
func (r *Registry) OnFailure(key string, _ error) {
	c := r.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.lastFailureAt.IsZero() && now.Sub(c.lastFailureAt) > r.cfg.MonitoringPeriod {
		c.failureCount = 0
	}
	c.failureCount++
	c.lastFailureAt = now

	switch c.state {
	case StateClosed:
		if c.failureCount >= r.cfg.Threshold {
			c.state = StateOpen
			r.recordTrip(key)
			r.setState(key, StateOpen)
		}
	case StateHalfOpen:
		c.state = StateOpen
		r.recordTrip(key)
		r.setState(key, StateOpen)
	}
}

// State returns the current state of key without mutating it.
func (r *Registry) State(key string) State {
	c := r.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FailureCount returns the key's current decaying failure count.
func (r *Registry) FailureCount(key string) int {
	c := r.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failureCount
}

// Reset forces key back to CLOSED, used by admin tooling and tests.
func (r *Registry) Reset(key string) {
	c := r.circuitFor(key)
	c.mu.Lock()
	c.state = StateClosed
	c.failureCount = 0
	c.lastFailureAt = time.Time{}
	c.mu.Unlock()
	r.setState(key, StateClosed)
}

func (r *Registry) setState(key string, s State) {
	if r.metrics != nil {
		r.metrics.SetState(key, s.metricValue())
	}
}

func (r *Registry) recordTrip(key string) {
	if r.metrics != nil {
		r.metrics.RecordTrip(key)
	}
}
