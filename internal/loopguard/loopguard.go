// Package loopguard bounds any per-incident retry/iteration loop: once a
// loop exceeds its iteration, duration, or retry cap it
// refuses to continue, regardless of caller intent.
package loopguard

import (
	"sync"
	"time"
)

// BoundType identifies which cap a loop hit first.
type BoundType string

const (
	BoundIterations BoundType = "iterations"
	BoundDuration   BoundType = "duration"
	BoundRetries    BoundType = "retries"
)

// Config holds the three caps a loop is bounded by.
type Config struct {
	MaxIterations int
	MaxDuration   time.Duration
	MaxRetries    int
}

const (
	DefaultMaxIterations = 1000
	DefaultMaxDuration   = 5 * time.Minute
	DefaultMaxRetries    = 10
)

func DefaultConfig() Config {
	return Config{MaxIterations: DefaultMaxIterations, MaxDuration: DefaultMaxDuration, MaxRetries: DefaultMaxRetries}
}

// Continuation is the result of canContinue.
type Continuation struct {
	CanContinue bool
	BoundType   BoundType // zero value if CanContinue is true
}

type loopState struct {
	startedAt  time.Time
	iterations int
	retries    int
	done       bool
}

// Guard is the registry of bounded loops, keyed by an opaque loop-id
// (typically the incident-id): an externally-driven loop with three
// independent caps that the caller checks between iterations.
type Guard struct {
	cfg Config

	mu    sync.Mutex
	loops map[string]*loopState
}

func NewGuard(cfg Config) *Guard {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Guard{cfg: cfg, loops: make(map[string]*loopState)}
}

func (g *Guard) stateFor(loopID string) *loopState {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.loops[loopID]
	if !ok {
		s = &loopState{startedAt: time.Now()}
		g.loops[loopID] = s
	}
	return s
}

// CanContinue reports whether loopID may take another iteration, and if
// not, which bound it hit first (checked in the order they are checked
// them: iterations, then duration, then retries).
func (g *Guard) CanContinue(loopID string) Continuation {
	s := g.stateFor(loopID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if s.iterations >= g.cfg.MaxIterations {
		return Continuation{CanContinue: false, BoundType: BoundIterations}
	}
	if time.Since(s.startedAt) >= g.cfg.MaxDuration {
		return Continuation{CanContinue: false, BoundType: BoundDuration}
	}
	if s.retries >= g.cfg.MaxRetries {
		return Continuation{CanContinue: false, BoundType: BoundRetries}
	}
	return Continuation{CanContinue: true}
}

// RecordIteration increments loopID's iteration counter.
func (g *Guard) RecordIteration(loopID string) {
	s := g.stateFor(loopID)
	g.mu.Lock()
	s.iterations++
	g.mu.Unlock()
}

// RecordRetry increments loopID's retry counter.
func (g *Guard) RecordRetry(loopID string) {
	s := g.stateFor(loopID)
	g.mu.Lock()
	s.retries++
	g.mu.Unlock()
}

// CompleteLoop tears down loopID's tracked state. ok is accepted for
// callers that want to log/record the final outcome but does not affect
// bookkeeping — a completed loop's counters are simply discarded.
func (g *Guard) CompleteLoop(loopID string, _ bool) {
	g.mu.Lock()
	delete(g.loops, loopID)
	g.mu.Unlock()
}

// Iterations reports loopID's current iteration count, for tests and
// diagnostics.
func (g *Guard) Iterations(loopID string) int {
	s := g.stateFor(loopID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return s.iterations
}

// Retries reports loopID's current retry count.
func (g *Guard) Retries(loopID string) int {
	s := g.stateFor(loopID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return s.retries
}
