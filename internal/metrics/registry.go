// Package metrics exposes Prometheus collectors for every core subsystem.
// The core only registers collectors; the actual /metrics HTTP exposition
// is external scope.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry lazily builds and caches one metrics struct per subsystem under
// a shared namespace.
type Registry struct {
	namespace string
	reg       *prometheus.Registry

	incidentsOnce sync.Once
	incidents     *IncidentMetrics

	playbooksOnce sync.Once
	playbooks     *PlaybookMetrics

	breakerOnce sync.Once
	breaker     *BreakerMetrics

	sshOnce sync.Once
	ssh     *SSHMetrics

	flapOnce sync.Once
	flap     *FlappingMetrics

	idemOnce sync.Once
	idem     *IdempotencyMetrics
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// DefaultRegistry returns the process-wide metrics registry, built once.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry("wp_autohealer", prometheus.NewRegistry())
	})
	return defaultReg
}

func NewRegistry(namespace string, reg *prometheus.Registry) *Registry {
	return &Registry{namespace: namespace, reg: reg}
}

// Prometheus exposes the underlying registry so a caller outside this
// core's scope can wire it to an HTTP exposition handler.
func (r *Registry) Prometheus() *prometheus.Registry { return r.reg }

func (r *Registry) Incidents() *IncidentMetrics {
	r.incidentsOnce.Do(func() {
		r.incidents = newIncidentMetrics(r.namespace, r.reg)
	})
	return r.incidents
}

func (r *Registry) Playbooks() *PlaybookMetrics {
	r.playbooksOnce.Do(func() {
		r.playbooks = newPlaybookMetrics(r.namespace, r.reg)
	})
	return r.playbooks
}

func (r *Registry) Breaker() *BreakerMetrics {
	r.breakerOnce.Do(func() {
		r.breaker = newBreakerMetrics(r.namespace, r.reg)
	})
	return r.breaker
}

func (r *Registry) SSH() *SSHMetrics {
	r.sshOnce.Do(func() {
		r.ssh = newSSHMetrics(r.namespace, r.reg)
	})
	return r.ssh
}

func (r *Registry) Flapping() *FlappingMetrics {
	r.flapOnce.Do(func() {
		r.flap = newFlappingMetrics(r.namespace, r.reg)
	})
	return r.flap
}

func (r *Registry) Idempotency() *IdempotencyMetrics {
	r.idemOnce.Do(func() {
		r.idem = newIdempotencyMetrics(r.namespace, r.reg)
	})
	return r.idem
}
