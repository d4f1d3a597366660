package metrics

import "github.com/prometheus/client_golang/prometheus"

// IncidentMetrics tracks incident counts by state and fix-attempt counters.
type IncidentMetrics struct {
	byState     *prometheus.CounterVec
	fixAttempts prometheus.Counter
	escalations prometheus.Counter
}

func newIncidentMetrics(ns string, reg *prometheus.Registry) *IncidentMetrics {
	m := &IncidentMetrics{
		byState: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "incident", Name: "transitions_total",
			Help: "Incident state transitions by target state.",
		}, []string{"state"}),
		fixAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "incident", Name: "fix_attempts_total",
			Help: "Number of FIX_ATTEMPT entries across all incidents.",
		}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "incident", Name: "escalations_total",
			Help: "Number of incidents escalated to a human.",
		}),
	}
	reg.MustRegister(m.byState, m.fixAttempts, m.escalations)
	return m
}

func (m *IncidentMetrics) RecordTransition(state string) { m.byState.WithLabelValues(state).Inc() }
func (m *IncidentMetrics) RecordFixAttempt()              { m.fixAttempts.Inc() }
func (m *IncidentMetrics) RecordEscalation()              { m.escalations.Inc() }

// PlaybookMetrics tracks playbook applications by name/tier/outcome.
type PlaybookMetrics struct {
	applications *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

func newPlaybookMetrics(ns string, reg *prometheus.Registry) *PlaybookMetrics {
	m := &PlaybookMetrics{
		applications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "playbook", Name: "applications_total",
			Help: "Playbook apply() invocations by name, tier and outcome.",
		}, []string{"name", "tier", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "playbook", Name: "apply_duration_seconds",
			Help:    "Duration of playbook apply() calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name"}),
	}
	reg.MustRegister(m.applications, m.duration)
	return m
}

func (m *PlaybookMetrics) RecordApplication(name, tier, outcome string) {
	m.applications.WithLabelValues(name, tier, outcome).Inc()
}

func (m *PlaybookMetrics) RecordDuration(name string, seconds float64) {
	m.duration.WithLabelValues(name).Observe(seconds)
}

// BreakerMetrics tracks circuit breaker state per key.
type BreakerMetrics struct {
	state *prometheus.GaugeVec
	trips *prometheus.CounterVec
}

func newBreakerMetrics(ns string, reg *prometheus.Registry) *BreakerMetrics {
	m := &BreakerMetrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "breaker", Name: "state",
			Help: "Circuit breaker state per key (0=closed,1=half_open,2=open).",
		}, []string{"key"}),
		trips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "breaker", Name: "trips_total",
			Help: "Circuit breaker open transitions per key.",
		}, []string{"key"}),
	}
	reg.MustRegister(m.state, m.trips)
	return m
}

func (m *BreakerMetrics) SetState(key string, v float64) { m.state.WithLabelValues(key).Set(v) }
func (m *BreakerMetrics) RecordTrip(key string)           { m.trips.WithLabelValues(key).Inc() }

// SSHMetrics tracks pool size/active/idle and command durations.
type SSHMetrics struct {
	poolSize   *prometheus.GaugeVec
	poolActive *prometheus.GaugeVec
	cmdDur     prometheus.Histogram
}

func newSSHMetrics(ns string, reg *prometheus.Registry) *SSHMetrics {
	m := &SSHMetrics{
		poolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "ssh_pool", Name: "size",
			Help: "Current pooled connection count per server.",
		}, []string{"server_id"}),
		poolActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "ssh_pool", Name: "active",
			Help: "Currently leased connections per server.",
		}, []string{"server_id"}),
		cmdDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "ssh", Name: "command_duration_seconds",
			Help:    "Duration of executed SSH commands.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.poolSize, m.poolActive, m.cmdDur)
	return m
}

func (m *SSHMetrics) SetPoolSize(serverID string, n float64)   { m.poolSize.WithLabelValues(serverID).Set(n) }
func (m *SSHMetrics) SetPoolActive(serverID string, n float64) { m.poolActive.WithLabelValues(serverID).Set(n) }
func (m *SSHMetrics) RecordCommandDuration(seconds float64)    { m.cmdDur.Observe(seconds) }

// FlappingMetrics tracks per-site flapping rejections.
type FlappingMetrics struct {
	rejections *prometheus.CounterVec
}

func newFlappingMetrics(ns string, reg *prometheus.Registry) *FlappingMetrics {
	m := &FlappingMetrics{
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "flapping", Name: "rejections_total",
			Help: "Incidents refused admission by the flapping controller.",
		}, []string{"site_id"}),
	}
	reg.MustRegister(m.rejections)
	return m
}

func (m *FlappingMetrics) RecordRejection(siteID string) { m.rejections.WithLabelValues(siteID).Inc() }

// IdempotencyMetrics tracks store hit/miss rate.
type IdempotencyMetrics struct {
	hits   prometheus.Counter
	misses prometheus.Counter
}

func newIdempotencyMetrics(ns string, reg *prometheus.Registry) *IdempotencyMetrics {
	m := &IdempotencyMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "idempotency", Name: "hits_total",
			Help: "Idempotency store lookups returning a memoized result.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "idempotency", Name: "misses_total",
			Help: "Idempotency store lookups that executed the job.",
		}),
	}
	reg.MustRegister(m.hits, m.misses)
	return m
}

func (m *IdempotencyMetrics) RecordHit()  { m.hits.Inc() }
func (m *IdempotencyMetrics) RecordMiss() { m.misses.Inc() }
