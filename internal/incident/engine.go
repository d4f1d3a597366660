package incident

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wp-autohealer/engine/internal/breaker"
	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/flapping"
	"github.com/wp-autohealer/engine/internal/idempotency"
	"github.com/wp-autohealer/engine/internal/loopguard"
	"github.com/wp-autohealer/engine/internal/metrics"
	"github.com/wp-autohealer/engine/internal/playbook"
	"github.com/wp-autohealer/engine/internal/ports"
	"github.com/wp-autohealer/engine/internal/sshx"
	"github.com/wp-autohealer/engine/pkg/logger"
)

// Engine drives a single incident through the state machine: one struct
// holding every collaborator a unit of work needs. An incident's state
// machine is strictly sequential; only cross-incident work is concurrent,
// and that concurrency lives in Dispatcher, not here.
type Engine struct {
	Directory   ports.ServerDirectory
	Evidence    ports.EvidenceSink
	Backup      ports.BackupService
	Verify      ports.VerificationService
	Escalation  ports.EscalationSink
	SSH         *sshx.Executor
	Breaker     *breaker.Registry
	Flapping    *flapping.Controller
	LoopGuard   *loopguard.Guard
	Idempotency *idempotency.Store
	Playbooks   *playbook.TierExecutor
	Events      EventRecorder
	Metrics     *metrics.IncidentMetrics
	Logger      *slog.Logger
	Config      Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.MaxFixAttempts <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{Config: cfg, Events: NewMemoryEventLog(), Logger: slog.Default()}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// loggerFor returns e.logger() enriched with the correlation, incident, and
// trace IDs carried in ctx, so every log line in a run identifies itself
// without each call site repeating those fields by hand.
func (e *Engine) loggerFor(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, e.logger())
}

// run carries the transient, per-incident-attempt state threaded between
// state handlers. It is never persisted; only domain.Incident's fields
// survive a crash-restart, matched by resuming Run from CurrentState.
type run struct {
	incident domain.Incident
	fc       domain.FixContext
	evidence []domain.EvidenceItem
	outcome  playbook.Outcome
}

func (e *Engine) breakerKey(r *run) string {
	return fmt.Sprintf("%s:%s", r.incident.SiteID, r.incident.ServerID)
}

// Run drives inc from its CurrentState to a terminal state, resuming
// mid-flight if CurrentState is not NEW. It returns the incident's final
// recorded state.
func (e *Engine) Run(ctx context.Context, inc domain.Incident, fc domain.FixContext) (domain.Incident, error) {
	if inc.CurrentState == "" {
		inc.CurrentState = domain.StateNew
	}
	r := &run{incident: inc, fc: fc}

	ctx = logger.WithIncidentID(ctx, inc.IncidentID)
	ctx = logger.WithCorrelationID(ctx, inc.CorrelationID)
	ctx = logger.WithTraceID(ctx, inc.TraceID)

	for !r.incident.CurrentState.Terminal() {
		if err := ctx.Err(); err != nil {
			return r.incident, err
		}

		next, handlerErr := e.step(ctx, r)
		if handlerErr != nil {
			e.loggerFor(ctx).Error("incident: state handler failed, escalating", "state", r.incident.CurrentState, "error", handlerErr)
			next = domain.StateEscalated
		}

		if err := e.transition(ctx, r, next); err != nil {
			return r.incident, err
		}
	}

	return r.incident, nil
}

// step executes the current state's work and returns the state to
// transition to next. It never mutates r.incident.CurrentState itself;
// transition() is the single place that does, so every entry is logged
// exactly once.
func (e *Engine) step(ctx context.Context, r *run) (domain.State, error) {
	switch r.incident.CurrentState {
	case domain.StateNew:
		return domain.StateDiscovery, nil
	case domain.StateDiscovery:
		return e.handleDiscovery(ctx, r)
	case domain.StateBaseline:
		return e.handleBaseline(ctx, r)
	case domain.StateBackup:
		return e.handleBackup(ctx, r)
	case domain.StateObservability:
		return e.handleObservability(ctx, r)
	case domain.StateFixAttempt:
		return e.handleFixAttempt(ctx, r)
	case domain.StateVerify:
		return e.handleVerify(ctx, r)
	case domain.StateRollback:
		return e.handleRollback(ctx, r)
	default:
		return domain.StateEscalated, fmt.Errorf("incident: no handler for state %s", r.incident.CurrentState)
	}
}

// transition validates the move, stamps the incident's new state, and
// records the append-only audit event before any further work happens.
func (e *Engine) transition(ctx context.Context, r *run, to domain.State) error {
	from := r.incident.CurrentState
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	r.incident.CurrentState = to

	if e.Metrics != nil {
		e.Metrics.RecordTransition(string(to))
	}
	if to == domain.StateEscalated {
		now := time.Now()
		r.incident.EscalatedAt = &now
		if e.Metrics != nil {
			e.Metrics.RecordEscalation()
		}
		if e.Escalation != nil {
			reason := fmt.Sprintf("incident %s escalated from %s", r.incident.IncidentID, from)
			if err := e.Escalation.Escalate(ctx, r.incident.IncidentID, reason, r.evidence); err != nil {
				e.loggerFor(ctx).Error("incident: escalation sink failed", "error", err)
			}
		}
	}
	if to == domain.StateFixed {
		now := time.Now()
		r.incident.ResolvedAt = &now
	}

	if e.Events != nil {
		_ = e.Events.Record(ctx, domain.IncidentEvent{
			IncidentID:    r.incident.IncidentID,
			State:         to,
			Actor:         "engine",
			CorrelationID: r.incident.CorrelationID,
			TraceID:       r.incident.TraceID,
		})
	}
	return nil
}
