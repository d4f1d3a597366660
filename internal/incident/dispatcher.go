package incident

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/ports"
)

// DispatcherConfig holds the worker pool's tunables.
type DispatcherConfig struct {
	MaxConcurrent int
}

// DefaultDispatcherConfig is five concurrent workers.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{MaxConcurrent: 5}
}

// Dispatcher fans an IncidentSource's stream out across many concurrently
// running Engine.Run calls: a semaphore-bounded "pull one unit of work,
// acquire a slot, spawn a goroutine" loop, safe here because incidents are
// independent of one another — unlike TierExecutor, which walks one
// incident's playbooks strictly sequentially because they are not safe to
// run concurrently.
type Dispatcher struct {
	source    ports.IncidentSource
	engine    *Engine
	semaphore chan struct{}
	logger    *slog.Logger

	wg sync.WaitGroup
}

func NewDispatcher(source ports.IncidentSource, engine *Engine, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg = DefaultDispatcherConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		source:    source,
		engine:    engine,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
		logger:    logger,
	}
}

// Serve pulls incidents from the source until ctx is cancelled, running up
// to MaxConcurrent of them through the engine at once. It blocks until every
// in-flight incident has returned from Run, so a cancelled ctx still lets
// an in-progress ROLLBACK finish rather than abandoning it mid-flight.
func (d *Dispatcher) Serve(ctx context.Context) error {
	for {
		created, err := d.source.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			d.logger.Error("dispatcher: incident source failed", "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		select {
		case d.semaphore <- struct{}{}:
		case <-ctx.Done():
			d.wg.Wait()
			return ctx.Err()
		}

		d.wg.Add(1)
		go func(created ports.IncidentCreated) {
			defer d.wg.Done()
			defer func() { <-d.semaphore }()
			d.run(created)
		}(created)
	}

	d.wg.Wait()
	return ctx.Err()
}

func (d *Dispatcher) run(created ports.IncidentCreated) {
	inc := domain.Incident{
		IncidentID:    created.IncidentID,
		SiteID:        created.SiteID,
		ServerID:      created.ServerID,
		CurrentState:  domain.StateNew,
		CreatedAt:     time.Now(),
		CorrelationID: created.CorrelationID,
		TraceID:       created.TraceID,
	}
	fc := domain.FixContext{
		IncidentID:    created.IncidentID,
		SiteID:        created.SiteID,
		ServerID:      created.ServerID,
		SitePath:      created.SitePath,
		WPPath:        created.WPPath,
		Domain:        created.Domain,
		CorrelationID: created.CorrelationID,
		TraceID:       created.TraceID,
		Metadata:      created.Metadata,
	}

	if _, err := d.engine.Run(context.Background(), inc, fc); err != nil {
		d.logger.Error("dispatcher: incident run failed", "incident_id", created.IncidentID, "error", err)
	}
}
