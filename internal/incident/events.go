package incident

import (
	"context"
	"sync"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

// EventRecorder appends an IncidentEvent on every state entry. No
// externally-owned capability port is named for this — the event log is
// engine-internal bookkeeping, not a collaborator the core talks to over a
// boundary — so the interface and its reference implementation live here
// rather than in internal/ports.
type EventRecorder interface {
	Record(ctx context.Context, event domain.IncidentEvent) error
	Events(incidentID string) []domain.IncidentEvent
}

// MemoryEventLog is an in-process, per-incident append-only log: a small
// mutex-guarded map standing in for a real persistence layer, sufficient
// for tests and the CLI's serve subcommand. Sequence numbers are
// assigned per-incident and are strictly increasing, giving a total
// ordering within one incident.
type MemoryEventLog struct {
	mu      sync.Mutex
	byID    map[string][]domain.IncidentEvent
	nextSeq map[string]uint64
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{byID: make(map[string][]domain.IncidentEvent), nextSeq: make(map[string]uint64)}
}

func (l *MemoryEventLog) Record(_ context.Context, event domain.IncidentEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSeq[event.IncidentID]++
	event.Sequence = l.nextSeq[event.IncidentID]
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	l.byID[event.IncidentID] = append(l.byID[event.IncidentID], event)
	return nil
}

func (l *MemoryEventLog) Events(incidentID string) []domain.IncidentEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.IncidentEvent, len(l.byID[incidentID]))
	copy(out, l.byID[incidentID])
	return out
}
