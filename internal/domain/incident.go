// Package domain holds the core data model shared by every component of the
// remediation engine: incidents, fix contexts, evidence, changes, rollback
// plans, and fix results.
package domain

import "time"

// State is one of the ten named incident states.
type State string

const (
	StateNew           State = "NEW"
	StateDiscovery     State = "DISCOVERY"
	StateBaseline      State = "BASELINE"
	StateBackup        State = "BACKUP"
	StateObservability State = "OBSERVABILITY"
	StateFixAttempt    State = "FIX_ATTEMPT"
	StateVerify        State = "VERIFY"
	StateFixed         State = "FIXED"
	StateRollback      State = "ROLLBACK"
	StateEscalated     State = "ESCALATED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == StateFixed || s == StateEscalated
}

// MaxFixAttempts is the documented default cap; callers normally take this from
// config instead, but it documents the invariant's magnitude.
const MaxFixAttempts = 15

// Incident is the durable record driven through the state machine to a
// terminal outcome. The Job Engine owns its lifecycle.
type Incident struct {
	IncidentID      string `validate:"required"`
	SiteID          string `validate:"required"`
	ServerID        string `validate:"required"`
	CurrentState    State  `validate:"required"`
	FixAttemptCount int
	CreatedAt       time.Time
	CorrelationID   string `validate:"required"`
	TraceID         string `validate:"required"`
	EscalatedAt     *time.Time
	ResolvedAt      *time.Time
}

// FixContext is the immutable envelope passed to every playbook.
type FixContext struct {
	IncidentID    string `validate:"required"`
	SiteID        string `validate:"required"`
	ServerID      string `validate:"required"`
	SitePath      string `validate:"required"`
	WPPath        string `validate:"required"`
	Domain        string `validate:"required"`
	CorrelationID string `validate:"required"`
	TraceID       string `validate:"required"`
	Metadata      map[string]string
}

// IncidentEvent is the append-only, totally-ordered audit record emitted on
// every state entry, independently inspectable by an audit consumer.
type IncidentEvent struct {
	IncidentID    string
	State         State
	Actor         string
	Timestamp     time.Time
	CorrelationID string
	TraceID       string
	Sequence      uint64
}
