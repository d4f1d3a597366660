// Package playbook implements the tier- and priority-ordered catalogue of
// WordPress remediation strategies: the Playbook Registry, per-tier
// executors, the shared base helpers every concrete playbook builds on,
// and the concrete playbooks themselves.
package playbook

import (
	"context"

	"github.com/wp-autohealer/engine/internal/domain"
)

// Tier is one of the six escalating remediation tiers. Lower tiers are
// tried first; the orchestrator stops at the first tier that applies a
// fix.
type Tier string

const (
	TierT1 Tier = "T1"
	TierT2 Tier = "T2"
	TierT3 Tier = "T3"
	TierT4 Tier = "T4"
	TierT5 Tier = "T5"
	TierT6 Tier = "T6"
)

// tierOrder fixes the walk order for the orchestrator; Tier is a string so
// this cannot be derived by comparison.
var tierOrder = []Tier{TierT1, TierT2, TierT3, TierT4, TierT5, TierT6}

func tierIndex(t Tier) int {
	for i, candidate := range tierOrder {
		if candidate == t {
			return i
		}
	}
	return -1
}

// Priority orders playbooks within a tier. Lower values run first, so
// CRITICAL < HIGH < MEDIUM < LOW reads naturally as ascending sort order.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Playbook is a single remediation strategy. Every playbook is
// stateless between calls; FixContext carries whatever per-incident state
// it needs.
type Playbook interface {
	Name() string
	Tier() Tier
	Priority() Priority
	Description() string
	ApplicableConditions() []string

	// CanApply reports whether this playbook's preconditions hold for the
	// given context and evidence gathered so far.
	CanApply(ctx context.Context, fc domain.FixContext, evidence []domain.EvidenceItem) bool

	// GetHypothesis explains, in one sentence, what this playbook believes
	// is wrong and why it thinks applying will help.
	GetHypothesis(ctx context.Context, fc domain.FixContext, evidence []domain.EvidenceItem) string

	Apply(ctx context.Context, fc domain.FixContext) (domain.FixResult, error)
	Rollback(ctx context.Context, fc domain.FixContext, plan domain.RollbackPlan) error
}
