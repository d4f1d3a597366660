package playbook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wp-autohealer/engine/internal/domain"
)

type stubPlaybook struct {
	name     string
	tier     Tier
	priority Priority
	canApply bool
	panics   bool
}

func (s *stubPlaybook) Name() string                  { return s.name }
func (s *stubPlaybook) Tier() Tier                     { return s.tier }
func (s *stubPlaybook) Priority() Priority             { return s.priority }
func (s *stubPlaybook) Description() string            { return "stub" }
func (s *stubPlaybook) ApplicableConditions() []string { return nil }
func (s *stubPlaybook) CanApply(context.Context, domain.FixContext, []domain.EvidenceItem) bool {
	if s.panics {
		panic("boom")
	}
	return s.canApply
}
func (s *stubPlaybook) GetHypothesis(context.Context, domain.FixContext, []domain.EvidenceItem) string {
	return "stub hypothesis"
}
func (s *stubPlaybook) Apply(context.Context, domain.FixContext) (domain.FixResult, error) {
	return domain.FixResult{Success: true, Applied: true, Changes: []domain.FixChange{{Tag: domain.ChangeCommand, Description: "x"}}}, nil
}
func (s *stubPlaybook) Rollback(context.Context, domain.FixContext, domain.RollbackPlan) error {
	return nil
}

func TestRegisterIndexesByNameAndTier(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&stubPlaybook{name: "a", tier: TierT1, priority: PriorityHigh, canApply: true})

	p, ok := r.ByName("a")
	require.True(t, ok)
	assert.Equal(t, "a", p.Name())
	assert.Len(t, r.ForTier(TierT1), 1)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&stubPlaybook{name: "a", tier: TierT1, priority: PriorityHigh})
	r.Register(&stubPlaybook{name: "a", tier: TierT2, priority: PriorityLow})

	p, _ := r.ByName("a")
	assert.Equal(t, TierT1, p.Tier(), "first registration must win")
	assert.Empty(t, r.ForTier(TierT2))
}

func TestForTierOrdersByAscendingPriority(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&stubPlaybook{name: "low", tier: TierT1, priority: PriorityLow})
	r.Register(&stubPlaybook{name: "critical", tier: TierT1, priority: PriorityCritical})
	r.Register(&stubPlaybook{name: "medium", tier: TierT1, priority: PriorityMedium})

	playbooks := r.ForTier(TierT1)
	require.Len(t, playbooks, 3)
	assert.Equal(t, "critical", playbooks[0].Name())
	assert.Equal(t, "medium", playbooks[1].Name())
	assert.Equal(t, "low", playbooks[2].Name())
}

func TestApplicableFiltersByCanApply(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&stubPlaybook{name: "yes", tier: TierT1, priority: PriorityHigh, canApply: true})
	r.Register(&stubPlaybook{name: "no", tier: TierT1, priority: PriorityHigh, canApply: false})

	applicable := r.Applicable(context.Background(), domain.FixContext{}, nil, nil)
	require.Len(t, applicable, 1)
	assert.Equal(t, "yes", applicable[0].Name())
}

func TestApplicableSkipsPanickingCanApply(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&stubPlaybook{name: "panics", tier: TierT1, priority: PriorityHigh, panics: true})

	assert.NotPanics(t, func() {
		applicable := r.Applicable(context.Background(), domain.FixContext{}, nil, nil)
		assert.Empty(t, applicable)
	})
}

func TestApplicableRestrictsToRequestedTier(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&stubPlaybook{name: "t1", tier: TierT1, priority: PriorityHigh, canApply: true})
	r.Register(&stubPlaybook{name: "t2", tier: TierT2, priority: PriorityHigh, canApply: true})

	tier := TierT2
	applicable := r.Applicable(context.Background(), domain.FixContext{}, nil, &tier)
	require.Len(t, applicable, 1)
	assert.Equal(t, "t2", applicable[0].Name())
}
