package playbook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/metrics"
)

// StepResult is one playbook's outcome within a tier run, annotated with
// the bookkeeping fields required on every result.
type StepResult struct {
	PlaybookName string
	Tier         Tier
	Priority     Priority
	Hypothesis   string
	Result       domain.FixResult
}

// Prerequisite checks whether a tier's preconditions hold before any of
// its playbooks run. A failed prerequisite produces a soft skip with
// evidence rather than a crash.
type Prerequisite func(ctx context.Context, fc domain.FixContext) (ok bool, reason string)

// TierExecutor runs one tier's playbooks in registry order: a simple
// for-range, since tiers are deliberately serial, never concurrent, to
// keep the "one fix at a time" safety property legible. It walks the
// tier's playbooks until one applies and succeeds, then stops.
type TierExecutor struct {
	registry      *Registry
	prerequisites map[Tier]Prerequisite
	metrics       *metrics.PlaybookMetrics
	logger        *slog.Logger
}

func NewTierExecutor(registry *Registry, m *metrics.PlaybookMetrics, logger *slog.Logger) *TierExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TierExecutor{registry: registry, prerequisites: make(map[Tier]Prerequisite), metrics: m, logger: logger}
}

// Registry exposes the underlying catalogue for callers that need
// applicability scans or name lookups (e.g. the incident engine resolving
// which playbook to invoke Rollback on) without duplicating tier-walk logic.
func (e *TierExecutor) Registry() *Registry {
	return e.registry
}

// SetPrerequisite registers tier's precondition check. Tiers without one
// always proceed.
func (e *TierExecutor) SetPrerequisite(t Tier, p Prerequisite) {
	e.prerequisites[t] = p
}

// ExecuteTier walks tier's playbooks in registry order: canApply filters,
// the first applied-and-successful fix stops the loop (the conservative
// one-fix-per-tier rule), and a playbook that panics produces a terminal
// failure result rather than propagating.
func (e *TierExecutor) ExecuteTier(ctx context.Context, fc domain.FixContext, evidence []domain.EvidenceItem, tier Tier) []StepResult {
	var results []StepResult

	if prereq, ok := e.prerequisites[tier]; ok {
		if ready, reason := prereq(ctx, fc); !ready {
			e.logger.Warn("playbook: tier prerequisite not met, skipping tier", "tier", tier, "reason", reason)
			return results
		}
	}

	for _, p := range e.registry.ForTier(tier) {
		if !e.registry.safeCanApply(ctx, p, fc, evidence) {
			continue
		}

		hypothesis := e.safeHypothesis(ctx, p, fc, evidence)
		start := time.Now()
		result := e.safeApply(ctx, p, fc)
		elapsed := time.Since(start)

		if result.Metadata == nil {
			result.Metadata = make(map[string]string)
		}
		result.Metadata["playbook_name"] = p.Name()
		result.Metadata["tier"] = string(tier)
		result.Metadata["priority"] = p.Priority().String()
		result.Metadata["hypothesis"] = hypothesis

		if e.metrics != nil {
			outcome := "not_applied"
			if !result.Success {
				outcome = "failed"
			} else if result.Applied {
				outcome = "applied"
			}
			e.metrics.RecordApplication(p.Name(), string(tier), outcome)
			e.metrics.RecordDuration(p.Name(), elapsed.Seconds())
		}

		results = append(results, StepResult{
			PlaybookName: p.Name(),
			Tier:         tier,
			Priority:     p.Priority(),
			Hypothesis:   hypothesis,
			Result:       result,
		})

		if result.Success && result.Applied {
			break
		}
	}

	return results
}

func (e *TierExecutor) safeHypothesis(ctx context.Context, p Playbook, fc domain.FixContext, evidence []domain.EvidenceItem) (hypothesis string) {
	defer func() {
		if rec := recover(); rec != nil {
			hypothesis = fmt.Sprintf("hypothesis unavailable: %v", rec)
		}
	}()
	return p.GetHypothesis(ctx, fc, evidence)
}

func (e *TierExecutor) safeApply(ctx context.Context, p Playbook, fc domain.FixContext) (result domain.FixResult) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("playbook: apply panicked", "name", p.Name(), "panic", rec)
			result = domain.FixResult{Success: false, Applied: false, Error: fmt.Sprintf("panic: %v", rec)}
		}
	}()
	result, err := p.Apply(ctx, fc)
	if err != nil {
		return domain.FixResult{Success: false, Applied: false, Error: err.Error()}
	}
	return result
}

// Outcome is the orchestrator's summary across every tier it walked.
type Outcome struct {
	Success            bool
	TierExecuted       Tier
	TotalFixesApplied  int
	Results            []StepResult
}

// ExecuteWordPressFixes walks T1..maxTier in order, stopping at the first
// tier that applies at least one fix (the global conservative cutoff),
//.
func (e *TierExecutor) ExecuteWordPressFixes(ctx context.Context, fc domain.FixContext, evidence []domain.EvidenceItem, maxTier Tier) Outcome {
	maxIdx := tierIndex(maxTier)
	if maxIdx < 0 {
		maxIdx = len(tierOrder) - 1
	}

	var allResults []StepResult
	for _, tier := range tierOrder[:maxIdx+1] {
		tierResults := e.ExecuteTier(ctx, fc, evidence, tier)
		allResults = append(allResults, tierResults...)

		applied := 0
		for _, r := range tierResults {
			if r.Result.Success && r.Result.Applied {
				applied++
			}
		}
		if applied > 0 {
			return Outcome{Success: true, TierExecuted: tier, TotalFixesApplied: applied, Results: allResults}
		}
	}

	return Outcome{Success: false, Results: allResults}
}
