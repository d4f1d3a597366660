package playbook

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

var memoryLimitDefineRe = regexp.MustCompile(`define\(\s*'WP_MEMORY_LIMIT'\s*,\s*'[^']*'\s*\);`)

// MemoryLimit is the T1 playbook for PHP memory exhaustion: it raises
// WP_MEMORY_LIMIT in wp-config.php, backing up the original file so the
// change can be rolled back exactly.
type MemoryLimit struct {
	Base
	RaisedLimit string // e.g. "512M"; defaults to "512M" when empty.
}

func NewMemoryLimit(base Base, raisedLimit string) *MemoryLimit {
	if raisedLimit == "" {
		raisedLimit = "512M"
	}
	return &MemoryLimit{Base: base, RaisedLimit: raisedLimit}
}

func (p *MemoryLimit) Name() string        { return "memory-limit" }
func (p *MemoryLimit) Tier() Tier          { return TierT1 }
func (p *MemoryLimit) Priority() Priority  { return PriorityHigh }
func (p *MemoryLimit) Description() string { return "Raises WP_MEMORY_LIMIT in wp-config.php" }
func (p *MemoryLimit) ApplicableConditions() []string {
	return []string{"allowed memory size exhausted", "fatal error: out of memory"}
}

func (p *MemoryLimit) CanApply(_ context.Context, _ domain.FixContext, evidence []domain.EvidenceItem) bool {
	return evidenceContains(evidence, "allowed memory size", "out of memory", "memory exhausted")
}

func (p *MemoryLimit) GetHypothesis(_ context.Context, fc domain.FixContext, _ []domain.EvidenceItem) string {
	return fmt.Sprintf("site %s is crashing because PHP's memory limit is too low for its workload", fc.SiteID)
}

func (p *MemoryLimit) Apply(ctx context.Context, fc domain.FixContext) (domain.FixResult, error) {
	configPath := fc.WPPath + "/wp-config.php"

	result, ev, err := p.executeCommand(ctx, fc, fmt.Sprintf("cat %s", configPath))
	if err != nil {
		return domain.FixResult{Success: false, Error: err.Error(), Evidence: []domain.EvidenceItem{ev}}, nil
	}
	original := result.Stdout

	newLine := fmt.Sprintf("define('WP_MEMORY_LIMIT', '%s');", p.RaisedLimit)
	var updated string
	if memoryLimitDefineRe.MatchString(original) {
		updated = memoryLimitDefineRe.ReplaceAllString(original, newLine)
	} else {
		updated = newLine + "\n" + original
	}

	change, step, err := p.writeFileWithBackup(ctx, fc, configPath, original, updated, 1)
	if err != nil {
		return domain.FixResult{Success: false, Error: err.Error(), Evidence: []domain.EvidenceItem{ev}}, nil
	}

	plan := &domain.RollbackPlan{Steps: []domain.RollbackStep{step}, CreatedAt: time.Now()}
	return domain.FixResult{
		Success:      true,
		Applied:      true,
		Changes:      []domain.FixChange{change},
		Evidence:     []domain.EvidenceItem{ev},
		RollbackPlan: plan,
		Metadata:     map[string]string{"new_limit": p.RaisedLimit},
	}, nil
}

func (p *MemoryLimit) Rollback(ctx context.Context, fc domain.FixContext, plan domain.RollbackPlan) error {
	return restoreFileSteps(ctx, fc, p.Base, plan)
}
