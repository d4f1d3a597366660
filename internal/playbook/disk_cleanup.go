package playbook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

// DiskCleanup is the T1 playbook for disk-pressure incidents: it truncates
// (never deletes) /tmp files older than 7 days and /var/log *.log files
// over 100M, and flushes the WordPress object cache. Package manager
// caches are not touched. All changes are destructive-but-
// reversibility-waived — there is no rollback plan because
// nothing here can be un-deleted, but every change is still recorded.
type DiskCleanup struct {
	Base
}

func NewDiskCleanup(base Base) *DiskCleanup { return &DiskCleanup{Base: base} }

func (p *DiskCleanup) Name() string        { return "disk-space-cleanup" }
func (p *DiskCleanup) Tier() Tier          { return TierT1 }
func (p *DiskCleanup) Priority() Priority  { return PriorityHigh }
func (p *DiskCleanup) Description() string { return "Frees disk space by clearing tmp files, caches, and oversized logs" }
func (p *DiskCleanup) ApplicableConditions() []string {
	return []string{"disk usage above threshold", "no space left on device"}
}

func (p *DiskCleanup) CanApply(_ context.Context, _ domain.FixContext, evidence []domain.EvidenceItem) bool {
	return evidenceContains(evidence, "no space left", "disk usage", "disk full", "enospc")
}

func (p *DiskCleanup) GetHypothesis(_ context.Context, fc domain.FixContext, _ []domain.EvidenceItem) string {
	return fmt.Sprintf("site %s is degraded because the host's disk is nearly full", fc.SiteID)
}

func (p *DiskCleanup) Apply(ctx context.Context, fc domain.FixContext) (domain.FixResult, error) {
	var changes []domain.FixChange
	var evidence []domain.EvidenceItem

	// 1. truncate /tmp files older than 7 days.
	result, ev, err := p.executeCommand(ctx, fc, `find /tmp -type f -mtime +7`)
	evidence = append(evidence, ev)
	if err == nil {
		for _, path := range strings.Fields(result.Stdout) {
			if _, delEv, delErr := p.executeCommand(ctx, fc, fmt.Sprintf("cat /dev/null > %s", path)); delErr == nil {
				evidence = append(evidence, delEv)
				changes = append(changes, domain.FixChange{
					Tag: domain.ChangeCommand, Description: "truncated stale tmp file", Path: path, Timestamp: time.Now(),
				})
			}
		}
	}

	// 2. find and truncate oversized logs (size-based, never identity-based deletion).
	result, ev, err = p.executeCommand(ctx, fc, `find /var/log -name *.log -size +100M`)
	evidence = append(evidence, ev)
	if err == nil {
		for _, path := range strings.Fields(result.Stdout) {
			if _, trEv, trErr := p.executeCommand(ctx, fc, fmt.Sprintf("cat /dev/null > %s", path)); trErr == nil {
				evidence = append(evidence, trEv)
				changes = append(changes, domain.FixChange{
					Tag: domain.ChangeCommand, Description: "truncated oversized log", Path: path, Timestamp: time.Now(),
				})
			}
		}
	}

	// 3. clear the WordPress object cache via wp-cli, if present. This is
	// routine housekeeping, not space recovery, so it is recorded as
	// evidence only and never counts toward Applied on its own.
	if _, wpEv, wpErr := p.executeCommand(ctx, fc, fmt.Sprintf("wp cache flush --path=%s", fc.WPPath)); wpErr == nil {
		evidence = append(evidence, wpEv)
	}

	applied := len(changes) > 0
	return domain.FixResult{
		Success:  true,
		Applied:  applied,
		Changes:  changes,
		Evidence: evidence,
		Metadata: map[string]string{"destructive_but_waived": "true"},
	}, nil
}

func (p *DiskCleanup) Rollback(context.Context, domain.FixContext, domain.RollbackPlan) error {
	return nil // no rollback plan is ever attached; cleanup is irreversible by design.
}
