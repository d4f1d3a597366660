package playbook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

// CoreIntegrity is the T2 playbook for corrupted WordPress core files: it
// runs wp-cli's core verify-checksums, and if any file is reported as
// modified, archives wp-admin and wp-includes to a tarball under /tmp and
// then re-downloads the whole of core once with wp core download --force.
type CoreIntegrity struct {
	Base
}

func NewCoreIntegrity(base Base) *CoreIntegrity { return &CoreIntegrity{Base: base} }

func (p *CoreIntegrity) Name() string       { return "core-integrity" }
func (p *CoreIntegrity) Tier() Tier         { return TierT2 }
func (p *CoreIntegrity) Priority() Priority { return PriorityHigh }
func (p *CoreIntegrity) Description() string {
	return "Re-derives known-good WordPress core files that fail a checksum verification"
}
func (p *CoreIntegrity) ApplicableConditions() []string {
	return []string{"core checksum mismatch", "unexpected core file modification"}
}

func (p *CoreIntegrity) CanApply(_ context.Context, _ domain.FixContext, evidence []domain.EvidenceItem) bool {
	return evidenceContains(evidence, "checksum", "core file", "tampered", "modified core")
}

func (p *CoreIntegrity) GetHypothesis(_ context.Context, fc domain.FixContext, _ []domain.EvidenceItem) string {
	return fmt.Sprintf("one or more WordPress core files for site %s have been modified outside of an update", fc.SiteID)
}

func (p *CoreIntegrity) Apply(ctx context.Context, fc domain.FixContext) (domain.FixResult, error) {
	checkResult, checkEv, err := p.executeCommand(ctx, fc, fmt.Sprintf("wp core verify-checksums --path=%s", fc.WPPath))
	evidence := []domain.EvidenceItem{checkEv}
	if err == nil && checkResult.ExitCode == 0 {
		return domain.FixResult{Success: true, Applied: false, Evidence: evidence, Metadata: map[string]string{"reason": "checksums already valid"}}, nil
	}

	mismatched := strings.Count(checkResult.Stdout+checkResult.Stderr, "File doesn't verify against checksum")
	if mismatched == 0 {
		return domain.FixResult{Success: true, Applied: false, Evidence: evidence, Metadata: map[string]string{"reason": "no mismatched files reported"}}, nil
	}

	_, backupEv, err := p.executeCommand(ctx, fc, fmt.Sprintf("tar czf /tmp/wp-core-backup-%d.tar.gz -C %s wp-admin wp-includes", time.Now().Unix(), fc.WPPath))
	evidence = append(evidence, backupEv)
	if err != nil {
		return domain.FixResult{Success: false, Error: err.Error(), Evidence: evidence}, nil
	}

	_, forceEv, err := p.executeCommand(ctx, fc, fmt.Sprintf("wp core download --force --path=%s", fc.WPPath))
	evidence = append(evidence, forceEv)
	if err != nil {
		return domain.FixResult{Success: false, Error: err.Error(), Evidence: evidence}, nil
	}

	change := domain.FixChange{
		Tag: domain.ChangeFile, Description: fmt.Sprintf("re-derived %d mismatched core files", mismatched), Timestamp: time.Now(),
	}
	return domain.FixResult{
		Success: true, Applied: true, Changes: []domain.FixChange{change}, Evidence: evidence,
		Metadata: map[string]string{"note": "core re-download is idempotent; no rollback plan needed"},
	}, nil
}

func (p *CoreIntegrity) Rollback(context.Context, domain.FixContext, domain.RollbackPlan) error {
	return nil
}
