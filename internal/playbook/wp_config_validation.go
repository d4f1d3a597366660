package playbook

import (
	"context"
	"fmt"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

// WPConfigValidation is the T2 playbook for a malformed wp-config.php: it
// checks the file's PHP syntax and, if invalid, asks the backup service to
// restore it from the fixed path <wp-config.php>.autohealer-backup. If no
// backup service is configured or the restore fails it reports failure
// rather than guessing at a fix.
type WPConfigValidation struct {
	Base
}

func NewWPConfigValidation(base Base) *WPConfigValidation { return &WPConfigValidation{Base: base} }

func (p *WPConfigValidation) Name() string       { return "wp-config-validation" }
func (p *WPConfigValidation) Tier() Tier         { return TierT2 }
func (p *WPConfigValidation) Priority() Priority { return PriorityCritical }
func (p *WPConfigValidation) Description() string {
	return "Validates wp-config.php syntax and restores the last known-good backup if invalid"
}
func (p *WPConfigValidation) ApplicableConditions() []string {
	return []string{"parse error in wp-config.php", "syntax error, unexpected"}
}

func (p *WPConfigValidation) CanApply(_ context.Context, _ domain.FixContext, evidence []domain.EvidenceItem) bool {
	return evidenceContains(evidence, "wp-config.php", "syntax error", "parse error")
}

func (p *WPConfigValidation) GetHypothesis(_ context.Context, fc domain.FixContext, _ []domain.EvidenceItem) string {
	return fmt.Sprintf("wp-config.php for site %s has a syntax error that is breaking every request", fc.SiteID)
}

func (p *WPConfigValidation) Apply(ctx context.Context, fc domain.FixContext) (domain.FixResult, error) {
	configPath := fc.WPPath + "/wp-config.php"

	lintResult, lintEv, err := p.executeCommand(ctx, fc, fmt.Sprintf("php -l %s", configPath))
	evidence := []domain.EvidenceItem{lintEv}
	if err == nil && lintResult.ExitCode == 0 {
		return domain.FixResult{Success: true, Applied: false, Evidence: evidence, Metadata: map[string]string{"reason": "wp-config.php syntax is valid"}}, nil
	}

	if p.Backup == nil {
		return domain.FixResult{Success: false, Error: "wp-config.php is invalid and no backup service is configured", Evidence: evidence}, nil
	}

	restoreEv := domain.NewEvidenceItem(domain.EvidenceLog, "restoring last known-good wp-config.php", "", nil, time.Now())
	if p.Evidence != nil {
		_ = p.Evidence.Append(ctx, fc.IncidentID, restoreEv)
	}
	evidence = append(evidence, restoreEv)

	// The backup path is a fixed name, not one returned by createBackup;
	// whether a backup exists there is up to the backup service.
	ok, err := p.Backup.Restore(ctx, configPath+".autohealer-backup", configPath)
	if err != nil || !ok {
		msg := "backup restore reported failure"
		if err != nil {
			msg = err.Error()
		}
		return domain.FixResult{Success: false, Error: msg, Evidence: evidence}, nil
	}

	change := domain.FixChange{Tag: domain.ChangeFile, Description: "restored wp-config.php from last known-good backup", Path: configPath, Timestamp: time.Now()}
	return domain.FixResult{Success: true, Applied: true, Changes: []domain.FixChange{change}, Evidence: evidence}, nil
}

func (p *WPConfigValidation) Rollback(context.Context, domain.FixContext, domain.RollbackPlan) error {
	return nil // restoring a known-good backup has no further rollback.
}
