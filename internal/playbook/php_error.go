package playbook

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

var wpDebugDefineRe = regexp.MustCompile(`define\(\s*'WP_DEBUG'\s*,\s*(true|false)\s*\);`)

// PHPError is the T1 playbook for fatal PHP errors surfaced in the site's
// error log: it sets WP_DEBUG to true and, when WP_DEBUG_LOG is not yet
// defined, adds WP_DEBUG_LOG true and WP_DEBUG_DISPLAY false, so future
// fatals go to a log file rather than to visitors. The current error log
// is not read; the only evidence item is the wp-config.php read.
type PHPError struct {
	Base
}

func NewPHPError(base Base) *PHPError { return &PHPError{Base: base} }

func (p *PHPError) Name() string        { return "php-error" }
func (p *PHPError) Tier() Tier          { return TierT1 }
func (p *PHPError) Priority() Priority  { return PriorityMedium }
func (p *PHPError) Description() string { return "Enables PHP error logging without surfacing errors to visitors" }
func (p *PHPError) ApplicableConditions() []string {
	return []string{"php fatal error", "parse error", "uncaught exception"}
}

func (p *PHPError) CanApply(_ context.Context, _ domain.FixContext, evidence []domain.EvidenceItem) bool {
	return evidenceContains(evidence, "fatal error", "parse error", "uncaught exception")
}

func (p *PHPError) GetHypothesis(_ context.Context, fc domain.FixContext, _ []domain.EvidenceItem) string {
	return fmt.Sprintf("site %s is throwing uncaught PHP errors that are not currently being logged", fc.SiteID)
}

func (p *PHPError) Apply(ctx context.Context, fc domain.FixContext) (domain.FixResult, error) {
	configPath := fc.WPPath + "/wp-config.php"

	result, ev, err := p.executeCommand(ctx, fc, fmt.Sprintf("cat %s", configPath))
	if err != nil {
		return domain.FixResult{Success: false, Error: err.Error(), Evidence: []domain.EvidenceItem{ev}}, nil
	}
	original := result.Stdout

	updated := original
	if wpDebugDefineRe.MatchString(updated) {
		updated = wpDebugDefineRe.ReplaceAllString(updated, "define('WP_DEBUG', true);")
	} else {
		updated = "define('WP_DEBUG', true);\n" + updated
	}
	if !regexp.MustCompile(`WP_DEBUG_LOG`).MatchString(updated) {
		updated = "define('WP_DEBUG_LOG', true);\ndefine('WP_DEBUG_DISPLAY', false);\n" + updated
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
	}, nil
}

func (p *PHPError) Rollback(ctx context.Context, fc domain.FixContext, plan domain.RollbackPlan) error {
	return restoreFileSteps(ctx, fc, p.Base, plan)
}
