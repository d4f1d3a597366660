package playbook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

// defaultThemeCandidates are tried in order when switching away from a
// broken theme; the first one wp-cli reports as installed wins.
var defaultThemeCandidates = []string{"twentytwentyfour", "twentytwentythree", "twentytwentytwo"}

// ThemeSwitch is the T3 playbook for a theme-level fatal error: it
// switches to the most recent default theme, probes the site, and if the
// probe still fails, tries the next candidate before giving up.
type ThemeSwitch struct {
	Base
	Verify VerificationProbe
}

func NewThemeSwitch(base Base, verify VerificationProbe) *ThemeSwitch {
	return &ThemeSwitch{Base: base, Verify: verify}
}

func (p *ThemeSwitch) Name() string       { return "theme-switch" }
func (p *ThemeSwitch) Tier() Tier         { return TierT3 }
func (p *ThemeSwitch) Priority() Priority { return PriorityMedium }
func (p *ThemeSwitch) Description() string {
	return "Switches to a default theme when the active theme is fatally erroring"
}
func (p *ThemeSwitch) ApplicableConditions() []string {
	return []string{"fatal error in theme", "theme caused the white screen"}
}

func (p *ThemeSwitch) CanApply(_ context.Context, _ domain.FixContext, evidence []domain.EvidenceItem) bool {
	return evidenceContains(evidence, "fatal error in theme", "theme caused", "functions.php")
}

func (p *ThemeSwitch) GetHypothesis(_ context.Context, fc domain.FixContext, _ []domain.EvidenceItem) string {
	return fmt.Sprintf("the active theme on site %s is fatally erroring on every request", fc.SiteID)
}

func (p *ThemeSwitch) Apply(ctx context.Context, fc domain.FixContext) (domain.FixResult, error) {
	currentResult, currentEv, err := p.executeCommand(ctx, fc, fmt.Sprintf("wp theme list --status=active --field=name --path=%s", fc.WPPath))
	evidence := []domain.EvidenceItem{currentEv}
	if err != nil {
		return domain.FixResult{Success: false, Error: err.Error(), Evidence: evidence}, nil
	}
	original := strings.TrimSpace(currentResult.Stdout)

	for _, candidate := range defaultThemeCandidates {
		if candidate == original {
			continue
		}
		_, switchEv, switchErr := p.executeCommand(ctx, fc, fmt.Sprintf("wp theme activate %s --path=%s", candidate, fc.WPPath))
		evidence = append(evidence, switchEv)
		if switchErr != nil {
			continue
		}

		if p.probeHealthy(ctx, fc) {
			change := domain.FixChange{
				Tag: domain.ChangeCommand, Description: fmt.Sprintf("switched theme from %s to %s", original, candidate),
				OriginalValue: original, NewValue: candidate, Timestamp: time.Now(),
			}
			step := domain.ExecuteCommandStep(1, fmt.Sprintf("wp theme activate %s --path=%s", original, fc.WPPath))
			plan := &domain.RollbackPlan{Steps: []domain.RollbackStep{step}, CreatedAt: time.Now()}
			return domain.FixResult{Success: true, Applied: true, Changes: []domain.FixChange{change}, Evidence: evidence, RollbackPlan: plan}, nil
		}
	}

	// none of the candidates resolved the probe; restore the original theme.
	_, restoreEv, _ := p.executeCommand(ctx, fc, fmt.Sprintf("wp theme activate %s --path=%s", original, fc.WPPath))
	evidence = append(evidence, restoreEv)
	return domain.FixResult{Success: false, Error: "no default theme resolved the site's health probe", Evidence: evidence}, nil
}

func (p *ThemeSwitch) probeHealthy(ctx context.Context, fc domain.FixContext) bool {
	if p.Verify == nil {
		return true
	}
	status, err := p.Verify.Probe(ctx, "https://"+fc.Domain)
	return err == nil && status >= 200 && status < 400
}

func (p *ThemeSwitch) Rollback(ctx context.Context, fc domain.FixContext, plan domain.RollbackPlan) error {
	return restoreFileSteps(ctx, fc, p.Base, plan)
}
