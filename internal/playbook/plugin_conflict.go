package playbook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

// essentialPlugins never get deactivated automatically; they are
// security- or commerce-critical and a false positive there is worse
// than leaving the real conflict unresolved.
var essentialPlugins = map[string]bool{
	"wordfence": true, "woocommerce": true, "wp-super-cache": true,
}

// PluginConflict is the T3 playbook for a suspected plugin conflict: it
// enumerates active plugins, deactivates every one that is not essential,
// and probes the site. If the probe is healthy it activates the essentials
// and leaves the others deactivated, with a rollback plan that reactivates
// them; otherwise it reactivates everything it deactivated. It does not
// narrow down which single plugin caused the conflict.
type PluginConflict struct {
	Base
	Verify VerificationProbe
}

// VerificationProbe is the narrow slice of ports.VerificationService this
// playbook needs.
type VerificationProbe interface {
	Probe(ctx context.Context, url string) (httpStatus int, err error)
}

func NewPluginConflict(base Base, verify VerificationProbe) *PluginConflict {
	return &PluginConflict{Base: base, Verify: verify}
}

func (p *PluginConflict) Name() string       { return "plugin-conflict" }
func (p *PluginConflict) Tier() Tier         { return TierT3 }
func (p *PluginConflict) Priority() Priority { return PriorityMedium }
func (p *PluginConflict) Description() string {
	return "Deactivates non-essential plugins in order to isolate and resolve a plugin conflict"
}
func (p *PluginConflict) ApplicableConditions() []string {
	return []string{"white screen of death", "fatal error in plugin"}
}

func (p *PluginConflict) CanApply(_ context.Context, _ domain.FixContext, evidence []domain.EvidenceItem) bool {
	return evidenceContains(evidence, "white screen", "fatal error in plugin", "plugin caused")
}

func (p *PluginConflict) GetHypothesis(_ context.Context, fc domain.FixContext, _ []domain.EvidenceItem) string {
	return fmt.Sprintf("a plugin active on site %s is fatally erroring on every request", fc.SiteID)
}

type wpPluginEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (p *PluginConflict) Apply(ctx context.Context, fc domain.FixContext) (domain.FixResult, error) {
	listResult, listEv, err := p.executeCommand(ctx, fc, fmt.Sprintf("wp plugin list --status=active --format=json --path=%s", fc.WPPath))
	evidence := []domain.EvidenceItem{listEv}
	if err != nil {
		return domain.FixResult{Success: false, Error: err.Error(), Evidence: evidence}, nil
	}

	var active []wpPluginEntry
	if jsonErr := json.Unmarshal([]byte(listResult.Stdout), &active); jsonErr != nil {
		return domain.FixResult{Success: false, Error: "could not parse active plugin list: " + jsonErr.Error(), Evidence: evidence}, nil
	}

	var deactivated []string
	for _, plugin := range active {
		if essentialPlugins[plugin.Name] {
			continue
		}
		if _, deactEv, deactErr := p.executeCommand(ctx, fc, fmt.Sprintf("wp plugin deactivate %s --path=%s", plugin.Name, fc.WPPath)); deactErr == nil {
			evidence = append(evidence, deactEv)
			deactivated = append(deactivated, plugin.Name)
		}
	}

	healthy := p.probeHealthy(ctx, fc)

	if !healthy {
		// the conflict wasn't isolated to a non-essential plugin; put
		// everything back and report failure.
		for _, name := range deactivated {
			_, _, _ = p.executeCommand(ctx, fc, fmt.Sprintf("wp plugin activate %s --path=%s", name, fc.WPPath))
		}
		return domain.FixResult{Success: false, Error: "site still unhealthy after deactivating non-essential plugins", Evidence: evidence}, nil
	}

	// selectively reactivate essentials that may have been left off by a
	// prior manual change, and record the surviving deactivation as the
	// applied fix.
	for name := range essentialPlugins {
		_, _, _ = p.executeCommand(ctx, fc, fmt.Sprintf("wp plugin activate %s --path=%s", name, fc.WPPath))
	}

	changes := make([]domain.FixChange, 0, len(deactivated))
	for _, name := range deactivated {
		changes = append(changes, domain.FixChange{
			Tag: domain.ChangeCommand, Description: fmt.Sprintf("deactivated plugin %s", name), Command: "wp plugin deactivate " + name, Timestamp: time.Now(),
		})
	}

	steps := make([]domain.RollbackStep, 0, len(deactivated))
	for i, name := range deactivated {
		steps = append(steps, domain.ExecuteCommandStep(i+1, fmt.Sprintf("wp plugin activate %s --path=%s", name, fc.WPPath)))
	}
	plan := &domain.RollbackPlan{Steps: steps, CreatedAt: time.Now(), Metadata: map[string]string{"deactivated_plugins": strings.Join(deactivated, ",")}}

	return domain.FixResult{Success: true, Applied: len(changes) > 0, Changes: changes, Evidence: evidence, RollbackPlan: plan}, nil
}

func (p *PluginConflict) probeHealthy(ctx context.Context, fc domain.FixContext) bool {
	if p.Verify == nil {
		return true
	}
	status, err := p.Verify.Probe(ctx, "https://"+fc.Domain)
	return err == nil && status >= 200 && status < 400
}

func (p *PluginConflict) Rollback(ctx context.Context, fc domain.FixContext, plan domain.RollbackPlan) error {
	return restoreFileSteps(ctx, fc, p.Base, plan)
}
