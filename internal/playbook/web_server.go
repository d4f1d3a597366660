package playbook

import (
	"context"
	"fmt"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

// WebServer is the T1 playbook for a wedged or crashed web server
// process: it restarts the detected service (nginx or apache2) via
// systemctl, which is idempotent by nature — no backup or rollback plan
// is needed for a service restart.
type WebServer struct {
	Base
	ServiceName string // "nginx" or "apache2"; detected if empty.
}

func NewWebServer(base Base, serviceName string) *WebServer {
	return &WebServer{Base: base, ServiceName: serviceName}
}

func (p *WebServer) Name() string        { return "web-server-restart" }
func (p *WebServer) Tier() Tier          { return TierT1 }
func (p *WebServer) Priority() Priority  { return PriorityCritical }
func (p *WebServer) Description() string { return "Restarts a wedged or crashed web server process" }
func (p *WebServer) ApplicableConditions() []string {
	return []string{"connection refused", "502 bad gateway", "503 service unavailable"}
}

func (p *WebServer) CanApply(_ context.Context, _ domain.FixContext, evidence []domain.EvidenceItem) bool {
	return evidenceContains(evidence, "connection refused", "502 bad gateway", "503 service unavailable", "web server")
}

func (p *WebServer) GetHypothesis(_ context.Context, fc domain.FixContext, _ []domain.EvidenceItem) string {
	return fmt.Sprintf("the web server in front of site %s has stopped responding and needs a restart", fc.SiteID)
}

func (p *WebServer) Apply(ctx context.Context, fc domain.FixContext) (domain.FixResult, error) {
	service := p.ServiceName
	if service == "" {
		result, _, err := p.executeCommand(ctx, fc, "systemctl is-active nginx")
		if err == nil && result.ExitCode == 0 {
			service = "nginx"
		} else {
			service = "apache2"
		}
	}

	_, ev, err := p.executeCommand(ctx, fc, fmt.Sprintf("systemctl restart %s", service))
	if err != nil {
		return domain.FixResult{Success: false, Error: err.Error(), Evidence: []domain.EvidenceItem{ev}}, nil
	}

	change := domain.FixChange{
		Tag:         domain.ChangeCommand,
		Description: fmt.Sprintf("restarted %s", service),
		Command:     fmt.Sprintf("systemctl restart %s", service),
		Timestamp:   time.Now(),
	}
	return domain.FixResult{
		Success:  true,
		Applied:  true,
		Changes:  []domain.FixChange{change},
		Evidence: []domain.EvidenceItem{ev},
		Metadata: map[string]string{"service": service},
	}, nil
}

func (p *WebServer) Rollback(context.Context, domain.FixContext, domain.RollbackPlan) error {
	return nil // restarting a service is idempotent; nothing to undo.
}
