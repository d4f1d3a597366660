package playbook

import (
	"context"
	"fmt"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

// DBConnection is the T1 playbook for "Error establishing a database
// connection": it restarts the local MySQL/MariaDB service if it is down,
// which — like the web server restart — needs no rollback plan.
type DBConnection struct {
	Base
}

func NewDBConnection(base Base) *DBConnection { return &DBConnection{Base: base} }

func (p *DBConnection) Name() string        { return "db-connection-restart" }
func (p *DBConnection) Tier() Tier          { return TierT1 }
func (p *DBConnection) Priority() Priority  { return PriorityCritical }
func (p *DBConnection) Description() string { return "Restarts a down database service" }
func (p *DBConnection) ApplicableConditions() []string {
	return []string{"error establishing a database connection"}
}

func (p *DBConnection) CanApply(_ context.Context, _ domain.FixContext, evidence []domain.EvidenceItem) bool {
	return evidenceContains(evidence, "error establishing a database connection", "can't connect to mysql")
}

func (p *DBConnection) GetHypothesis(_ context.Context, fc domain.FixContext, _ []domain.EvidenceItem) string {
	return fmt.Sprintf("the database backing site %s is unreachable, most likely because the service has stopped", fc.SiteID)
}

func (p *DBConnection) Apply(ctx context.Context, fc domain.FixContext) (domain.FixResult, error) {
	statusResult, statusEv, err := p.executeCommand(ctx, fc, "systemctl is-active mysql")
	if err == nil && statusResult.ExitCode == 0 {
		return domain.FixResult{
			Success:  true,
			Applied:  false,
			Evidence: []domain.EvidenceItem{statusEv},
			Metadata: map[string]string{"reason": "database service already active"},
		}, nil
	}

	_, restartEv, err := p.executeCommand(ctx, fc, "systemctl restart mysql")
	evidence := []domain.EvidenceItem{statusEv, restartEv}
	if err != nil {
		return domain.FixResult{Success: false, Error: err.Error(), Evidence: evidence}, nil
	}

	change := domain.FixChange{
		Tag: domain.ChangeCommand, Description: "restarted database service", Command: "systemctl restart mysql", Timestamp: time.Now(),
	}
	return domain.FixResult{Success: true, Applied: true, Changes: []domain.FixChange{change}, Evidence: evidence}, nil
}

func (p *DBConnection) Rollback(context.Context, domain.FixContext, domain.RollbackPlan) error {
	return nil
}
