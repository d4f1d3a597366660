package playbook

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/errkind"
	"github.com/wp-autohealer/engine/internal/metrics"
	"github.com/wp-autohealer/engine/internal/ports"
	"github.com/wp-autohealer/engine/internal/redact"
	"github.com/wp-autohealer/engine/internal/sshx"
)

// CommandExecutor is the subset of *sshx.Executor every playbook needs.
// Declaring it locally (rather than importing the concrete type into the
// interface) keeps the playbook package testable with a fake.
type CommandExecutor interface {
	ExecuteCommand(ctx context.Context, connID, cmd string, opts sshx.CommandOptions) (sshx.CommandResult, error)
	ExecuteTemplatedCommand(ctx context.Context, connID, template string, params map[string]string, opts sshx.CommandOptions) (sshx.CommandResult, error)
	UploadFile(ctx context.Context, connID, local, remote string) (sshx.TransferResult, error)
	DownloadFile(ctx context.Context, connID, remote, local string) (sshx.TransferResult, error)
}

var _ CommandExecutor = (*sshx.Executor)(nil)

// Base is embedded by every concrete playbook. It carries the
// collaborators a playbook needs (SSH executor, backup service, evidence
// sink) and the shared helper methods every concrete playbook needs: one
// small struct wrapping a client, metrics, and a logger, the same shape a
// single-purpose publisher takes around its own client.
type Base struct {
	ConnID   string
	Executor CommandExecutor
	Backup   ports.BackupService
	Evidence ports.EvidenceSink
	Metrics  *metrics.PlaybookMetrics
	Logger   *slog.Logger
}

func (b Base) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// executeCommand runs cmd over the playbook's connection, redacts the
// command and its output, appends a command-output evidence item, and
// returns both the raw result and the evidence item recorded.
func (b Base) executeCommand(ctx context.Context, fc domain.FixContext, cmd string) (sshx.CommandResult, domain.EvidenceItem, error) {
	result, err := b.Executor.ExecuteCommand(ctx, b.ConnID, cmd, sshx.CommandOptions{})

	content := result.Stdout + result.Stderr
	evidence := domain.NewEvidenceItem(
		domain.EvidenceCommandOutput,
		fmt.Sprintf("executed: %s", redact.Command(cmd)),
		redact.Text(content),
		map[string]string{"exit_code": fmt.Sprintf("%d", result.ExitCode)},
		time.Now(),
	)
	if b.Evidence != nil {
		if appendErr := b.Evidence.Append(ctx, fc.IncidentID, evidence); appendErr != nil {
			b.logger().Warn("playbook: evidence append failed", "incident_id", fc.IncidentID, "error", appendErr)
		}
	}
	return result, evidence, err
}

// createBackup delegates to the Backup Service, failing with a
// KindPlaybook error if none is configured — every non-idempotent file
// mutation must go through a backup first.
func (b Base) createBackup(ctx context.Context, fc domain.FixContext, path string) (string, error) {
	if b.Backup == nil {
		return "", errkind.PlaybookError("no backup service configured")
	}
	return b.Backup.CreateFileBackup(ctx, fc.IncidentID, fc.ServerID, path, nil)
}

// writeFileWithBackup backs up path, uploads newContent in its place, and
// returns the FixChange plus the restore-file rollback step that undoes
// it. order is the rollback step's position; callers composing multiple
// steps into one RollbackPlan must assign descending orders themselves.
func (b Base) writeFileWithBackup(ctx context.Context, fc domain.FixContext, path, original, newContent string, order int) (domain.FixChange, domain.RollbackStep, error) {
	backupPath, err := b.createBackup(ctx, fc, path)
	if err != nil {
		return domain.FixChange{}, domain.RollbackStep{}, err
	}

	tmp, err := os.CreateTemp("", "autohealer-playbook-*")
	if err != nil {
		return domain.FixChange{}, domain.RollbackStep{}, errkind.PlaybookError("create staging file: " + err.Error())
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(newContent); err != nil {
		tmp.Close()
		return domain.FixChange{}, domain.RollbackStep{}, errkind.PlaybookError("stage content: " + err.Error())
	}
	tmp.Close()

	if _, err := b.Executor.UploadFile(ctx, b.ConnID, tmp.Name(), path); err != nil {
		return domain.FixChange{}, domain.RollbackStep{}, err
	}

	change := domain.FixChange{
		Tag:           domain.ChangeFile,
		Description:   fmt.Sprintf("wrote %s", path),
		Path:          path,
		OriginalValue: original,
		NewValue:      newContent,
		Checksum:      b.generateSignature(newContent),
		Timestamp:     time.Now(),
	}
	step := domain.RestoreFileStep(order, path, backupPath)
	return change, step, nil
}

// generateSignature derives the documented 32-char content signature.
func (b Base) generateSignature(content string) string {
	return domain.GenerateSignature(content)
}

// restoreFileStep, executeCommandStep, and revertConfigStep are thin
// forwarders to the domain constructors, named so concrete
// playbooks read naturally as "base.restoreFileStep(...)" rather than
// reaching past the base into a different package.
func (b Base) restoreFileStep(order int, path, backupPath string) domain.RollbackStep {
	return domain.RestoreFileStep(order, path, backupPath)
}

func (b Base) executeCommandStep(order int, command string) domain.RollbackStep {
	return domain.ExecuteCommandStep(order, command)
}

func (b Base) revertConfigStep(order int, path, originalValue string) domain.RollbackStep {
	return domain.RevertConfigStep(order, path, originalValue)
}

// recordApplication reports the outcome of an Apply call to Prometheus.
// No playbook calls it; TierExecutor.ExecuteTier records the same
// application and duration metrics itself.
func (b Base) recordApplication(name string, tier Tier, result domain.FixResult, elapsed time.Duration) {
	if b.Metrics == nil {
		return
	}
	outcome := "skipped"
	switch {
	case result.Success && result.Applied:
		outcome = "applied"
	case !result.Success:
		outcome = "failed"
	case result.Success && !result.Applied:
		outcome = "not_applied"
	}
	b.Metrics.RecordApplication(name, string(tier), outcome)
	b.Metrics.RecordDuration(name, elapsed.Seconds())
}
