package playbook

import (
	"context"
	"fmt"
	"os"

	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/errkind"
)

// restoreFileSteps executes plan's steps in descending order,
// dispatching on RollbackStepKind. Shared by every playbook whose only
// non-idempotent effect is a file write, so each concrete playbook's
// Rollback is a one-line forwarder.
func restoreFileSteps(ctx context.Context, fc domain.FixContext, base Base, plan domain.RollbackPlan) error {
	for _, step := range plan.StepsDescending() {
		switch step.Kind {
		case domain.RollbackRestoreFile:
			path := step.Params["path"]
			backupPath := step.Params["backup_path"]
			if base.Backup == nil {
				return errkind.PlaybookError("no backup service configured")
			}
			ok, err := base.Backup.Restore(ctx, backupPath, path)
			if err != nil {
				return err
			}
			if !ok {
				return errkind.PlaybookError(fmt.Sprintf("restore of %s reported failure", path))
			}
		case domain.RollbackExecuteCommand:
			if _, _, err := base.executeCommand(ctx, fc, step.Params["command"]); err != nil {
				return err
			}
		case domain.RollbackRevertConfig:
			path := step.Params["path"]
			original := step.Params["original_value"]
			if err := writeFileDirect(ctx, base, path, original); err != nil {
				return err
			}
		default:
			return errkind.PlaybookError("unknown rollback step kind: " + string(step.Kind))
		}
	}
	return nil
}

// writeFileDirect uploads content to path without taking a fresh backup —
// used only when reverting to a value already captured by an earlier
// rollback step.
func writeFileDirect(ctx context.Context, base Base, path, content string) error {
	tmp, err := os.CreateTemp("", "autohealer-revert-*")
	if err != nil {
		return errkind.PlaybookError("create staging file: " + err.Error())
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return errkind.PlaybookError("stage content: " + err.Error())
	}
	tmp.Close()

	_, err = base.Executor.UploadFile(ctx, base.ConnID, tmp.Name(), path)
	return err
}
