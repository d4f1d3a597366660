package domain

import (
	"fmt"
	"time"
)

// ChangeTag classifies a fix change.
type ChangeTag string

const (
	ChangeFile     ChangeTag = "file"
	ChangeCommand  ChangeTag = "command"
	ChangeConfig   ChangeTag = "config"
	ChangeDatabase ChangeTag = "database"
)

// FixChange records one mutation a playbook made to the host. Either it is
// idempotent (safe to re-apply) or it must be paired with a rollback step
// in the same FixResult's RollbackPlan.
type FixChange struct {
	Tag           ChangeTag `validate:"required"`
	Description   string    `validate:"required"`
	Path          string
	Command       string
	OriginalValue string
	NewValue      string
	Checksum      string
	Timestamp     time.Time
}

// RollbackStepKind is the kind of reversal a rollback step performs.
type RollbackStepKind string

const (
	RollbackRestoreFile    RollbackStepKind = "restore-file"
	RollbackExecuteCommand RollbackStepKind = "execute-command"
	RollbackRevertConfig   RollbackStepKind = "revert-config"
)

// RollbackStep is one reversal, ordered by Order (descending execution).
type RollbackStep struct {
	Order  int
	Kind   RollbackStepKind `validate:"required"`
	Action string           `validate:"required"`
	Params map[string]string
}

// RollbackPlan is the ordered sequence of reversals needed to undo a
// playbook's non-idempotent effects. Steps execute in descending Order.
type RollbackPlan struct {
	Steps     []RollbackStep
	Metadata  map[string]string
	CreatedAt time.Time
}

// StepsDescending returns Steps sorted by descending Order, the execution
// order enforced here.
func (p RollbackPlan) StepsDescending() []RollbackStep {
	out := make([]RollbackStep, len(p.Steps))
	copy(out, p.Steps)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Order > out[j-1].Order; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// RestoreFileStep builds a restore-file rollback step for the given path and
// the order it must run at.
func RestoreFileStep(order int, path, backupPath string) RollbackStep {
	return RollbackStep{
		Order:  order,
		Kind:   RollbackRestoreFile,
		Action: fmt.Sprintf("restore %s", path),
		Params: map[string]string{"path": path, "backup_path": backupPath},
	}
}

// ExecuteCommandStep builds an execute-command rollback step.
func ExecuteCommandStep(order int, command string) RollbackStep {
	return RollbackStep{
		Order:  order,
		Kind:   RollbackExecuteCommand,
		Action: "execute",
		Params: map[string]string{"command": command},
	}
}

// RevertConfigStep builds a revert-config rollback step.
func RevertConfigStep(order int, path, originalValue string) RollbackStep {
	return RollbackStep{
		Order:  order,
		Kind:   RollbackRevertConfig,
		Action: fmt.Sprintf("revert %s", path),
		Params: map[string]string{"path": path, "original_value": originalValue},
	}
}

// FixResult is what a playbook's Apply returns. Applied implies at least one
// change was recorded; non-idempotent changes require a rollback plan.
type FixResult struct {
	Success      bool
	Applied      bool
	Changes      []FixChange
	Evidence     []EvidenceItem
	RollbackPlan *RollbackPlan
	Error        string
	Metadata     map[string]string
}

// HasNonIdempotentChanges reports whether any recorded change is not safe to
// blindly re-apply (everything except a plain command invocation, which
// playbooks are expected to make idempotent on their own).
func (r FixResult) HasNonIdempotentChanges() bool {
	for _, c := range r.Changes {
		if c.Tag != ChangeCommand {
			return true
		}
	}
	return false
}

// Valid checks that applied implies changes present, and that
// non-idempotent changes require a rollback plan.
func (r FixResult) Valid() bool {
	if r.Applied && len(r.Changes) == 0 {
		return false
	}
	if r.Applied && r.HasNonIdempotentChanges() && r.RollbackPlan == nil {
		return false
	}
	return true
}
