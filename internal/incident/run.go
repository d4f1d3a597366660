package incident

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/errkind"
	"github.com/wp-autohealer/engine/internal/idempotency"
	"github.com/wp-autohealer/engine/internal/playbook"
	"github.com/wp-autohealer/engine/internal/sshx"
)

// runJob wraps one state's side-effecting work behind the idempotency
// store so a duplicate job enqueue for the same incident/state/attempt/
// payload collapses onto the first execution instead of re-running it.
func (e *Engine) runJob(ctx context.Context, r *run, jobData interface{}, fn func(ctx context.Context) error) error {
	if e.Idempotency == nil {
		return fn(ctx)
	}
	key, err := idempotency.Key(r.incident.IncidentID, string(r.incident.CurrentState), r.incident.FixAttemptCount, jobData)
	if err != nil {
		return err
	}
	_, err = e.Idempotency.Execute(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		if fnErr := fn(ctx); fnErr != nil {
			return nil, fnErr
		}
		return json.RawMessage(`{"status":"ok"}`), nil
	})
	return err
}

func (e *Engine) appendEvidence(ctx context.Context, r *run, tag domain.EvidenceTag, description, content string, meta map[string]string) {
	item := domain.NewEvidenceItem(tag, description, content, meta, time.Now())
	r.evidence = append(r.evidence, item)
	if e.Evidence != nil {
		if err := e.Evidence.Append(ctx, r.incident.IncidentID, item); err != nil {
			e.logger().Warn("incident: evidence append failed", "incident_id", r.incident.IncidentID, "error", err)
		}
	}
}

// handleDiscovery opens the SSH connection and gathers first-pass evidence.
// A host-key mismatch or auth failure here escalates without ever reaching
// executeCommand, per the documented E3 edge case.
func (e *Engine) handleDiscovery(ctx context.Context, r *run) (domain.State, error) {
	server, err := e.Directory.GetServer(ctx, r.incident.ServerID)
	if err != nil {
		e.appendEvidence(ctx, r, domain.EvidenceLog, "server directory lookup failed", err.Error(), nil)
		return domain.StateEscalated, nil
	}

	conn, err := e.SSH.Connect(ctx, r.incident.ServerID, server)
	if err != nil {
		kind := errkind.Classify(err)
		e.appendEvidence(ctx, r, domain.EvidenceLog, "ssh connect failed", err.Error(), map[string]string{"error_kind": string(kind)})
		return domain.StateEscalated, nil
	}

	jobErr := e.runJob(ctx, r, r.fc, func(ctx context.Context) error {
		result, err := e.SSH.ExecuteCommand(ctx, conn.ConnectionID, fmt.Sprintf("wp core version --path=%s", r.fc.WPPath), sshx.CommandOptions{})
		if err != nil {
			return err
		}
		e.appendEvidence(ctx, r, domain.EvidenceCommandOutput, "wp core version", result.Stdout, nil)
		return nil
	})
	if jobErr != nil {
		e.appendEvidence(ctx, r, domain.EvidenceLog, "discovery probe failed", jobErr.Error(), nil)
	}

	return domain.StateBaseline, nil
}

// handleBaseline records the pre-fix health snapshot so VERIFY has
// something to compare against.
func (e *Engine) handleBaseline(ctx context.Context, r *run) (domain.State, error) {
	if e.Verify == nil {
		return domain.StateBackup, nil
	}
	report, err := e.Verify.VerifySiteHealth(ctx, r.fc.Domain)
	if err != nil {
		e.appendEvidence(ctx, r, domain.EvidenceLog, "baseline health check failed", err.Error(), nil)
		return domain.StateBackup, nil
	}
	e.appendEvidence(ctx, r, domain.EvidenceSystemInfo, "baseline health snapshot",
		fmt.Sprintf("healthy=%v issues=%v", report.Healthy, report.Issues), nil)
	return domain.StateBackup, nil
}

// handleBackup must succeed before any FIX_ATTEMPT is allowed.
func (e *Engine) handleBackup(ctx context.Context, r *run) (domain.State, error) {
	if e.Backup == nil {
		return domain.StateEscalated, nil
	}
	configPath := r.fc.WPPath + "/wp-config.php"
	var backupPath string
	jobErr := e.runJob(ctx, r, map[string]string{"path": configPath}, func(ctx context.Context) error {
		path, err := e.Backup.CreateFileBackup(ctx, r.incident.IncidentID, r.incident.ServerID, configPath, nil)
		if err != nil {
			return err
		}
		backupPath = path
		return nil
	})
	if jobErr != nil {
		e.appendEvidence(ctx, r, domain.EvidenceLog, "pre-fix backup failed", jobErr.Error(), nil)
		return domain.StateEscalated, nil
	}
	e.appendEvidence(ctx, r, domain.EvidenceLog, "pre-fix backup created", backupPath, map[string]string{"path": configPath})
	return domain.StateObservability, nil
}

// handleObservability collects the evidence the tier executor's CanApply
// checks key off, then decides whether a fix is even needed.
func (e *Engine) handleObservability(ctx context.Context, r *run) (domain.State, error) {
	if e.Verify != nil {
		report, err := e.Verify.VerifySiteHealth(ctx, r.fc.Domain)
		if err == nil && report.Healthy {
			return domain.StateFixed, nil
		}
		for _, issue := range report.Issues {
			e.appendEvidence(ctx, r, domain.EvidenceSystemInfo, "observed issue", issue, nil)
		}
	}

	if e.Playbooks == nil {
		return domain.StateEscalated, nil
	}
	applicable := e.Playbooks.Registry().Applicable(ctx, r.fc, r.evidence, nil)
	if len(applicable) == 0 {
		e.appendEvidence(ctx, r, domain.EvidenceLog, "no applicable playbook found", "", nil)
		return domain.StateEscalated, nil
	}
	return domain.StateFixAttempt, nil
}

// handleFixAttempt is gated by both the circuit breaker and the flapping
// controller before it increments the attempt counter and walks the tiers.
func (e *Engine) handleFixAttempt(ctx context.Context, r *run) (domain.State, error) {
	key := e.breakerKey(r)
	if e.Breaker != nil && !e.Breaker.CanExecute(key) {
		e.appendEvidence(ctx, r, domain.EvidenceLog, "circuit breaker open, refusing fix attempt", key, nil)
		return domain.StateEscalated, nil
	}
	if e.Flapping != nil {
		decision, err := e.Flapping.CanCreateIncident(ctx, r.incident.SiteID)
		if err == nil && !decision.Allowed {
			e.appendEvidence(ctx, r, domain.EvidenceLog, "flapping controller refused fix attempt", decision.Reason, nil)
			return domain.StateEscalated, nil
		}
	}
	if r.incident.FixAttemptCount >= e.Config.MaxFixAttempts {
		e.appendEvidence(ctx, r, domain.EvidenceLog, "max fix attempts exhausted", fmt.Sprintf("%d", r.incident.FixAttemptCount), nil)
		return domain.StateEscalated, nil
	}

	loopID := "fix-attempt:" + r.incident.IncidentID
	if e.LoopGuard != nil {
		cont := e.LoopGuard.CanContinue(loopID)
		if !cont.CanContinue {
			e.appendEvidence(ctx, r, domain.EvidenceLog, "loop guard stopped fix attempts", string(cont.BoundType), nil)
			return domain.StateEscalated, nil
		}
		e.LoopGuard.RecordIteration(loopID)
	}

	r.incident.FixAttemptCount++
	if e.Metrics != nil {
		e.Metrics.RecordFixAttempt()
	}

	maxTier := playbook.Tier(e.Config.MaxTier)
	var outcome playbook.Outcome
	jobErr := e.runJob(ctx, r, map[string]interface{}{"attempt": r.incident.FixAttemptCount, "tier": string(maxTier)}, func(ctx context.Context) error {
		outcome = e.Playbooks.ExecuteWordPressFixes(ctx, r.fc, r.evidence, maxTier)
		return nil
	})
	if jobErr != nil {
		if e.Breaker != nil {
			e.Breaker.OnFailure(key, jobErr)
		}
		e.appendEvidence(ctx, r, domain.EvidenceLog, "fix attempt errored", jobErr.Error(), nil)
		return domain.StateEscalated, nil
	}
	r.outcome = outcome

	for _, step := range outcome.Results {
		e.appendEvidence(ctx, r, domain.EvidenceLog,
			fmt.Sprintf("playbook %s ran", step.PlaybookName),
			fmt.Sprintf("tier=%s success=%v applied=%v hypothesis=%s", step.Tier, step.Result.Success, step.Result.Applied, step.Hypothesis),
			nil)
	}

	if outcome.Success {
		if e.Breaker != nil {
			e.Breaker.OnSuccess(key)
		}
		return domain.StateVerify, nil
	}

	partiallyApplied := false
	for _, step := range outcome.Results {
		if step.Result.Applied && !step.Result.Success {
			partiallyApplied = true
		}
	}
	if e.Breaker != nil {
		e.Breaker.OnFailure(key, errors.New("no playbook resolved the incident"))
	}
	if partiallyApplied {
		return domain.StateRollback, nil
	}
	return domain.StateEscalated, nil
}

// handleVerify re-probes site health after a fix attempt and decides
// whether to declare victory, retry, roll back, or give up.
func (e *Engine) handleVerify(ctx context.Context, r *run) (domain.State, error) {
	if e.Verify == nil {
		return domain.StateFixed, nil
	}
	report, err := e.Verify.VerifySiteHealth(ctx, r.fc.Domain)
	if err != nil {
		e.appendEvidence(ctx, r, domain.EvidenceLog, "verify probe failed", err.Error(), nil)
		return domain.StateRollback, nil
	}
	if report.Healthy {
		e.appendEvidence(ctx, r, domain.EvidenceSystemInfo, "verify: site healthy", "", nil)
		return domain.StateFixed, nil
	}

	e.appendEvidence(ctx, r, domain.EvidenceSystemInfo, "verify: site still unhealthy", fmt.Sprintf("%v", report.Issues), nil)

	if r.outcome.TotalFixesApplied > 0 {
		return domain.StateRollback, nil
	}
	if r.incident.FixAttemptCount < e.Config.MaxFixAttempts {
		return domain.StateFixAttempt, nil
	}
	return domain.StateEscalated, nil
}

// handleRollback undoes the last fix attempt's changes. Once started it
// must run to completion even under cancellation, so the rollback call uses
// context.Background() rather than the caller's ctx.
func (e *Engine) handleRollback(_ context.Context, r *run) (domain.State, error) {
	rollbackCtx := context.Background()

	var lastErr error
	for _, step := range r.outcome.Results {
		if step.Result.RollbackPlan == nil {
			continue
		}
		name := step.PlaybookName
		p, ok := e.Playbooks.Registry().ByName(name)
		if !ok {
			continue
		}
		if err := p.Rollback(rollbackCtx, r.fc, *step.Result.RollbackPlan); err != nil {
			lastErr = err
			e.appendEvidence(rollbackCtx, r, domain.EvidenceLog, fmt.Sprintf("rollback of %s failed", name), err.Error(), nil)
		} else {
			e.appendEvidence(rollbackCtx, r, domain.EvidenceLog, fmt.Sprintf("rolled back %s", name), "", nil)
		}
	}

	if lastErr != nil {
		return domain.StateEscalated, nil
	}
	r.outcome = playbook.Outcome{}
	return domain.StateVerify, nil
}
