package incident

import (
	"context"
	"sync"

	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/playbook"
	"github.com/wp-autohealer/engine/internal/ports"
)

type fakePlaybook struct {
	name         string
	tier         playbook.Tier
	canApply     bool
	result       domain.FixResult
	rollbackErr  error
	rollbackCall int
}

func (p *fakePlaybook) Name() string                  { return p.name }
func (p *fakePlaybook) Tier() playbook.Tier            { return p.tier }
func (p *fakePlaybook) Priority() playbook.Priority    { return playbook.PriorityHigh }
func (p *fakePlaybook) Description() string            { return "fake" }
func (p *fakePlaybook) ApplicableConditions() []string { return nil }
func (p *fakePlaybook) CanApply(context.Context, domain.FixContext, []domain.EvidenceItem) bool {
	return p.canApply
}
func (p *fakePlaybook) GetHypothesis(context.Context, domain.FixContext, []domain.EvidenceItem) string {
	return "fake hypothesis"
}
func (p *fakePlaybook) Apply(context.Context, domain.FixContext) (domain.FixResult, error) {
	return p.result, nil
}
func (p *fakePlaybook) Rollback(context.Context, domain.FixContext, domain.RollbackPlan) error {
	p.rollbackCall++
	return p.rollbackErr
}

type fakeDirectory struct {
	server ports.Server
	err    error
}

func (f *fakeDirectory) GetServer(context.Context, string) (ports.Server, error) {
	return f.server, f.err
}

type fakeVerification struct {
	report ports.HealthReport
	err    error
}

func (f *fakeVerification) VerifySiteHealth(context.Context, string) (ports.HealthReport, error) {
	return f.report, f.err
}

func (f *fakeVerification) Probe(context.Context, string) (int, error) {
	return 200, nil
}

type fakeBackupService struct {
	path string
	err  error
}

func (f *fakeBackupService) CreateFileBackup(context.Context, string, string, string, map[string]string) (string, error) {
	return f.path, f.err
}

func (f *fakeBackupService) Restore(context.Context, string, string) (bool, error) {
	return true, nil
}

type fakeEscalationSink struct {
	mu           sync.Mutex
	calls        int
	lastEvidence []domain.EvidenceItem
}

func (f *fakeEscalationSink) Escalate(_ context.Context, _ string, _ string, evidence []domain.EvidenceItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastEvidence = evidence
	return nil
}

func (f *fakeEscalationSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeIncidentSource struct {
	mu      sync.Mutex
	items   []ports.IncidentCreated
	idx     int
	blocked chan struct{}
}

func newFakeIncidentSource(items ...ports.IncidentCreated) *fakeIncidentSource {
	return &fakeIncidentSource{items: items, blocked: make(chan struct{})}
}

func (f *fakeIncidentSource) Next(ctx context.Context) (ports.IncidentCreated, error) {
	f.mu.Lock()
	if f.idx < len(f.items) {
		item := f.items[f.idx]
		f.idx++
		f.mu.Unlock()
		return item, nil
	}
	f.mu.Unlock()

	select {
	case <-f.blocked:
		return ports.IncidentCreated{}, ctx.Err()
	case <-ctx.Done():
		return ports.IncidentCreated{}, ctx.Err()
	}
}
