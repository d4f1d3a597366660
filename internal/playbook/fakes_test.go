package playbook

import (
	"context"

	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/sshx"
)

// fakeExecutor is a scripted CommandExecutor: responses are looked up by
// the full command string, falling back to a default empty success.
type fakeExecutor struct {
	responses map[string]sshx.CommandResult
	errs      map[string]error
	calls     []string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{responses: make(map[string]sshx.CommandResult), errs: make(map[string]error)}
}

func (f *fakeExecutor) ExecuteCommand(_ context.Context, _ string, cmd string, _ sshx.CommandOptions) (sshx.CommandResult, error) {
	f.calls = append(f.calls, cmd)
	if err, ok := f.errs[cmd]; ok {
		return sshx.CommandResult{}, err
	}
	if result, ok := f.responses[cmd]; ok {
		return result, nil
	}
	return sshx.CommandResult{ExitCode: 0}, nil
}

func (f *fakeExecutor) ExecuteTemplatedCommand(ctx context.Context, connID, template string, params map[string]string, opts sshx.CommandOptions) (sshx.CommandResult, error) {
	return f.ExecuteCommand(ctx, connID, template, opts)
}

func (f *fakeExecutor) UploadFile(_ context.Context, _, _, _ string) (sshx.TransferResult, error) {
	return sshx.TransferResult{Success: true}, nil
}

func (f *fakeExecutor) DownloadFile(_ context.Context, _, _, _ string) (sshx.TransferResult, error) {
	return sshx.TransferResult{Success: true}, nil
}

type fakeBackup struct {
	backupPath  string
	restoreOK   bool
	restoreErr  error
	backedUp    []string
}

func (f *fakeBackup) CreateFileBackup(_ context.Context, _, _, path string, _ map[string]string) (string, error) {
	f.backedUp = append(f.backedUp, path)
	if f.backupPath == "" {
		return path + ".bak", nil
	}
	return f.backupPath, nil
}

func (f *fakeBackup) Restore(_ context.Context, _, _ string) (bool, error) {
	if f.restoreErr != nil {
		return false, f.restoreErr
	}
	return f.restoreOK, nil
}

type fakeEvidenceSink struct {
	items []domain.EvidenceItem
}

func (f *fakeEvidenceSink) Append(_ context.Context, _ string, item domain.EvidenceItem) error {
	f.items = append(f.items, item)
	return nil
}

type fakeVerify struct {
	status int
	err    error
}

func (f *fakeVerify) Probe(context.Context, string) (int, error) {
	return f.status, f.err
}

func testFixContext() domain.FixContext {
	return domain.FixContext{
		IncidentID: "incident-1", SiteID: "site-1", ServerID: "server-1",
		SitePath: "/var/www/site", WPPath: "/var/www/site", Domain: "example.com",
		CorrelationID: "corr-1", TraceID: "trace-1",
	}
}

func testEvidence(descriptions ...string) []domain.EvidenceItem {
	items := make([]domain.EvidenceItem, 0, len(descriptions))
	for _, d := range descriptions {
		items = append(items, domain.EvidenceItem{Tag: domain.EvidenceLog, Content: d})
	}
	return items
}
