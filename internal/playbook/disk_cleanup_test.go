package playbook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wp-autohealer/engine/internal/sshx"
)

func TestDiskCleanupTruncatesStaleFilesAndOversizedLogs(t *testing.T) {
	exec := newFakeExecutor()
	exec.responses["find /tmp -type f -mtime +7"] = sshx.CommandResult{Stdout: "/tmp/a.tmp /tmp/b.tmp"}
	exec.responses["find /var/log -name *.log -size +100M"] = sshx.CommandResult{Stdout: "/var/log/huge.log"}

	base := Base{Executor: exec, Evidence: &fakeEvidenceSink{}}
	p := NewDiskCleanup(base)
	fc := testFixContext()

	result, err := p.Apply(context.Background(), fc)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Applied)

	assert.Contains(t, exec.calls, "cat /dev/null > /tmp/a.tmp")
	assert.Contains(t, exec.calls, "cat /dev/null > /tmp/b.tmp")
	assert.Contains(t, exec.calls, "cat /dev/null > /var/log/huge.log")
	assert.Nil(t, result.RollbackPlan, "disk cleanup is irreversible and must never offer a rollback plan")
}

func TestDiskCleanupNotAppliedWhenNothingToClean(t *testing.T) {
	exec := newFakeExecutor()
	base := Base{Executor: exec, Evidence: &fakeEvidenceSink{}}
	p := NewDiskCleanup(base)

	result, err := p.Apply(context.Background(), testFixContext())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Applied, "cache flush alone does not count as a disk-space change")
}

func TestDiskCleanupCanApplyRequiresDiskEvidence(t *testing.T) {
	p := NewDiskCleanup(Base{})
	assert.True(t, p.CanApply(context.Background(), testFixContext(), testEvidence("no space left on device")))
	assert.False(t, p.CanApply(context.Background(), testFixContext(), testEvidence("unrelated log line")))
}
