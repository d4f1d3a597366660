package playbook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wp-autohealer/engine/internal/sshx"
)

func TestMemoryLimitReplacesExistingDefine(t *testing.T) {
	exec := newFakeExecutor()
	configPath := "/var/www/site/wp-config.php"
	exec.responses["cat "+configPath] = sshx.CommandResult{
		Stdout: "<?php\ndefine('WP_MEMORY_LIMIT', '128M');\n",
	}
	backup := &fakeBackup{}
	base := Base{Executor: exec, Backup: backup, Evidence: &fakeEvidenceSink{}}
	p := NewMemoryLimit(base, "512M")

	result, err := p.Apply(context.Background(), testFixContext())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Applied)
	require.Len(t, result.Changes, 1)
	assert.Contains(t, result.Changes[0].NewValue, "WP_MEMORY_LIMIT', '512M'")
	assert.NotContains(t, result.Changes[0].NewValue, "128M")
	require.NotNil(t, result.RollbackPlan)
	assert.Len(t, result.RollbackPlan.Steps, 1)
	assert.Contains(t, backup.backedUp, configPath)
}

func TestMemoryLimitPrependsDefineWhenAbsent(t *testing.T) {
	exec := newFakeExecutor()
	configPath := "/var/www/site/wp-config.php"
	exec.responses["cat "+configPath] = sshx.CommandResult{Stdout: "<?php\n// no define here\n"}
	base := Base{Executor: exec, Backup: &fakeBackup{}, Evidence: &fakeEvidenceSink{}}
	p := NewMemoryLimit(base, "")

	result, err := p.Apply(context.Background(), testFixContext())
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Contains(t, result.Changes[0].NewValue, "WP_MEMORY_LIMIT', '512M'")
}

func TestMemoryLimitFailsWithoutBackupService(t *testing.T) {
	exec := newFakeExecutor()
	configPath := "/var/www/site/wp-config.php"
	exec.responses["cat "+configPath] = sshx.CommandResult{Stdout: "<?php\n"}
	base := Base{Executor: exec, Evidence: &fakeEvidenceSink{}}
	p := NewMemoryLimit(base, "512M")

	result, err := p.Apply(context.Background(), testFixContext())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}
