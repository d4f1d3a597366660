package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDryRunRequiresSitePathAndSymptom(t *testing.T) {
	cmd := newDryRunCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--site-path and --symptom are required")
}

func TestDryRunListsApplicablePlaybooksForSymptom(t *testing.T) {
	cmd := newDryRunCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Flags().Set("site-path", "/var/www/example"))
	require.NoError(t, cmd.Flags().Set("symptom", "PHP fatal error: memory exhausted"))

	require.NoError(t, cmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "playbook(s) would be attempted")
}

func TestDryRunReportsNoApplicablePlaybooksForUnknownSymptom(t *testing.T) {
	cmd := newDryRunCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Flags().Set("site-path", "/var/www/example"))
	require.NoError(t, cmd.Flags().Set("symptom", "qwertyuiop nonsense token no playbook matches"))

	require.NoError(t, cmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "escalate directly from OBSERVABILITY")
}
