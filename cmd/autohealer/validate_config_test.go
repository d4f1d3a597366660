package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigFailsWithoutEncryptionKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	configFile = ""

	cmd := newValidateConfigCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration invalid")
}

func TestValidateConfigSucceedsAndRedactsEncryptionKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")
	configFile = ""

	cmd := newValidateConfigCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "\"Log\"")
	assert.NotContains(t, out.String(), "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")
}
