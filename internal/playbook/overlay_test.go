package playbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverlayFileMissingPathIsEmptyOverlay(t *testing.T) {
	overlay, err := LoadOverlayFile("")
	require.NoError(t, err)
	assert.Empty(t, overlay.Disabled)

	overlay, err = LoadOverlayFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Empty(t, overlay.Disabled)
}

func TestLoadOverlayFileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.yaml")
	content := "disabled_playbooks:\n  - theme-switch\ntier_priority_overrides:\n  web-server-restart: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	overlay, err := LoadOverlayFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"theme-switch"}, overlay.Disabled)
	assert.Equal(t, 0, overlay.TierPriority["web-server-restart"])
}

func TestOverlayApplyRemovesDisabledPlaybooks(t *testing.T) {
	reg := NewDefaultRegistry(Base{}, noopVerificationProbe{}, nil)
	overlay := &Overlay{Disabled: []string{"theme-switch"}}

	overlay.Apply(reg)

	_, ok := reg.ByName("theme-switch")
	assert.False(t, ok)
	for _, p := range reg.ForTier(TierT3) {
		assert.NotEqual(t, "theme-switch", p.Name())
	}
}

func TestOverlayApplyReordersTierByPriorityOverride(t *testing.T) {
	reg := NewDefaultRegistry(Base{}, noopVerificationProbe{}, nil)
	overlay := &Overlay{TierPriority: map[string]int{"php-error": -1}}

	overlay.Apply(reg)

	t1 := reg.ForTier(TierT1)
	require.NotEmpty(t, t1)
	assert.Equal(t, "php-error", t1[0].Name())
}

func TestNilOverlayApplyIsNoop(t *testing.T) {
	reg := NewDefaultRegistry(Base{}, noopVerificationProbe{}, nil)
	var overlay *Overlay
	overlay.Apply(reg)

	_, ok := reg.ByName("theme-switch")
	assert.True(t, ok)
}
