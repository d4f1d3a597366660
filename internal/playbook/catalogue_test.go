package playbook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type noopVerificationProbe struct{}

func (noopVerificationProbe) Probe(context.Context, string) (int, error) { return 200, nil }

func TestNewDefaultRegistryRegistersEveryConcretePlaybook(t *testing.T) {
	reg := NewDefaultRegistry(Base{}, noopVerificationProbe{}, nil)

	wantNames := []string{
		"core-integrity",
		"db-connection-restart",
		"db-table-repair",
		"disk-space-cleanup",
		"memory-limit",
		"php-error",
		"plugin-conflict",
		"theme-switch",
		"web-server-restart",
		"wp-config-validation",
	}
	for _, name := range wantNames {
		_, ok := reg.ByName(name)
		assert.True(t, ok, "expected %s to be registered", name)
	}
}

func TestNewDefaultRegistryCoversTiersT1ThroughT3(t *testing.T) {
	reg := NewDefaultRegistry(Base{}, noopVerificationProbe{}, nil)

	for _, tier := range []Tier{TierT1, TierT2, TierT3} {
		if len(reg.ForTier(tier)) == 0 {
			t.Fatalf("tier %s has no registered playbooks", tier)
		}
	}
}
