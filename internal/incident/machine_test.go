package incident

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/errkind"
)

func TestValidateTransitionAllowsEveryListedEdge(t *testing.T) {
	for from, tos := range transitions {
		for _, to := range tos {
			assert.NoError(t, ValidateTransition(from, to), "%s -> %s should be allowed", from, to)
		}
	}
}

func TestValidateTransitionRejectsUnlistedEdge(t *testing.T) {
	err := ValidateTransition(domain.StateDiscovery, domain.StateFixAttempt)
	assert.Error(t, err)
	assert.Equal(t, errkind.KindState, errkind.Classify(err))
}

func TestValidateTransitionRejectsLeavingTerminalState(t *testing.T) {
	err := ValidateTransition(domain.StateFixed, domain.StateDiscovery)
	assert.Error(t, err)

	err = ValidateTransition(domain.StateEscalated, domain.StateDiscovery)
	assert.Error(t, err)
}

func TestValidateTransitionAllowsRollbackRoundTrip(t *testing.T) {
	assert.NoError(t, ValidateTransition(domain.StateFixAttempt, domain.StateRollback))
	assert.NoError(t, ValidateTransition(domain.StateRollback, domain.StateVerify))
	assert.NoError(t, ValidateTransition(domain.StateVerify, domain.StateRollback))
}
