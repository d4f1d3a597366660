// Package incident drives one incident through the ten-state remediation
// lifecycle: discovery, baseline capture, backup, observability, tiered fix
// attempts, verification, rollback, and the terminal FIXED or ESCALATED
// outcomes.
package incident

import (
	"fmt"

	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/errkind"
)

// transitions is the allowed-transition table. Any pair not listed here is
// rejected with a StateError, the same strict-whitelist approach
// internal/sshx/validator.go takes for command strings, applied here to
// state pairs instead.
var transitions = map[domain.State][]domain.State{
	domain.StateNew:           {domain.StateDiscovery},
	domain.StateDiscovery:     {domain.StateBaseline, domain.StateEscalated},
	domain.StateBaseline:      {domain.StateBackup, domain.StateEscalated},
	domain.StateBackup:        {domain.StateObservability, domain.StateEscalated},
	domain.StateObservability: {domain.StateFixAttempt, domain.StateFixed, domain.StateEscalated},
	domain.StateFixAttempt:    {domain.StateVerify, domain.StateRollback, domain.StateEscalated},
	domain.StateVerify:        {domain.StateFixed, domain.StateFixAttempt, domain.StateRollback, domain.StateEscalated},
	domain.StateRollback:      {domain.StateVerify, domain.StateEscalated},
}

// ValidateTransition reports a *errkind.Error(KindState) unless to is one of
// from's allowed successors, or from is already terminal.
func ValidateTransition(from, to domain.State) error {
	if from.Terminal() {
		return errkind.StateError(fmt.Sprintf("incident is terminal at %s, cannot transition to %s", from, to))
	}
	for _, candidate := range transitions[from] {
		if candidate == to {
			return nil
		}
	}
	return errkind.StateError(fmt.Sprintf("%s -> %s is not an allowed transition", from, to))
}
