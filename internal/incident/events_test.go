package incident

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wp-autohealer/engine/internal/domain"
)

func TestMemoryEventLogAssignsIncreasingSequence(t *testing.T) {
	log := NewMemoryEventLog()
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, domain.IncidentEvent{IncidentID: "inc-1", State: domain.StateDiscovery}))
	require.NoError(t, log.Record(ctx, domain.IncidentEvent{IncidentID: "inc-1", State: domain.StateBaseline}))

	events := log.Events("inc-1")
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, uint64(2), events[1].Sequence)
}

func TestMemoryEventLogIsolatesPerIncident(t *testing.T) {
	log := NewMemoryEventLog()
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, domain.IncidentEvent{IncidentID: "inc-1", State: domain.StateDiscovery}))
	require.NoError(t, log.Record(ctx, domain.IncidentEvent{IncidentID: "inc-2", State: domain.StateDiscovery}))

	assert.Len(t, log.Events("inc-1"), 1)
	assert.Len(t, log.Events("inc-2"), 1)
	assert.Equal(t, uint64(1), log.Events("inc-2")[0].Sequence, "sequence counters must not be shared across incidents")
}

func TestMemoryEventLogStampsTimestampWhenZero(t *testing.T) {
	log := NewMemoryEventLog()
	require.NoError(t, log.Record(context.Background(), domain.IncidentEvent{IncidentID: "inc-1"}))

	events := log.Events("inc-1")
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestMemoryEventLogReturnsACopy(t *testing.T) {
	log := NewMemoryEventLog()
	require.NoError(t, log.Record(context.Background(), domain.IncidentEvent{IncidentID: "inc-1"}))

	events := log.Events("inc-1")
	events[0].Actor = "mutated"

	assert.NotEqual(t, "mutated", log.Events("inc-1")[0].Actor)
}
