package incident

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/ports"
)

func TestDispatcherRunsEachIncidentToCompletion(t *testing.T) {
	source := newFakeIncidentSource(
		ports.IncidentCreated{IncidentID: "inc-1", SiteID: "site-1", ServerID: "server-1"},
		ports.IncidentCreated{IncidentID: "inc-2", SiteID: "site-1", ServerID: "server-2"},
	)
	events := NewMemoryEventLog()
	engine := &Engine{
		Directory: &fakeDirectory{err: errNoDirectory},
		Events:    events,
		Config:    DefaultConfig(),
	}
	dispatcher := NewDispatcher(source, engine, DispatcherConfig{MaxConcurrent: 2}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := dispatcher.Serve(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assertEventuallyTerminal(t, events, "inc-1")
	assertEventuallyTerminal(t, events, "inc-2")
}

func TestDispatcherRespectsConcurrencyBound(t *testing.T) {
	var inFlight, maxInFlight int32
	started := make(chan struct{}, 10)

	blockers := make([]ports.IncidentCreated, 5)
	for i := range blockers {
		blockers[i] = ports.IncidentCreated{IncidentID: string(rune('a' + i)), SiteID: "site-1", ServerID: "server-1"}
	}
	source := newFakeIncidentSource(blockers...)

	engine := &Engine{
		Directory: &blockingDirectory{
			onEnter: func() {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxInFlight)
					if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
						break
					}
				}
				started <- struct{}{}
			},
			onExit: func() { atomic.AddInt32(&inFlight, -1) },
		},
		Events: NewMemoryEventLog(),
		Config: DefaultConfig(),
	}
	dispatcher := NewDispatcher(source, engine, DispatcherConfig{MaxConcurrent: 2}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, testErrIgnoreDeadline(dispatcher.Serve(ctx)))

	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxInFlight)), 2)
}

func assertEventuallyTerminal(t *testing.T, log *MemoryEventLog, incidentID string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		events := log.Events(incidentID)
		if len(events) > 0 {
			last := events[len(events)-1]
			if last.State == domain.StateFixed || last.State == domain.StateEscalated {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("incident %s never reached a terminal state", incidentID)
}

func testErrIgnoreDeadline(err error) error {
	if err == context.DeadlineExceeded || err == context.Canceled {
		return nil
	}
	return err
}

type blockingDirectory struct {
	onEnter func()
	onExit  func()
}

func (b *blockingDirectory) GetServer(context.Context, string) (ports.Server, error) {
	b.onEnter()
	defer b.onExit()
	time.Sleep(50 * time.Millisecond)
	return ports.Server{}, errNoDirectory
}

var errNoDirectory = simpleTestError("no directory configured")

type simpleTestError string

func (e simpleTestError) Error() string { return string(e) }
