package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wp-autohealer/engine/internal/domain"
)

func TestStubIncidentSourceDrainsFIFO(t *testing.T) {
	src := NewStubIncidentSource()
	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, ErrNoIncidents)

	src.Push(IncidentCreated{IncidentID: "a"})
	src.Push(IncidentCreated{IncidentID: "b"})

	first, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", first.IncidentID)

	second, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", second.IncidentID)
}

func TestStubIncidentSourceHonorsCancelledContext(t *testing.T) {
	src := NewStubIncidentSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStubServerDirectoryPutAndGet(t *testing.T) {
	dir := NewStubServerDirectory()
	_, err := dir.GetServer(context.Background(), "server-1")
	assert.ErrorIs(t, err, ErrServerNotFound)

	dir.Put("server-1", Server{Hostname: "10.0.0.1", Port: 22})
	server, err := dir.GetServer(context.Background(), "server-1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", server.Hostname)
}

func TestStubEvidenceSinkDeduplicatesBySignature(t *testing.T) {
	sink := NewStubEvidenceSink()
	item := domain.NewEvidenceItem(domain.EvidenceLog, "desc", "same content", nil, time.Now())

	require.NoError(t, sink.Append(context.Background(), "inc-1", item))
	require.NoError(t, sink.Append(context.Background(), "inc-1", item))

	assert.Len(t, sink.All("inc-1"), 1)
}

func TestStubBackupServiceRoundTrips(t *testing.T) {
	backup := NewStubBackupService()
	path, err := backup.CreateFileBackup(context.Background(), "inc-1", "server-1", "/var/www/wp-config.php", nil)
	require.NoError(t, err)

	ok, err := backup.Restore(context.Background(), path, "/var/www/wp-config.php")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = backup.Restore(context.Background(), "unknown-backup", "/var/www/wp-config.php")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStubVerificationServiceDefaultsHealthy(t *testing.T) {
	verify := NewStubVerificationService()
	report, err := verify.VerifySiteHealth(context.Background(), "example.com")
	require.NoError(t, err)
	assert.True(t, report.Healthy)

	verify.SetHealth(false, []string{"500 error"})
	report, err = verify.VerifySiteHealth(context.Background(), "example.com")
	require.NoError(t, err)
	assert.False(t, report.Healthy)
	assert.Equal(t, []string{"500 error"}, report.Issues)
}

func TestStubEscalationSinkRecordsEveryCall(t *testing.T) {
	sink := NewStubEscalationSink()
	require.NoError(t, sink.Escalate(context.Background(), "inc-1", "breaker open", nil))
	require.NoError(t, sink.Escalate(context.Background(), "inc-2", "max attempts", nil))

	all := sink.All()
	require.Len(t, all, 2)
	assert.Equal(t, "inc-1", all[0].IncidentID)
	assert.Equal(t, "inc-2", all[1].IncidentID)
}
