package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRegistryStartsClosed(t *testing.T) {
	r := NewRegistry(Config{Threshold: 3, RecoveryTimeout: 5 * time.Second, MonitoringPeriod: time.Minute}, nil)
	assert.True(t, r.CanExecute("srv-1"))
	assert.Equal(t, StateClosed, r.State("srv-1"))
}

func TestRegistryTracksKeysIndependently(t *testing.T) {
	r := NewRegistry(Config{Threshold: 2, RecoveryTimeout: time.Second, MonitoringPeriod: time.Minute}, nil)

	r.OnFailure("srv-1", errors.New("boom"))
	r.OnFailure("srv-1", errors.New("boom"))
	assert.Equal(t, StateOpen, r.State("srv-1"))
	assert.Equal(t, StateClosed, r.State("srv-2"))
}

func TestRegistryOpensAfterThreshold(t *testing.T) {
	r := NewRegistry(Config{Threshold: 3, RecoveryTimeout: 5 * time.Second, MonitoringPeriod: time.Minute}, nil)

	r.OnFailure("srv-1", errors.New("x"))
	assert.Equal(t, StateClosed, r.State("srv-1"))
	r.OnFailure("srv-1", errors.New("x"))
	assert.Equal(t, StateClosed, r.State("srv-1"))
	r.OnFailure("srv-1", errors.New("x"))

	assert.Equal(t, StateOpen, r.State("srv-1"))
	assert.False(t, r.CanExecute("srv-1"))
}

func TestRegistryTransitionsToHalfOpenAfterRecoveryTimeout(t *testing.T) {
	r := NewRegistry(Config{Threshold: 2, RecoveryTimeout: 50 * time.Millisecond, MonitoringPeriod: time.Minute}, nil)

	r.OnFailure("srv-1", errors.New("x"))
	r.OnFailure("srv-1", errors.New("x"))
	assert.Equal(t, StateOpen, r.State("srv-1"))

	time.Sleep(60 * time.Millisecond)

	assert.True(t, r.CanExecute("srv-1"))
	assert.Equal(t, StateHalfOpen, r.State("srv-1"))
}

func TestRegistryClosesOnSingleHalfOpenSuccess(t *testing.T) {
	r := NewRegistry(Config{Threshold: 2, RecoveryTimeout: 50 * time.Millisecond, MonitoringPeriod: time.Minute}, nil)

	r.OnFailure("srv-1", errors.New("x"))
	r.OnFailure("srv-1", errors.New("x"))
	time.Sleep(60 * time.Millisecond)
	requireCanExecute(t, r, "srv-1")

	r.OnSuccess("srv-1")

	assert.Equal(t, StateClosed, r.State("srv-1"))
	assert.Equal(t, 0, r.FailureCount("srv-1"))
}

func TestRegistryHalfOpenFailureReopens(t *testing.T) {
	r := NewRegistry(Config{Threshold: 2, RecoveryTimeout: 50 * time.Millisecond, MonitoringPeriod: time.Minute}, nil)

	r.OnFailure("srv-1", errors.New("x"))
	r.OnFailure("srv-1", errors.New("x"))
	time.Sleep(60 * time.Millisecond)
	requireCanExecute(t, r, "srv-1")

	r.OnFailure("srv-1", errors.New("x"))

	assert.Equal(t, StateOpen, r.State("srv-1"))
	assert.False(t, r.CanExecute("srv-1"))
}

func TestRegistryDecaysFailuresOutsideMonitoringPeriod(t *testing.T) {
	r := NewRegistry(Config{Threshold: 3, RecoveryTimeout: time.Second, MonitoringPeriod: 30 * time.Millisecond}, nil)

	r.OnFailure("srv-1", errors.New("x"))
	r.OnFailure("srv-1", errors.New("x"))
	time.Sleep(40 * time.Millisecond)
	r.OnFailure("srv-1", errors.New("x"))

	assert.Equal(t, StateClosed, r.State("srv-1"), "stale failures must not accumulate toward the threshold")
	assert.Equal(t, 1, r.FailureCount("srv-1"))
}

func TestRegistryResetForcesClosed(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1, RecoveryTimeout: time.Minute, MonitoringPeriod: time.Minute}, nil)

	r.OnFailure("srv-1", errors.New("x"))
	assert.Equal(t, StateOpen, r.State("srv-1"))

	r.Reset("srv-1")

	assert.Equal(t, StateClosed, r.State("srv-1"))
	assert.Equal(t, 0, r.FailureCount("srv-1"))
	assert.True(t, r.CanExecute("srv-1"))
}

func TestDefaultConfigUsesDocumentedThresholds(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.Threshold)
	assert.Equal(t, 60*time.Second, cfg.RecoveryTimeout)
	assert.Equal(t, 5*time.Minute, cfg.MonitoringPeriod)
}

func requireCanExecute(t *testing.T, r *Registry, key string) {
	t.Helper()
	if !r.CanExecute(key) {
		t.Fatalf("expected %s to admit an attempt", key)
	}
}
