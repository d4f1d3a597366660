// Package ports declares the capability interfaces the core consumes from
// externally-owned systems: the incident source, server directory, evidence
// sink, backup service, verification service, and escalation sink. None of
// these are implemented against a real backend here — the HTTP surface,
// persistence driver, queue broker, and paging system stay outside this
// module. This package ships only the interfaces plus in-memory reference
// implementations used by tests and the CLI's serve subcommand.
package ports

import (
	"context"

	"github.com/wp-autohealer/engine/internal/domain"
)

// IncidentCreated is what an Incident Source delivers when a new incident is
// raised upstream.
type IncidentCreated struct {
	IncidentID    string
	SiteID        string
	ServerID      string
	SitePath      string
	WPPath        string
	Domain        string
	CorrelationID string
	TraceID       string
	Metadata      map[string]string
}

// IncidentSource delivers newly-raised incidents to the engine.
type IncidentSource interface {
	// Next blocks until an incident is available or ctx is cancelled.
	Next(ctx context.Context) (IncidentCreated, error)
}

// Server is the directory record the engine needs to open an SSH session.
type Server struct {
	Hostname              string
	Port                  int
	Username              string
	AuthType              string
	EncryptedCredentials  string
	HostKeyFingerprint    string
}

// ServerDirectory resolves a server-id to its connection record.
type ServerDirectory interface {
	GetServer(ctx context.Context, serverID string) (Server, error)
}

// EvidenceSink appends evidence to an incident's record. Idempotent by
// (incidentID, signature).
type EvidenceSink interface {
	Append(ctx context.Context, incidentID string, item domain.EvidenceItem) error
}

// BackupService creates and restores file backups on behalf of playbooks.
type BackupService interface {
	CreateFileBackup(ctx context.Context, incidentID, serverID, path string, meta map[string]string) (backupPath string, err error)
	Restore(ctx context.Context, backupPath, target string) (bool, error)
}

// HealthReport is the Verification Service's site-health assessment.
type HealthReport struct {
	Healthy bool
	Issues  []string
}

// VerificationService probes a site for health after a fix is applied.
type VerificationService interface {
	VerifySiteHealth(ctx context.Context, site string) (HealthReport, error)
	Probe(ctx context.Context, url string) (httpStatus int, err error)
}

// EscalationSink hands an incident to a human when the engine cannot (or
// should not) continue automated remediation.
type EscalationSink interface {
	Escalate(ctx context.Context, incidentID, reason string, evidence []domain.EvidenceItem) error
}
