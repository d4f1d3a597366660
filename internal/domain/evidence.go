package domain

import (
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// EvidenceTag classifies an evidence item.
type EvidenceTag string

const (
	EvidenceLog           EvidenceTag = "log"
	EvidenceCommandOutput EvidenceTag = "command-output"
	EvidenceFileContent   EvidenceTag = "file-content"
	EvidenceSystemInfo    EvidenceTag = "system-info"
)

// EvidenceItem is append-only per incident; Signature is content-derived so
// the Evidence Sink can de-duplicate by (incidentID, signature).
type EvidenceItem struct {
	Tag         EvidenceTag `validate:"required"`
	Description string      `validate:"required"`
	Content     string
	Signature   string
	Timestamp   time.Time
	Metadata    map[string]string
}

// NewEvidenceItem stamps Signature and Timestamp from Content.
func NewEvidenceItem(tag EvidenceTag, description, content string, metadata map[string]string, now time.Time) EvidenceItem {
	return EvidenceItem{
		Tag:         tag,
		Description: description,
		Content:     content,
		Signature:   GenerateSignature(content),
		Timestamp:   now,
		Metadata:    metadata,
	}
}

// GenerateSignature derives a 32-char base64 signature from the first 24
// bytes of a SHA-256 digest of content.
func GenerateSignature(content string) string {
	sum := sha256.Sum256([]byte(content))
	return base64.StdEncoding.EncodeToString(sum[:24])
}
