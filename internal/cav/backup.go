package cav

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// BackupType describes which buckets a backup captures.
type BackupType string

const (
	BackupTypeFull          BackupType = "full"
	BackupTypePartial       BackupType = "partial"
	BackupTypeConfiguration BackupType = "configuration"
	BackupTypeUserData      BackupType = "user_data"
	BackupTypeMedicalData   BackupType = "medical_data"
	BackupTypeAuditLogs     BackupType = "audit_logs"
)

// IsValid reports whether t is one of the known backup types.
func (t BackupType) IsValid() bool {
	switch t {
	case BackupTypeFull, BackupTypePartial, BackupTypeConfiguration,
		BackupTypeUserData, BackupTypeMedicalData, BackupTypeAuditLogs:
		return true
	}
	return false
}

// BackupStatus is the lifecycle state of a backup.
type BackupStatus string

const (
	BackupStatusPending    BackupStatus = "pending"
	BackupStatusInProgress BackupStatus = "in_progress"
	BackupStatusCompleted  BackupStatus = "completed"
	BackupStatusFailed     BackupStatus = "failed"
	BackupStatusCorrupted  BackupStatus = "corrupted"
)

// IsValid reports whether s is one of the known statuses.
func (s BackupStatus) IsValid() bool {
	switch s {
	case BackupStatusPending, BackupStatusInProgress, BackupStatusCompleted,
		BackupStatusFailed, BackupStatusCorrupted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s BackupStatus) IsTerminal() bool {
	return s == BackupStatusCompleted || s == BackupStatusFailed || s == BackupStatusCorrupted
}

// allowedTransitions lists the legal next states for each non-terminal status.
// corrupted is only reachable from completed, when a later read fails
// verification.
var allowedTransitions = map[BackupStatus][]BackupStatus{
	BackupStatusPending:    {BackupStatusInProgress, BackupStatusFailed},
	BackupStatusInProgress: {BackupStatusCompleted, BackupStatusFailed},
	BackupStatusCompleted:  {BackupStatusCorrupted},
}

// BackupMetadata describes how and where a backup was produced.
type BackupMetadata struct {
	SchemaVersion   string   `json:"version"`
	PlatformInfo    string   `json:"platformInfo,omitempty"`
	CreatedBy       string   `json:"createdBy,omitempty"`
	IncludedBuckets []string `json:"includedBuckets"`
}

// Backup is a checksummed snapshot of one or more buckets.
type Backup struct {
	ID          string                     `json:"id" validate:"required"`
	Type        BackupType                 `json:"type" validate:"required"`
	Status      BackupStatus               `json:"status"`
	Timestamp   time.Time                  `json:"timestamp" validate:"required"`
	Description string                     `json:"description"`
	Data        map[string]json.RawMessage `json:"data" validate:"required"`
	Size        int                        `json:"size"`
	Checksum    string                     `json:"checksum" validate:"required"`
	Metadata    BackupMetadata             `json:"metadata"`
	Imported    bool                       `json:"imported,omitempty"`
	ImportedAt  *time.Time                 `json:"importedAt,omitempty"`
	Error       string                     `json:"error,omitempty"`
}

// transition moves b to next, rejecting moves the state machine forbids.
func (b *Backup) transition(next BackupStatus) error {
	for _, s := range allowedTransitions[b.Status] {
		if s == next {
			b.Status = next
			return nil
		}
	}
	return fmt.Errorf("backup %s: illegal status transition %s -> %s", b.ID, b.Status, next)
}

// fail moves b to failed and records the cause.
func (b *Backup) fail(cause error) {
	if err := b.transition(BackupStatusFailed); err == nil {
		b.Error = cause.Error()
	}
}

// VerifyChecksum recomputes the payload digest and compares it with the stored
// checksum.
func (b *Backup) VerifyChecksum() error {
	actual, _, err := Checksum(b.Data)
	if err != nil {
		return fmt.Errorf("computing checksum: %w", err)
	}
	if actual != b.Checksum {
		return &IntegrityError{BackupID: b.ID, Expected: b.Checksum, Actual: actual}
	}
	return nil
}

// clone returns a copy of b that shares no mutable state with it.
func (b *Backup) clone() *Backup {
	out := *b
	if b.Data != nil {
		out.Data = make(map[string]json.RawMessage, len(b.Data))
		for k, v := range b.Data {
			out.Data[k] = append(json.RawMessage(nil), v...)
		}
	}
	out.Metadata.IncludedBuckets = append([]string(nil), b.Metadata.IncludedBuckets...)
	if b.ImportedAt != nil {
		t := *b.ImportedAt
		out.ImportedAt = &t
	}
	return &out
}
