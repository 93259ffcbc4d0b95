package cav

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Skip reasons recorded on a RestoreReport.
const (
	SkipExcluded      = "excluded by request"
	SkipExistingData  = "existing data not overwritten"
	SkipUnknownBucket = "not a registered bucket"
)

// interruptedBucket marks the placeholder error a report carries until the
// restore runs to completion.
const interruptedBucket = "*"

// ErrRestoreInterrupted is the placeholder error on a report whose restore did
// not run to completion.
var ErrRestoreInterrupted = errors.New("restore interrupted before completion")

// RestoreOptions controls which buckets a restore writes.
type RestoreOptions struct {
	OverwriteExisting     bool     `json:"overwriteExisting"`
	ExcludeBuckets        []string `json:"excludeBuckets"`
	SnapshotBeforeRestore bool     `json:"snapshotBeforeRestore"`
}

// SkippedBucket is a bucket the restore deliberately did not write.
type SkippedBucket struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// RestoreReport is the outcome of one restore attempt. It is returned to the
// caller and never persisted.
type RestoreReport struct {
	BackupID           string          `json:"backupId"`
	StartTime          time.Time       `json:"startTime"`
	EndTime            time.Time       `json:"endTime"`
	RestoredBuckets    []string        `json:"restoredBuckets"`
	SkippedBuckets     []SkippedBucket `json:"skippedBuckets"`
	Errors             []BucketError   `json:"errors"`
	PreRestoreBackupID string          `json:"preRestoreBackupId,omitempty"`
	Success            bool            `json:"success"`
}

// SkippedNames returns the names of the skipped buckets.
func (r *RestoreReport) SkippedNames() []string {
	names := make([]string, len(r.SkippedBuckets))
	for i, s := range r.SkippedBuckets {
		names[i] = s.Name
	}
	return names
}

// Err returns a PartialFailureError when any bucket failed, or nil.
func (r *RestoreReport) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &PartialFailureError{Failed: slices.Clone(r.Errors)}
}

func (r *RestoreReport) clearInterrupted() {
	r.Errors = slices.DeleteFunc(r.Errors, func(e BucketError) bool {
		return e.Bucket == interruptedBucket
	})
}

// RestoreFromBackup writes a backup's buckets back into the store.
//
// A missing backup yields a NotFoundError, a backup that never completed a
// ValidationError and a checksum mismatch an IntegrityError; in each case
// nothing is written and no safety snapshot is taken. Per-bucket write failures
// do not stop the remaining buckets and are reported on the returned report
// (see RestoreReport.Err) rather than as the error. A BACKUP_RESTORED event is
// recorded for every attempt.
func (s *Service) RestoreFromBackup(ctx context.Context, id string, opts RestoreOptions) (report *RestoreReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report = &RestoreReport{
		BackupID:        id,
		StartTime:       s.clock.Now(),
		RestoredBuckets: []string{},
		SkippedBuckets:  []SkippedBucket{},
		Errors:          []BucketError{{Bucket: interruptedBucket, Message: ErrRestoreInterrupted.Error()}},
	}
	defer func() {
		report.EndTime = s.clock.Now()
		if err != nil {
			report.Success = false
		}
		s.recordRestore(ctx, report, err)
	}()

	b, err := s.backups.Get(id)
	if err != nil {
		return report, err
	}
	if err := s.checkRestorable(ctx, b); err != nil {
		return report, err
	}

	if opts.SnapshotBeforeRestore {
		snapshot, err := s.createBackupLocked(ctx, BackupTypeFull,
			fmt.Sprintf("Pre-restore safety snapshot before restoring %s", id),
			func(string) bool { return true }, id)
		if err != nil {
			return report, fmt.Errorf("creating pre-restore snapshot: %w", err)
		}
		report.PreRestoreBackupID = snapshot.ID
	}

	excluded := make(map[string]bool, len(opts.ExcludeBuckets))
	for _, name := range opts.ExcludeBuckets {
		excluded[name] = true
	}

	for _, name := range sortedKeys(b.Data) {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("restore cancelled: %w", err)
		}
		switch {
		case excluded[name]:
			report.SkippedBuckets = append(report.SkippedBuckets, SkippedBucket{Name: name, Reason: SkipExcluded})
			continue
		case !IsRegisteredBucket(name):
			report.SkippedBuckets = append(report.SkippedBuckets, SkippedBucket{Name: name, Reason: SkipUnknownBucket})
			continue
		}

		if !opts.OverwriteExisting {
			current, ok, err := s.store.Get(ctx, name)
			if err != nil {
				report.Errors = append(report.Errors, BucketError{Bucket: name, Message: fmt.Sprintf("reading current contents: %v", err)})
				continue
			}
			if ok && !isEmptyBucket(current) {
				report.SkippedBuckets = append(report.SkippedBuckets, SkippedBucket{Name: name, Reason: SkipExistingData})
				continue
			}
		}

		if err := s.store.Set(ctx, name, b.Data[name]); err != nil {
			report.Errors = append(report.Errors, BucketError{Bucket: name, Message: err.Error()})
			s.logger.Warn("restoring bucket failed", "backupID", id, "bucket", name, "error", err)
			continue
		}
		report.RestoredBuckets = append(report.RestoredBuckets, name)
	}

	if slices.Contains(report.RestoredBuckets, AuditLogBucket) {
		if err := s.audit.Load(ctx); err != nil {
			s.logger.Warn("reloading restored audit log failed", "error", err)
		}
	}

	report.clearInterrupted()
	report.Success = len(report.Errors) == 0
	return report, nil
}

// checkRestorable rejects backups that never completed and backups whose
// payload no longer matches their checksum. A completed backup failing
// verification is marked corrupted.
func (s *Service) checkRestorable(ctx context.Context, b *Backup) error {
	if b.Status == BackupStatusFailed || b.Status == BackupStatusPending || b.Status == BackupStatusInProgress {
		return NewValidationError("status", fmt.Sprintf("backup %s is %s and cannot be restored", b.ID, b.Status))
	}
	err := b.VerifyChecksum()
	if err == nil {
		return nil
	}
	var integrity *IntegrityError
	if errors.As(err, &integrity) {
		if markErr := s.backups.MarkCorrupted(ctx, b.ID); markErr != nil {
			s.logger.Warn("marking backup corrupted failed", "backupID", b.ID, "error", markErr)
		}
	}
	return err
}

// recordRestore logs, measures and audits a finished restore attempt.
func (s *Service) recordRestore(ctx context.Context, report *RestoreReport, err error) {
	details := map[string]any{
		"backupId":        report.BackupID,
		"success":         report.Success,
		"restoredBuckets": report.RestoredBuckets,
		"skippedBuckets":  report.SkippedNames(),
		"errorCount":      len(report.Errors),
	}
	if report.PreRestoreBackupID != "" {
		details["preRestoreBackupId"] = report.PreRestoreBackupID
	}
	if err != nil {
		details["error"] = err.Error()
		s.logger.Error("restore failed", "backupID", report.BackupID, "error", err)
	} else {
		s.logger.Info("restore finished", "backupID", report.BackupID,
			"restored", len(report.RestoredBuckets), "skipped", len(report.SkippedBuckets), "errors", len(report.Errors))
	}
	s.recorder.RestoreFinished(report)
	s.audit.Append(ctx, AuditEvent{EventType: EventBackupRestored, Details: details})
}
