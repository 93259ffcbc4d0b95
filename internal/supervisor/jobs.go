package supervisor

import (
	"context"
	"fmt"
	"time"

	"cav-go/internal/cav"
)

// schedulerActor attributes events recorded by scheduled jobs.
var schedulerActor = cav.Actor{UserID: "system", UserName: "scheduler", UserRole: "system"}

// Job runs a function every interval until its context is cancelled. A failed
// run is logged and retried on the next tick rather than restarting the job.
type Job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
	logger   cav.Logger
}

// NewJob creates a Job. interval must be positive.
func NewJob(name string, interval time.Duration, logger cav.Logger, run func(ctx context.Context) error) (*Job, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("job %s: interval must be positive, got %s", name, interval)
	}
	return &Job{name: name, interval: interval, run: run, logger: logger}, nil
}

// Serve implements suture.Service.
func (j *Job) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("job scheduled", "job", j.name, "interval", j.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := j.run(cav.WithActor(ctx, schedulerActor, "")); err != nil {
				j.logger.Error("job failed", "job", j.name, "error", err)
				continue
			}
			j.logger.Debug("job finished", "job", j.name, "elapsed", time.Since(start))
		}
	}
}

func (j *Job) String() string { return j.name }

// BackupCreator creates full backups.
type BackupCreator interface {
	CreateFullBackup(ctx context.Context, description string, includeAuditLog bool) (*cav.Backup, error)
}

// NewScheduledBackupJob creates a job that takes a full backup every interval.
func NewScheduledBackupJob(svc BackupCreator, interval time.Duration, includeAuditLog bool, logger cav.Logger) (*Job, error) {
	return NewJob("scheduled-backup", interval, logger, func(ctx context.Context) error {
		b, err := svc.CreateFullBackup(ctx, "Scheduled full backup", includeAuditLog)
		if err != nil {
			return err
		}
		logger.Info("scheduled backup created", "backupID", b.ID, "size", b.Size)
		return nil
	})
}

// RetentionCleaner removes audit events and backups past their retention.
type RetentionCleaner interface {
	CleanupOldLogs(ctx context.Context, retentionDays int) (int, error)
	CleanupOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// NewRetentionJob creates a job that applies both retention windows every
// interval. Backup cleanup still runs when the audit sweep fails.
func NewRetentionJob(svc RetentionCleaner, interval time.Duration, auditDays, backupDays int, logger cav.Logger) (*Job, error) {
	return NewJob("retention-cleanup", interval, logger, func(ctx context.Context) error {
		events, logErr := svc.CleanupOldLogs(ctx, auditDays)
		if logErr != nil {
			logErr = fmt.Errorf("audit log cleanup: %w", logErr)
		}
		backups, err := svc.CleanupOldBackups(ctx, backupDays)
		if err != nil {
			return fmt.Errorf("backup cleanup: %w", err)
		}
		if logErr != nil {
			return logErr
		}
		logger.Info("retention cleanup finished", "eventsRemoved", events, "backupsRemoved", backups)
		return nil
	})
}
