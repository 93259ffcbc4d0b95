package cav

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// DefaultSchemaVersion is stamped into backup metadata when none is configured.
const DefaultSchemaVersion = "1.0"

// Service is the orchestration layer behind the CLI and HTTP API. It owns the
// audit log and the backup list and coordinates collection, restore and
// transfer of backups.
//
// Backup creation and restore are serialized by a single mutex, so a snapshot
// never observes a half-restored bucket.
type Service struct {
	mu sync.Mutex

	store     BucketStore
	audit     *AuditLog
	backups   *BackupStore
	collector *Collector
	encryptor Encryptor
	recorder  Recorder
	logger    Logger
	clock     Clock
	idgen     IDGenerator

	schemaVersion string
	platformInfo  string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRecorder sets the measurement sink.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithSchemaVersion sets the schema version stamped into new backups.
func WithSchemaVersion(v string) ServiceOption {
	return func(s *Service) {
		if v != "" {
			s.schemaVersion = v
		}
	}
}

// WithPlatformInfo sets the platform description stamped into new backups.
func WithPlatformInfo(p string) ServiceOption {
	return func(s *Service) {
		if p != "" {
			s.platformInfo = p
		}
	}
}

// NewService creates a Service. encryptor may be nil, in which case the age
// export format is unavailable.
func NewService(store BucketStore, audit *AuditLog, backups *BackupStore, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator, opts ...ServiceOption) *Service {
	s := &Service{
		store:         store,
		audit:         audit,
		backups:       backups,
		collector:     NewCollector(store, logger),
		encryptor:     encryptor,
		recorder:      NopRecorder{},
		logger:        logger,
		clock:         clock,
		idgen:         idgen,
		schemaVersion: DefaultSchemaVersion,
		platformInfo:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the persisted audit log and backup list.
func (s *Service) Load(ctx context.Context) error {
	if err := s.audit.Load(ctx); err != nil {
		return fmt.Errorf("loading audit log: %w", err)
	}
	if err := s.backups.Load(ctx); err != nil {
		return fmt.Errorf("loading backups: %w", err)
	}
	return nil
}

// AuditLog returns the underlying audit log.
func (s *Service) AuditLog() *AuditLog { return s.audit }

// LogEvent records an event of the given type attributed to the actor in ctx.
func (s *Service) LogEvent(ctx context.Context, eventType EventType, details map[string]any) (AuditEvent, error) {
	return s.audit.Append(ctx, AuditEvent{EventType: eventType, Details: details})
}

// GetAllLogs returns every retained event, newest first.
func (s *Service) GetAllLogs() []AuditEvent { return s.audit.All() }

// SearchLogs returns the events matching c, newest first.
func (s *Service) SearchLogs(c SearchCriteria) []AuditEvent { return s.audit.Search(c) }

// GetStatistics aggregates events over the trailing period.
func (s *Service) GetStatistics(p Period) Stats { return s.audit.Statistics(p) }

// DetectSuspiciousActivity runs the anomaly heuristics.
func (s *Service) DetectSuspiciousActivity() []Alert { return s.audit.DetectSuspiciousActivity() }

// ExportLogs serializes matching events as csv or json.
func (s *Service) ExportLogs(ctx context.Context, format LogFormat, c SearchCriteria) ([]byte, error) {
	return s.audit.ExportLogs(ctx, format, c)
}

// CleanupOldLogs removes events older than retentionDays.
func (s *Service) CleanupOldLogs(ctx context.Context, retentionDays int) (int, error) {
	return s.audit.CleanupOlderThan(ctx, retentionDays)
}

// VerifyLogChain checks the audit hash chain.
func (s *Service) VerifyLogChain() (int, error) { return s.audit.VerifyChain() }

// CreateFullBackup snapshots every registered bucket. The audit log bucket is
// included only when includeAuditLog is set.
func (s *Service) CreateFullBackup(ctx context.Context, description string, includeAuditLog bool) (*Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	include := func(name string) bool {
		return name != AuditLogBucket || includeAuditLog
	}
	return s.createBackupLocked(ctx, BackupTypeFull, description, include)
}

// CreatePartialBackup snapshots only the named buckets. Every name must be a
// registered bucket.
func (s *Service) CreatePartialBackup(ctx context.Context, buckets []string, description string) (*Backup, error) {
	if len(buckets) == 0 {
		return nil, NewValidationError("buckets", "at least one bucket is required")
	}
	wanted := make(map[string]bool, len(buckets))
	for _, b := range buckets {
		if !IsRegisteredBucket(b) {
			return nil, NewValidationError("buckets", fmt.Sprintf("unknown bucket %q", b))
		}
		wanted[b] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBackupLocked(ctx, BackupTypePartial, description, func(name string) bool { return wanted[name] })
}

// CreateTypedBackup snapshots the bucket set associated with t. Full and
// partial types are delegated to their dedicated operations.
func (s *Service) CreateTypedBackup(ctx context.Context, t BackupType, description string) (*Backup, error) {
	switch t {
	case BackupTypeFull:
		return s.CreateFullBackup(ctx, description, false)
	case BackupTypePartial:
		return nil, NewValidationError("type", "partial backups require an explicit bucket list")
	}
	set := BucketsForType(t)
	if set == nil {
		return nil, NewValidationError("type", fmt.Sprintf("unknown backup type %q", t))
	}
	wanted := make(map[string]bool, len(set))
	for _, b := range set {
		wanted[b] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBackupLocked(ctx, t, description, func(name string) bool { return wanted[name] })
}

// createBackupLocked runs one backup through pending, in_progress and
// completed or failed. A failed backup is returned alongside the error and is
// not stored. Backups listed in keep survive any capacity eviction the new
// backup causes. The caller must hold s.mu.
func (s *Service) createBackupLocked(ctx context.Context, t BackupType, description string, include func(string) bool, keep ...string) (*Backup, error) {
	start := s.clock.Now()
	actor, _ := ActorFromContext(ctx)
	createdBy := actor.UserName
	if createdBy == "" {
		createdBy = actor.UserID
	}

	b := &Backup{
		ID:          s.idgen.New(),
		Type:        t,
		Status:      BackupStatusPending,
		Timestamp:   start,
		Description: description,
		Metadata: BackupMetadata{
			SchemaVersion: s.schemaVersion,
			PlatformInfo:  s.platformInfo,
			CreatedBy:     createdBy,
		},
	}
	if err := b.transition(BackupStatusInProgress); err != nil {
		return nil, err
	}

	fail := func(err error) (*Backup, error) {
		b.fail(err)
		s.recorder.BackupFailed(t)
		s.logger.Error("backup failed", "backupID", b.ID, "type", t, "error", err)
		return b, err
	}

	payload, names, err := s.collector.Collect(ctx, include)
	if err != nil {
		return fail(fmt.Errorf("collecting buckets: %w", err))
	}
	checksum, size, err := Checksum(payload)
	if err != nil {
		return fail(fmt.Errorf("serializing payload: %w", err))
	}
	b.Data = payload
	b.Size = size
	b.Checksum = checksum
	b.Metadata.IncludedBuckets = names

	completed := b.clone()
	if err := completed.transition(BackupStatusCompleted); err != nil {
		return fail(err)
	}
	if _, err := s.backups.Add(ctx, completed, keep...); err != nil {
		return fail(fmt.Errorf("storing backup: %w", err))
	}

	elapsed := s.clock.Now().Sub(start)
	s.recorder.BackupCompleted(t, size, elapsed)
	s.logger.Info("backup created", "backupID", b.ID, "type", t, "buckets", len(names), "size", size)
	s.audit.Append(ctx, AuditEvent{
		EventType: EventBackupCreated,
		Details: map[string]any{
			"backupId":    b.ID,
			"backupType":  string(t),
			"size":        size,
			"buckets":     names,
			"description": description,
		},
	})
	return completed, nil
}

// GetAllBackups returns every stored backup, newest first.
func (s *Service) GetAllBackups() []*Backup { return s.backups.List() }

// GetBackupByID returns the backup with the given ID, marked corrupted if its
// checksum no longer verifies.
func (s *Service) GetBackupByID(id string) (*Backup, error) { return s.backups.Get(id) }

// DeleteBackup removes a backup and reports whether it existed.
func (s *Service) DeleteBackup(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.backups.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("backup deleted", "backupID", id)
		s.audit.Append(ctx, AuditEvent{
			EventType: EventBackupDeleted,
			Details:   map[string]any{"backupId": id},
		})
	}
	return deleted, nil
}

// CleanupOldBackups removes non-full backups older than retentionDays.
func (s *Service) CleanupOldBackups(ctx context.Context, retentionDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.backups.CleanupOlderThan(ctx, retentionDays)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("old backups removed", "removed", removed, "retentionDays", retentionDays)
		s.audit.Append(ctx, AuditEvent{
			EventType: EventBackupDeleted,
			Details: map[string]any{
				"removedCount":  removed,
				"retentionDays": retentionDays,
				"reason":        "retention",
			},
		})
	}
	return removed, nil
}

