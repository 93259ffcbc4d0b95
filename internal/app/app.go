package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cav-go/internal/alerting"
	"cav-go/internal/bus"
	"cav-go/internal/cav"
	"cav-go/internal/config"
	"cav-go/internal/encryption"
	"cav-go/internal/httpapi"
	"cav-go/internal/metrics"
	"cav-go/internal/storage"
	"cav-go/internal/supervisor"
)

// Options tunes NewCavApp.
type Options struct {
	// LogLevel is the minimum level written to the log. Nil means INFO.
	LogLevel slog.Leveler
}

// CavApp is the application layer between the CLI and cav.Service.
// It constructs all dependencies from config, attributes every operation to
// a Session, and releases storage and the log file on Close.
type CavApp struct {
	cfg       *config.Config
	store     cav.BucketStore
	encryptor cav.Encryptor
	service   *cav.Service
	metrics   *metrics.Metrics
	bus       *bus.Bus
	logger    *slog.Logger
	session   *Session
	logFile   *os.File
	detach    []func()
}

// NewCavApp creates a fully wired CavApp from the given config.
// operation identifies the CLI command being run (e.g. "backup create").
// The caller must call Close when done.
func NewCavApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*CavApp, error) {
	if opts.LogLevel == nil {
		opts.LogLevel = slog.LevelInfo
	}
	session := NewSession(operation)

	logger, logFile, err := newLogger(cfg.LogDir, session.ID, opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}
	clock := cav.RealClock{}
	idgen := cav.UUIDGenerator{}

	store, err := storage.NewFromConfig(ctx, cfg.Storage, cfg.InstanceID, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating bucket store: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	m := metrics.New()
	audit := cav.NewAuditLog(store, adapter, clock, idgen,
		cav.WithCapacity(cfg.Audit.Capacity),
		cav.WithLocation(cfg.Location()),
		cav.WithThresholds(thresholdsFromConfig(cfg.Audit.Thresholds)),
	)
	backups := cav.NewBackupStore(store, adapter, clock, cfg.Backup.Capacity)
	svc := cav.NewService(store, audit, backups, enc, adapter, clock, idgen,
		cav.WithRecorder(m),
		cav.WithSchemaVersion(cfg.Backup.SchemaVersion),
	)
	if err := svc.Load(ctx); err != nil {
		store.Close()
		logFile.Close()
		return nil, err
	}

	b := bus.New(logger)
	a := &CavApp{
		cfg:       cfg,
		store:     store,
		encryptor: enc,
		service:   svc,
		metrics:   m,
		bus:       b,
		logger:    logger,
		session:   session,
		logFile:   logFile,
	}
	a.detach = append(a.detach, m.WatchAuditLog(audit), b.Attach(audit))
	logger.Debug("app initialized", "operation", operation, "storage", cfg.Storage.Type, "instance", cfg.InstanceID)
	return a, nil
}

func thresholdsFromConfig(t config.ThresholdsConfig) cav.Thresholds {
	return cav.Thresholds{
		Window:           t.Window.Std(),
		FailedLogins:     t.FailedLogins,
		DistinctPatients: t.DistinctPatients,
		OffHoursEvents:   t.OffHoursEvents,
		WorkdayStartHour: t.WorkdayStartHour,
		WorkdayEndHour:   t.WorkdayEndHour,
	}
}

// Service returns the wired service.
func (a *CavApp) Service() *cav.Service { return a.service }

// Config returns the loaded configuration.
func (a *CavApp) Config() *config.Config { return a.cfg }

// Session returns the session attributed to this invocation.
func (a *CavApp) Session() *Session { return a.session }

// Context returns ctx carrying the session's actor and event context.
func (a *CavApp) Context(ctx context.Context) context.Context {
	return a.session.Context(ctx)
}

// SetupEncryption generates the age key pair protected by passphrase.
func (a *CavApp) SetupEncryption(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}

// Unlock unlocks the private key for importing encrypted backups.
func (a *CavApp) Unlock(passphrase string) (cav.DecryptionContext, error) {
	if !a.encryptor.IsConfigured() {
		return nil, errors.New("encryption keys are not configured; run `cav config init`")
	}
	return a.encryptor.Unlock(passphrase)
}

// Serve runs the alert watcher, the scheduled backup and retention jobs and
// the HTTP API under a supervisor tree until ctx is cancelled.
func (a *CavApp) Serve(ctx context.Context) error {
	tree := supervisor.NewTree(a.logger, supervisor.DefaultTreeConfig())
	adapter := &slogAdapter{l: a.logger}

	tree.AddEventService(alerting.NewWatcher(a.bus, a.service, a.metrics, adapter, cav.RealClock{}, a.cfg.Server.AlertCooldown.Std()))

	backupJob, err := supervisor.NewScheduledBackupJob(a.service, a.cfg.Backup.ScheduleInterval.Std(), a.cfg.Backup.IncludeAuditLog, adapter)
	if err != nil {
		return err
	}
	tree.AddJobService(backupJob)

	retentionJob, err := supervisor.NewRetentionJob(a.service, a.cfg.Audit.CleanupInterval.Std(), a.cfg.Audit.RetentionDays, a.cfg.Backup.RetentionDays, adapter)
	if err != nil {
		return err
	}
	tree.AddJobService(retentionJob)

	api := httpapi.New(a.service, a.logger, httpapi.Config{
		RateLimit: a.cfg.Server.RateLimit,
		Metrics:   a.metrics.Handler(),
		Unlocker:  a.encryptor,
	})
	server := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))

	a.logger.Info("serving", "addr", a.cfg.Server.ListenAddr)
	err = tree.Serve(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close detaches listeners and closes the bus, the bucket store and the log
// file. It returns the first error encountered.
func (a *CavApp) Close() error {
	var firstErr error
	for _, fn := range a.detach {
		fn()
	}
	if err := a.bus.Close(); err != nil {
		firstErr = fmt.Errorf("closing event bus: %w", err)
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing bucket store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
