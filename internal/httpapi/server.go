// Package httpapi exposes the audit and backup operations as a JSON REST API
// for `cav serve`.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"cav-go/internal/cav"
)

// Service is the subset of *cav.Service the API drives.
type Service interface {
	LogEvent(ctx context.Context, eventType cav.EventType, details map[string]any) (cav.AuditEvent, error)
	SearchLogs(c cav.SearchCriteria) []cav.AuditEvent
	GetStatistics(p cav.Period) cav.Stats
	DetectSuspiciousActivity() []cav.Alert
	ExportLogs(ctx context.Context, format cav.LogFormat, c cav.SearchCriteria) ([]byte, error)
	CleanupOldLogs(ctx context.Context, retentionDays int) (int, error)
	VerifyLogChain() (int, error)

	CreateFullBackup(ctx context.Context, description string, includeAuditLog bool) (*cav.Backup, error)
	CreatePartialBackup(ctx context.Context, buckets []string, description string) (*cav.Backup, error)
	CreateTypedBackup(ctx context.Context, t cav.BackupType, description string) (*cav.Backup, error)
	GetAllBackups() []*cav.Backup
	GetBackupByID(id string) (*cav.Backup, error)
	DeleteBackup(ctx context.Context, id string) (bool, error)
	CleanupOldBackups(ctx context.Context, retentionDays int) (int, error)
	RestoreFromBackup(ctx context.Context, id string, opts cav.RestoreOptions) (*cav.RestoreReport, error)
	ExportBackup(ctx context.Context, id string, format cav.ExportFormat) (*cav.ExportFile, error)
	ImportBackup(ctx context.Context, contents []byte, opts cav.ImportOptions) (*cav.Backup, error)
}

var _ Service = (*cav.Service)(nil)

// Unlocker turns a passphrase into a DecryptionContext for encrypted imports.
type Unlocker interface {
	Unlock(passphrase string) (cav.DecryptionContext, error)
}

// Config tunes the router.
type Config struct {
	// RateLimit is the number of requests allowed per client IP per minute.
	// Zero disables limiting.
	RateLimit int

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler

	// Unlocker, when set, allows age-encrypted imports using the passphrase
	// sent in the X-Cav-Passphrase header.
	Unlocker Unlocker

	// MaxImportBytes caps import request bodies. Zero selects 64 MiB.
	MaxImportBytes int64
}

const defaultMaxImportBytes = 64 << 20

// Handler serves the REST API.
type Handler struct {
	svc    Service
	logger *slog.Logger
	config Config
}

// New creates a Handler.
func New(svc Service, logger *slog.Logger, config Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxImportBytes <= 0 {
		config.MaxImportBytes = defaultMaxImportBytes
	}
	return &Handler{svc: svc, logger: logger, config: config}
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.config.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if h.config.RateLimit > 0 {
			r.Use(httprate.LimitByIP(h.config.RateLimit, time.Minute))
		}
		r.Use(withActor)
		r.Use(withEventContext)

		r.Route("/audit", func(r chi.Router) {
			r.Post("/events", h.handleLogEvent)
			r.Get("/events", h.handleSearchLogs)
			r.Get("/stats", h.handleStatistics)
			r.Get("/alerts", h.handleAlerts)
			r.Get("/export", h.handleExportLogs)
			r.Post("/cleanup", h.handleCleanupLogs)
			r.Get("/verify", h.handleVerifyChain)
		})

		r.Route("/backups", func(r chi.Router) {
			r.Get("/", h.handleListBackups)
			r.Post("/", h.handleCreateBackup)
			r.Post("/import", h.handleImportBackup)
			r.Post("/cleanup", h.handleCleanupBackups)
			r.Get("/{id}", h.handleGetBackup)
			r.Delete("/{id}", h.handleDeleteBackup)
			r.Post("/{id}/restore", h.handleRestoreBackup)
			r.Get("/{id}/export", h.handleExportBackup)
		})
	})
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("panic in handler", "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
