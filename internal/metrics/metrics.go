// Package metrics exposes audit and backup activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cav-go/internal/cav"
)

// Metrics owns a private registry so several instances can coexist in one
// process (tests, embedded use).
type Metrics struct {
	registry *prometheus.Registry

	EventsTotal      *prometheus.CounterVec
	BackupsTotal     *prometheus.CounterVec
	BackupSizeBytes  *prometheus.HistogramVec
	BackupDuration   prometheus.Histogram
	RestoresTotal    *prometheus.CounterVec
	RestoredBuckets  prometheus.Counter
	RestoreErrors    prometheus.Counter
	AlertsTotal      *prometheus.CounterVec
	LastBackupTime   *prometheus.GaugeVec
	AuditLogCapacity prometheus.Gauge
}

var _ cav.Recorder = (*Metrics)(nil)

// New creates the metric set on a fresh registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cav_audit_events_total",
				Help: "Total number of audit events recorded",
			},
			[]string{"category", "severity"},
		),
		BackupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cav_backups_total",
				Help: "Total number of backup attempts by type and outcome",
			},
			[]string{"type", "status"},
		),
		BackupSizeBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cav_backup_size_bytes",
				Help:    "Serialized payload size of completed backups",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB .. 256MiB
			},
			[]string{"type"},
		),
		BackupDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cav_backup_duration_seconds",
				Help:    "Duration of backup creation in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		RestoresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cav_restores_total",
				Help: "Total number of restore attempts by result",
			},
			[]string{"success"},
		),
		RestoredBuckets: f.NewCounter(
			prometheus.CounterOpts{
				Name: "cav_restored_buckets_total",
				Help: "Total number of buckets written by restores",
			},
		),
		RestoreErrors: f.NewCounter(
			prometheus.CounterOpts{
				Name: "cav_restore_bucket_errors_total",
				Help: "Total number of bucket writes that failed during restores",
			},
		),
		AlertsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cav_suspicious_activity_alerts_total",
				Help: "Total number of suspicious activity alerts raised",
			},
			[]string{"type"},
		),
		LastBackupTime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cav_last_backup_timestamp_seconds",
				Help: "Unix time of the last completed backup by type",
			},
			[]string{"type"},
		),
		AuditLogCapacity: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "cav_audit_log_capacity",
				Help: "Configured maximum number of retained audit events",
			},
		),
	}
}

// Registry returns the registry metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEvent counts an appended audit event. It has the cav.Listener
// signature and is registered with AuditLog.Subscribe.
func (m *Metrics) ObserveEvent(_ context.Context, ev cav.AuditEvent) error {
	m.EventsTotal.WithLabelValues(string(ev.Category), string(ev.Severity)).Inc()
	return nil
}

// WatchAuditLog subscribes to log and records its capacity.
func (m *Metrics) WatchAuditLog(log *cav.AuditLog) (unsubscribe func()) {
	m.AuditLogCapacity.Set(float64(log.Capacity()))
	return log.Subscribe(m.ObserveEvent)
}

func (m *Metrics) BackupCompleted(t cav.BackupType, sizeBytes int, elapsed time.Duration) {
	m.BackupsTotal.WithLabelValues(string(t), string(cav.BackupStatusCompleted)).Inc()
	m.BackupSizeBytes.WithLabelValues(string(t)).Observe(float64(sizeBytes))
	m.BackupDuration.Observe(elapsed.Seconds())
	m.LastBackupTime.WithLabelValues(string(t)).SetToCurrentTime()
}

func (m *Metrics) BackupFailed(t cav.BackupType) {
	m.BackupsTotal.WithLabelValues(string(t), string(cav.BackupStatusFailed)).Inc()
}

func (m *Metrics) RestoreFinished(report *cav.RestoreReport) {
	m.RestoresTotal.WithLabelValues(strconv.FormatBool(report.Success)).Inc()
	m.RestoredBuckets.Add(float64(len(report.RestoredBuckets)))
	m.RestoreErrors.Add(float64(len(report.Errors)))
}

func (m *Metrics) AlertRaised(a cav.Alert) {
	m.AlertsTotal.WithLabelValues(a.Type).Inc()
}
