package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"cav-go/internal/cav"
)

func TestMetrics_Recorder(t *testing.T) {
	m := New()

	m.BackupCompleted(cav.BackupTypeFull, 4096, 250*time.Millisecond)
	m.BackupCompleted(cav.BackupTypeFull, 8192, time.Second)
	m.BackupFailed(cav.BackupTypePartial)
	m.RestoreFinished(&cav.RestoreReport{
		RestoredBuckets: []string{"patients", "settings"},
		Errors:          []cav.BucketError{{Bucket: "invoices", Message: "disk full"}},
	})
	m.AlertRaised(cav.Alert{Type: cav.AlertMultipleFailedLogins})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"completed full backups", testutil.ToFloat64(m.BackupsTotal.WithLabelValues("full", "completed")), 2},
		{"failed partial backups", testutil.ToFloat64(m.BackupsTotal.WithLabelValues("partial", "failed")), 1},
		{"failed restores", testutil.ToFloat64(m.RestoresTotal.WithLabelValues("false")), 1},
		{"restored buckets", testutil.ToFloat64(m.RestoredBuckets), 2},
		{"restore errors", testutil.ToFloat64(m.RestoreErrors), 1},
		{"alerts", testutil.ToFloat64(m.AlertsTotal.WithLabelValues(cav.AlertMultipleFailedLogins)), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestMetrics_ObserveEvent(t *testing.T) {
	m := New()
	ctx := context.Background()
	m.ObserveEvent(ctx, cav.AuditEvent{Category: cav.CategorySecurity, Severity: cav.SeverityCritical})
	m.ObserveEvent(ctx, cav.AuditEvent{Category: cav.CategorySecurity, Severity: cav.SeverityCritical})
	m.ObserveEvent(ctx, cav.AuditEvent{Category: cav.CategorySystem, Severity: cav.SeverityLow})

	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("security", "critical")); got != 2 {
		t.Errorf("security/critical = %v, want 2", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.BackupFailed(cav.BackupTypeConfiguration)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `cav_backups_total{status="failed",type="configuration"} 1`) {
		t.Errorf("exposition missing backup counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition missing runtime metrics")
	}
}

func TestMetrics_Lint(t *testing.T) {
	m := New()
	m.BackupCompleted(cav.BackupTypeFull, 1, time.Millisecond)
	problems, err := testutil.GatherAndLint(m.Registry())
	if err != nil {
		t.Fatalf("GatherAndLint() error = %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint: %s: %s", p.Metric, p.Text)
	}
}
