package httpapi_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"cav-go/internal/cav"
	"cav-go/internal/encryption"
	"cav-go/internal/httpapi"
	"cav-go/internal/testutil"
)

const firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

func newTestAPI(t *testing.T, cfg httpapi.Config, svcCfg testutil.TestServiceConfig) (*testutil.TestService, http.Handler) {
	t.Helper()
	ts := testutil.NewTestService(t, svcCfg)
	testutil.SeedBuckets(t, ts.Memory, map[string]string{
		cav.BucketPatients: `[{"id":"p1"},{"id":"p2"}]`,
		cav.BucketSettings: `{"language":"fr"}`,
	})
	return ts, httpapi.New(ts.Service, nil, cfg).Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.10:4000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	_, h := newTestAPI(t, httpapi.Config{}, testutil.TestServiceConfig{})
	rec := do(t, h, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestLogEvent(t *testing.T) {
	_, h := newTestAPI(t, httpapi.Config{}, testutil.TestServiceConfig{})

	t.Run("attributes to identity headers", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/audit/events",
			map[string]any{"eventType": "PATIENT_VIEWED", "details": map[string]any{"patientId": "p1"}},
			map[string]string{
				httpapi.HeaderUserID:    "u1",
				httpapi.HeaderUserName:  "Alice",
				httpapi.HeaderUserRole:  "doctor",
				httpapi.HeaderSessionID: "s-42",
				"User-Agent":            firefoxUA,
				"Accept-Language":       "fr-FR,fr;q=0.9",
			})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		ev := decode[cav.AuditEvent](t, rec)
		if ev.Actor.UserName != "Alice" || ev.SessionID != "s-42" {
			t.Errorf("actor = %+v session = %q", ev.Actor, ev.SessionID)
		}
		if ev.Category != cav.CategoryPatientData {
			t.Errorf("Category = %s, want patient_data", ev.Category)
		}
		if ev.Context.Locale != "fr-FR" {
			t.Errorf("Locale = %q, want fr-FR", ev.Context.Locale)
		}
		if !strings.Contains(ev.Context.Platform, "Firefox") {
			t.Errorf("Platform = %q, want it to mention Firefox", ev.Context.Platform)
		}
		if ev.Context.URL != "/api/audit/events" {
			t.Errorf("URL = %q", ev.Context.URL)
		}
	})

	t.Run("anonymous without identity", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/audit/events", map[string]any{"eventType": "LOGOUT"}, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		if ev := decode[cav.AuditEvent](t, rec); ev.Actor != cav.AnonymousActor {
			t.Errorf("Actor = %+v, want anonymous", ev.Actor)
		}
	})

	t.Run("missing type is rejected", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/audit/events", map[string]any{}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		body := decode[map[string]string](t, rec)
		if body["field"] != "eventType" {
			t.Errorf("field = %q, want eventType", body["field"])
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/audit/events", "{not json", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestSearchAndExportLogs(t *testing.T) {
	ts, h := newTestAPI(t, httpapi.Config{}, testutil.TestServiceConfig{})
	ts.LogEvent(testutil.ActorContext("u1", "Alice", "doctor"), cav.EventPatientViewed, map[string]any{"patientId": "p1"})
	ts.LogEvent(testutil.ActorContext("u2", "Bob", "nurse"), cav.EventLoginFailed, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{name: "all", query: "", wantStatus: http.StatusOK, wantCount: 2},
		{name: "by user", query: "?userId=u2", wantStatus: http.StatusOK, wantCount: 1},
		{name: "by text", query: "?searchText=alice", wantStatus: http.StatusOK, wantCount: 1},
		{name: "limit", query: "?limit=1", wantStatus: http.StatusOK, wantCount: 1},
		{name: "bad date", query: "?startDate=yesterday", wantStatus: http.StatusBadRequest},
		{name: "bad limit", query: "?limit=-3", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/audit/events"+tt.query, nil, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if got := decode[[]cav.AuditEvent](t, rec); len(got) != tt.wantCount {
				t.Errorf("got %d events, want %d", len(got), tt.wantCount)
			}
		})
	}

	t.Run("csv export", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/audit/export?format=csv&userId=u1", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "audit-logs.csv") {
			t.Errorf("Content-Disposition = %q", cd)
		}
		if !strings.Contains(rec.Body.String(), "PATIENT_VIEWED") {
			t.Errorf("csv body missing event: %s", rec.Body)
		}
	})

	t.Run("unknown export format", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/audit/export?format=xml", nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("stats and verify", func(t *testing.T) {
		stats := decode[cav.Stats](t, do(t, h, http.MethodGet, "/api/audit/stats?period=week", nil, nil))
		if stats.Period != cav.PeriodWeek {
			t.Errorf("Period = %s, want week", stats.Period)
		}
		rec := do(t, h, http.MethodGet, "/api/audit/verify", nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("verify status = %d, body %s", rec.Code, rec.Body)
		}
	})
}

func TestAlerts(t *testing.T) {
	ts, h := newTestAPI(t, httpapi.Config{}, testutil.TestServiceConfig{})
	for i := 0; i < 5; i++ {
		ts.LogEvent(context.Background(), cav.EventLoginFailed, map[string]any{"attemptedUser": "bob"})
	}
	alerts := decode[[]cav.Alert](t, do(t, h, http.MethodGet, "/api/audit/alerts", nil, nil))
	if len(alerts) != 1 || alerts[0].Type != cav.AlertMultipleFailedLogins {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestBackupLifecycle(t *testing.T) {
	ts, h := newTestAPI(t, httpapi.Config{}, testutil.TestServiceConfig{})

	rec := do(t, h, http.MethodPost, "/api/backups/", map[string]any{"description": "before upgrade"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	full := decode[cav.Backup](t, rec)
	if full.Type != cav.BackupTypeFull || full.Status != cav.BackupStatusCompleted {
		t.Errorf("created backup = %s/%s", full.Type, full.Status)
	}

	rec = do(t, h, http.MethodPost, "/api/backups/", map[string]any{"type": "partial", "buckets": []string{"settings"}}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("partial create status = %d, body %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodPost, "/api/backups/", map[string]any{"type": "partial"}, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("partial without buckets status = %d, want 400", rec.Code)
	}

	if got := decode[[]cav.Backup](t, do(t, h, http.MethodGet, "/api/backups/", nil, nil)); len(got) != 2 {
		t.Errorf("listed %d backups, want 2", len(got))
	}
	if rec := do(t, h, http.MethodGet, "/api/backups/"+full.ID, nil, nil); rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/backups/nope", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get unknown status = %d, want 404", rec.Code)
	}

	t.Run("restore", func(t *testing.T) {
		testutil.SeedBuckets(t, ts.Memory, map[string]string{cav.BucketPatients: `[]`})
		rec := do(t, h, http.MethodPost, "/api/backups/"+full.ID+"/restore", map[string]any{"overwriteExisting": true}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("restore status = %d, body %s", rec.Code, rec.Body)
		}
		report := decode[cav.RestoreReport](t, rec)
		if !report.Success {
			t.Errorf("report = %+v, want success", report)
		}
		if got, _ := testutil.BucketContents(t, ts.Memory, cav.BucketPatients); !strings.Contains(got, "p2") {
			t.Errorf("patients after restore = %s", got)
		}
	})

	t.Run("restore with a failing bucket", func(t *testing.T) {
		ts.Store.FailSet(cav.BucketSettings)
		defer ts.Store.Heal()
		rec := do(t, h, http.MethodPost, "/api/backups/"+full.ID+"/restore", map[string]any{"overwriteExisting": true}, nil)
		if rec.Code != http.StatusMultiStatus {
			t.Fatalf("status = %d, want 207; body %s", rec.Code, rec.Body)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if rec := do(t, h, http.MethodDelete, "/api/backups/"+full.ID, nil, nil); rec.Code != http.StatusNoContent {
			t.Errorf("delete status = %d, want 204", rec.Code)
		}
		if rec := do(t, h, http.MethodDelete, "/api/backups/"+full.ID, nil, nil); rec.Code != http.StatusNotFound {
			t.Errorf("second delete status = %d, want 404", rec.Code)
		}
	})

	t.Run("cleanup", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/backups/cleanup", map[string]any{"retentionDays": 0}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		rec = do(t, h, http.MethodPost, "/api/backups/cleanup", map[string]any{"retentionDays": -1}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("negative retention status = %d, want 400", rec.Code)
		}
	})
}

func TestRestoreCorruptedBackup(t *testing.T) {
	ts, h := newTestAPI(t, httpapi.Config{}, testutil.TestServiceConfig{})
	b, err := ts.CreateFullBackup(context.Background(), "", false)
	if err != nil {
		t.Fatalf("CreateFullBackup() error = %v", err)
	}
	testutil.CorruptBackup(t, ts, b.ID, cav.BucketPatients)

	rec := do(t, h, http.MethodPost, "/api/backups/"+b.ID+"/restore", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body %s", rec.Code, rec.Body)
	}
}

func TestStorageFailure(t *testing.T) {
	ts, h := newTestAPI(t, httpapi.Config{}, testutil.TestServiceConfig{})
	b, err := ts.CreateFullBackup(context.Background(), "", false)
	if err != nil {
		t.Fatalf("CreateFullBackup() error = %v", err)
	}
	ts.Store.FailSet(cav.BackupsBucket)
	defer ts.Store.Heal()

	if rec := do(t, h, http.MethodDelete, "/api/backups/"+b.ID, nil, nil); rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502; body %s", rec.Code, rec.Body)
	}
}

func TestExportImport(t *testing.T) {
	ts, h := newTestAPI(t,
		httpapi.Config{Unlocker: encryption.NewTestEncryptor()},
		testutil.TestServiceConfig{Encryptor: testutil.NewTestEncryptor()})
	b, err := ts.CreateFullBackup(context.Background(), "", false)
	if err != nil {
		t.Fatalf("CreateFullBackup() error = %v", err)
	}

	for _, format := range []string{"json", "base64", "age"} {
		t.Run(format, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/backups/"+b.ID+"/export?format="+format, nil, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("export status = %d, body %s", rec.Code, rec.Body)
			}
			if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "backup-"+b.ID) {
				t.Errorf("Content-Disposition = %q", cd)
			}

			headers := map[string]string{}
			if format == "age" {
				rec := do(t, h, http.MethodPost, "/api/backups/import", rec.Body.Bytes(), nil)
				if rec.Code != http.StatusBadRequest {
					t.Errorf("import without passphrase status = %d, want 400", rec.Code)
				}
				headers[httpapi.HeaderPassphrase] = "secret"
			}
			imp := do(t, h, http.MethodPost, "/api/backups/import", rec.Body.Bytes(), headers)
			if imp.Code != http.StatusCreated {
				t.Fatalf("import status = %d, body %s", imp.Code, imp.Body)
			}
			got := decode[cav.Backup](t, imp)
			if !got.Imported || got.ID == b.ID || got.Checksum != b.Checksum {
				t.Errorf("imported backup = %+v", got)
			}
		})
	}

	t.Run("malformed import", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/backups/import", `{"id":"x","type":"full","timestamp":"2024-01-15T10:30:00Z","data":{}}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if body := decode[map[string]string](t, rec); body["field"] != "checksum" {
			t.Errorf("field = %q, want checksum", body["field"])
		}
	})
}

func TestRateLimit(t *testing.T) {
	_, h := newTestAPI(t, httpapi.Config{RateLimit: 2}, testutil.TestServiceConfig{})
	for i := 0; i < 2; i++ {
		if rec := do(t, h, http.MethodGet, "/api/audit/events", nil, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodGet, "/api/audit/events", nil, nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("healthz should not be rate limited, got %d", rec.Code)
	}
}

func TestMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "cav_up 1\n")
	})
	_, h := newTestAPI(t, httpapi.Config{Metrics: metrics}, testutil.TestServiceConfig{})
	rec := do(t, h, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cav_up") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body)
	}
}
