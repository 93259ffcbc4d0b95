package cav_test

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"cav-go/internal/cav"
	"cav-go/internal/testutil"
)

// seedSearchLog records a small, varied log one minute apart and returns the
// events oldest first.
func seedSearchLog(t *testing.T, ts *testutil.TestService) []cav.AuditEvent {
	t.Helper()
	alice := testutil.ActorContext("u1", "Alice Durand", "practitioner")
	bob := testutil.ActorContext("u2", "Bob Leroy", "secretary")

	steps := []struct {
		ctx     context.Context
		typ     cav.EventType
		details map[string]any
	}{
		{alice, cav.EventLoginSuccess, nil},
		{alice, cav.EventPatientViewed, map[string]any{"patientId": "p-100", "patientName": "Jeanne Moreau"}},
		{bob, cav.EventLoginFailed, map[string]any{"attemptedUser": "bob"}},
		{bob, cav.EventUnauthorizedAccess, map[string]any{"resource": "/admin"}},
		{alice, cav.EventMedicalRecordUpdated, map[string]any{"recordId": "mr-7"}},
	}

	var out []cav.AuditEvent
	for _, s := range steps {
		ev, err := ts.LogEvent(s.ctx, s.typ, s.details)
		if err != nil {
			t.Fatalf("LogEvent(%s) error = %v", s.typ, err)
		}
		out = append(out, ev)
		ts.Clock.Advance(time.Minute)
	}
	return out
}

func TestSearchLogs(t *testing.T) {
	ts := testutil.NewTestService(t, testutil.TestServiceConfig{})
	events := seedSearchLog(t, ts)
	start := events[1].Timestamp
	end := events[3].Timestamp

	tests := []struct {
		name     string
		criteria cav.SearchCriteria
		wantIDs  []string
	}{
		{
			name:     "no criteria returns everything newest first",
			criteria: cav.SearchCriteria{},
			wantIDs:  []string{events[4].ID, events[3].ID, events[2].ID, events[1].ID, events[0].ID},
		},
		{
			name:     "by event type",
			criteria: cav.SearchCriteria{EventType: cav.EventLoginFailed},
			wantIDs:  []string{events[2].ID},
		},
		{
			name:     "by category",
			criteria: cav.SearchCriteria{Category: cav.CategoryAuthentication},
			wantIDs:  []string{events[2].ID, events[0].ID},
		},
		{
			name:     "by severity",
			criteria: cav.SearchCriteria{Severity: cav.SeverityCritical},
			wantIDs:  []string{events[3].ID},
		},
		{
			name:     "by user",
			criteria: cav.SearchCriteria{UserID: "u2"},
			wantIDs:  []string{events[3].ID, events[2].ID},
		},
		{
			name:     "date range is inclusive",
			criteria: cav.SearchCriteria{Start: &start, End: &end},
			wantIDs:  []string{events[3].ID, events[2].ID, events[1].ID},
		},
		{
			name:     "text matches details case-insensitively",
			criteria: cav.SearchCriteria{Text: "jeanne MOREAU"},
			wantIDs:  []string{events[1].ID},
		},
		{
			name:     "text matches user name",
			criteria: cav.SearchCriteria{Text: "leroy"},
			wantIDs:  []string{events[3].ID, events[2].ID},
		},
		{
			name:     "criteria combine",
			criteria: cav.SearchCriteria{UserID: "u1", Category: cav.CategoryMedicalData},
			wantIDs:  []string{events[4].ID},
		},
		{
			name:     "limit",
			criteria: cav.SearchCriteria{UserID: "u1", Limit: 2},
			wantIDs:  []string{events[4].ID, events[1].ID},
		},
		{
			name:     "no match",
			criteria: cav.SearchCriteria{Text: "nothing like this"},
			wantIDs:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ts.SearchLogs(tt.criteria)
			if got == nil {
				t.Fatal("SearchLogs() returned nil, want empty slice")
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("SearchLogs() returned %d events, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("result[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestGetStatistics(t *testing.T) {
	ts := testutil.NewTestService(t, testutil.TestServiceConfig{})
	seedSearchLog(t, ts)

	stats := ts.GetStatistics(cav.PeriodDay)
	if stats.TotalEvents != 5 {
		t.Errorf("TotalEvents = %d, want 5", stats.TotalEvents)
	}
	if stats.UniqueUsers != 2 {
		t.Errorf("UniqueUsers = %d, want 2", stats.UniqueUsers)
	}
	if stats.EventsByCategory[cav.CategoryAuthentication] != 2 {
		t.Errorf("EventsByCategory[authentication] = %d, want 2", stats.EventsByCategory[cav.CategoryAuthentication])
	}
	if stats.EventsBySeverity[cav.SeverityCritical] != 1 || stats.CriticalEvents != 1 {
		t.Errorf("critical = %d/%d, want 1", stats.EventsBySeverity[cav.SeverityCritical], stats.CriticalEvents)
	}
	if stats.SecurityEvents != 1 {
		t.Errorf("SecurityEvents = %d, want 1", stats.SecurityEvents)
	}
	if stats.EventsByHour[10] != 5 {
		t.Errorf("EventsByHour[10] = %d, want 5", stats.EventsByHour[10])
	}

	ranked := stats.RankedUsers()
	if len(ranked) != 2 || ranked[0].UserName != "Alice Durand" || ranked[0].Count != 3 {
		t.Errorf("RankedUsers() = %+v, want Alice Durand first with 3", ranked)
	}

	t.Run("period excludes older events", func(t *testing.T) {
		ts.Clock.Advance(3 * 24 * time.Hour)
		ts.LogEvent(context.Background(), cav.EventLogout, nil)
		if got := ts.GetStatistics(cav.PeriodDay).TotalEvents; got != 1 {
			t.Errorf("day TotalEvents = %d, want 1", got)
		}
		if got := ts.GetStatistics(cav.PeriodWeek).TotalEvents; got != 6 {
			t.Errorf("week TotalEvents = %d, want 6", got)
		}
	})
}

func TestParsePeriod(t *testing.T) {
	tests := map[string]cav.Period{
		"day":    cav.PeriodDay,
		"week":   cav.PeriodWeek,
		"month":  cav.PeriodMonth,
		"year":   cav.PeriodYear,
		"decade": cav.PeriodDay,
		"":       cav.PeriodDay,
	}
	for in, want := range tests {
		if got := cav.ParsePeriod(in); got != want {
			t.Errorf("ParsePeriod(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestDetectSuspiciousActivity(t *testing.T) {
	t.Run("repeated failed logins", func(t *testing.T) {
		ts := testutil.NewTestService(t, testutil.TestServiceConfig{})
		for i := 0; i < 5; i++ {
			ts.LogEvent(context.Background(), cav.EventLoginFailed, map[string]any{"userId": "u1"})
			ts.Clock.Advance(5 * time.Minute)
		}

		alerts := ts.DetectSuspiciousActivity()
		if len(alerts) != 1 {
			t.Fatalf("got %d alerts, want 1: %+v", len(alerts), alerts)
		}
		a := alerts[0]
		if a.Type != cav.AlertMultipleFailedLogins {
			t.Errorf("Type = %s, want %s", a.Type, cav.AlertMultipleFailedLogins)
		}
		if a.Evidence["count"] != 5 || a.Evidence["subject"] != "u1" {
			t.Errorf("Evidence = %v, want count 5 for u1", a.Evidence)
		}
		if a.Key() != "multiple_failed_logins:u1" {
			t.Errorf("Key() = %s", a.Key())
		}
	})

	t.Run("failed logins outside the window are ignored", func(t *testing.T) {
		ts := testutil.NewTestService(t, testutil.TestServiceConfig{})
		for i := 0; i < 5; i++ {
			ts.LogEvent(context.Background(), cav.EventLoginFailed, map[string]any{"userId": "u1"})
			ts.Clock.Advance(20 * time.Minute)
		}
		if alerts := ts.DetectSuspiciousActivity(); len(alerts) != 0 {
			t.Errorf("got %+v, want no alerts", alerts)
		}
	})

	t.Run("broad patient access", func(t *testing.T) {
		ts := testutil.NewTestService(t, testutil.TestServiceConfig{})
		ctx := testutil.ActorContext("u9", "Night Owl", "practitioner")
		for i := 0; i < 20; i++ {
			ts.LogEvent(ctx, cav.EventPatientViewed, map[string]any{"patientId": fmt.Sprintf("p-%d", i)})
		}
		alerts := ts.DetectSuspiciousActivity()
		if len(alerts) != 1 || alerts[0].Type != cav.AlertExcessivePatientAccess {
			t.Fatalf("alerts = %+v, want one excessive_patient_access", alerts)
		}
		if alerts[0].Evidence["distinctPatients"] != 20 {
			t.Errorf("distinctPatients = %v, want 20", alerts[0].Evidence["distinctPatients"])
		}
	})

	t.Run("off hours activity", func(t *testing.T) {
		ts := testutil.NewTestService(t, testutil.TestServiceConfig{})
		ts.Clock.Set(time.Date(2024, 1, 16, 2, 30, 0, 0, time.UTC))
		for i := 0; i < 10; i++ {
			ts.LogEvent(context.Background(), cav.EventSettingsChanged, nil)
		}
		alerts := ts.DetectSuspiciousActivity()
		if len(alerts) != 1 || alerts[0].Type != cav.AlertOffHoursActivity {
			t.Fatalf("alerts = %+v, want one off_hours_activity", alerts)
		}
	})

	t.Run("custom thresholds", func(t *testing.T) {
		ts := testutil.NewTestService(t, testutil.TestServiceConfig{
			AuditOptions: []cav.AuditLogOption{cav.WithThresholds(cav.Thresholds{FailedLogins: 2})},
		})
		for i := 0; i < 2; i++ {
			ts.LogEvent(context.Background(), cav.EventLoginFailed, map[string]any{"attemptedUser": "mallory"})
		}
		alerts := ts.DetectSuspiciousActivity()
		if len(alerts) != 1 || alerts[0].Evidence["subject"] != "mallory" {
			t.Errorf("alerts = %+v, want one for mallory", alerts)
		}
	})
}

func TestExportLogs(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		ts := testutil.NewTestService(t, testutil.TestServiceConfig{})
		seedSearchLog(t, ts)

		out, err := ts.ExportLogs(context.Background(), cav.LogFormatCSV, cav.SearchCriteria{UserID: "u2"})
		if err != nil {
			t.Fatalf("ExportLogs() error = %v", err)
		}
		records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
		if err != nil {
			t.Fatalf("parsing csv: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("got %d rows, want header + 2", len(records))
		}
		if strings.Join(records[0], ",") != "id,timestamp,eventType,category,severity,userId,userName,userRole,sessionId,details" {
			t.Errorf("header = %v", records[0])
		}
		if records[1][2] != string(cav.EventUnauthorizedAccess) || records[1][9] != `{"resource":"/admin"}` {
			t.Errorf("first row = %v", records[1])
		}

		newest := ts.GetAllLogs()[0]
		if newest.EventType != cav.EventAuditLogExported {
			t.Fatalf("newest event = %s, want AUDIT_LOG_EXPORTED", newest.EventType)
		}
		if newest.DetailString("recordCount") != "2" || newest.DetailString("format") != "csv" {
			t.Errorf("export details = %v", newest.Details)
		}
	})

	t.Run("json", func(t *testing.T) {
		ts := testutil.NewTestService(t, testutil.TestServiceConfig{})
		seedSearchLog(t, ts)

		out, err := ts.ExportLogs(context.Background(), cav.LogFormatJSON, cav.SearchCriteria{})
		if err != nil {
			t.Fatalf("ExportLogs() error = %v", err)
		}
		var events []cav.AuditEvent
		if err := json.Unmarshal(out, &events); err != nil {
			t.Fatalf("decoding export: %v", err)
		}
		if len(events) != 5 {
			t.Errorf("exported %d events, want 5", len(events))
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		ts := testutil.NewTestService(t, testutil.TestServiceConfig{})
		_, err := ts.ExportLogs(context.Background(), "xml", cav.SearchCriteria{})
		if !errors.Is(err, cav.ErrValidation) {
			t.Errorf("ExportLogs(xml) error = %v, want ErrValidation", err)
		}
		if ts.Audit.Len() != 0 {
			t.Error("failed export was audited")
		}
	})
}
