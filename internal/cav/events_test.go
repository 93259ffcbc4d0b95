package cav_test

import (
	"testing"

	"cav-go/internal/cav"
)

func TestClassification(t *testing.T) {
	t.Run("every known type has a category and severity", func(t *testing.T) {
		for _, et := range cav.KnownEventTypes() {
			if cav.CategoryOf(et) == "" {
				t.Errorf("CategoryOf(%s) is empty", et)
			}
			if cav.SeverityOf(et) == "" {
				t.Errorf("SeverityOf(%s) is empty", et)
			}
		}
	})

	tests := []struct {
		eventType    cav.EventType
		wantCategory cav.Category
		wantSeverity cav.Severity
		wantKnown    bool
	}{
		{cav.EventLoginSuccess, cav.CategoryAuthentication, cav.SeverityLow, true},
		{cav.EventLoginFailed, cav.CategoryAuthentication, cav.SeverityMedium, true},
		{cav.EventPatientViewed, cav.CategoryPatientData, cav.SeverityLow, true},
		{cav.EventMedicalRecordDeleted, cav.CategoryMedicalData, cav.SeverityCritical, true},
		{cav.EventUnauthorizedAccess, cav.CategorySecurity, cav.SeverityCritical, true},
		{cav.EventBackupRestored, cav.CategorySystem, cav.SeverityCritical, true},
		{cav.EventGDPRRequest, cav.CategoryCompliance, cav.SeverityHigh, true},
		{"CUSTOM_WIDGET_CLICKED", cav.CategorySystem, cav.SeverityLow, false},
		{"", cav.CategorySystem, cav.SeverityLow, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := cav.CategoryOf(tt.eventType); got != tt.wantCategory {
				t.Errorf("CategoryOf() = %s, want %s", got, tt.wantCategory)
			}
			if got := cav.SeverityOf(tt.eventType); got != tt.wantSeverity {
				t.Errorf("SeverityOf() = %s, want %s", got, tt.wantSeverity)
			}
			if got := tt.eventType.IsKnown(); got != tt.wantKnown {
				t.Errorf("IsKnown() = %v, want %v", got, tt.wantKnown)
			}
		})
	}
}

func TestSeverity_Rank(t *testing.T) {
	order := []cav.Severity{cav.SeverityLow, cav.SeverityMedium, cav.SeverityHigh, cav.SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s.Rank() = %d, want above %s (%d)", order[i], order[i].Rank(), order[i-1], order[i-1].Rank())
		}
	}
	if got := cav.Severity("bogus").Rank(); got != 0 {
		t.Errorf("unknown severity Rank() = %d, want 0", got)
	}
}
