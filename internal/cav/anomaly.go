package cav

import (
	"fmt"
	"sort"
	"time"
)

// Alert types raised by DetectSuspiciousActivity.
const (
	AlertMultipleFailedLogins   = "multiple_failed_logins"
	AlertExcessivePatientAccess = "excessive_patient_access"
	AlertOffHoursActivity       = "off_hours_activity"
)

// Thresholds tunes the anomaly heuristics.
type Thresholds struct {
	Window           time.Duration `toml:"window" json:"window"`
	FailedLogins     int           `toml:"failed_logins" json:"failedLogins"`
	DistinctPatients int           `toml:"distinct_patients" json:"distinctPatients"`
	OffHoursEvents   int           `toml:"off_hours_events" json:"offHoursEvents"`
	WorkdayStartHour int           `toml:"workday_start_hour" json:"workdayStartHour"`
	WorkdayEndHour   int           `toml:"workday_end_hour" json:"workdayEndHour"`
}

// DefaultThresholds returns the stock heuristic parameters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Window:           time.Hour,
		FailedLogins:     5,
		DistinctPatients: 20,
		OffHoursEvents:   10,
		WorkdayStartHour: 7,
		WorkdayEndHour:   22,
	}
}

// withDefaults fills zero fields from DefaultThresholds. Workday hours are
// only defaulted when both are zero, since 0 is a valid start hour.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.Window <= 0 {
		t.Window = d.Window
	}
	if t.FailedLogins <= 0 {
		t.FailedLogins = d.FailedLogins
	}
	if t.DistinctPatients <= 0 {
		t.DistinctPatients = d.DistinctPatients
	}
	if t.OffHoursEvents <= 0 {
		t.OffHoursEvents = d.OffHoursEvents
	}
	if t.WorkdayStartHour == 0 && t.WorkdayEndHour == 0 {
		t.WorkdayStartHour, t.WorkdayEndHour = d.WorkdayStartHour, d.WorkdayEndHour
	}
	return t
}

// Alert is a heuristic warning derived from recent events. It is never stored.
type Alert struct {
	Type     string         `json:"type"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Evidence map[string]any `json:"evidence"`
}

// Key identifies the subject of an alert, for deduplication.
func (a Alert) Key() string {
	if subject, ok := a.Evidence["subject"].(string); ok {
		return a.Type + ":" + subject
	}
	return a.Type
}

// DetectSuspiciousActivity runs the anomaly heuristics over the trailing
// window.
func (l *AuditLog) DetectSuspiciousActivity() []Alert {
	now := l.clock.Now()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return DetectAnomalies(l.events, now, l.loc, l.thresholds)
}

// DetectAnomalies applies the failed login, patient access breadth and
// off-hours heuristics to the events within t.Window before now. Alerts are
// ordered by type, then subject.
func DetectAnomalies(events []AuditEvent, now time.Time, loc *time.Location, t Thresholds) []Alert {
	t = t.withDefaults()
	if loc == nil {
		loc = time.Local
	}
	since := now.Add(-t.Window)

	failed := map[string]int{}
	patients := map[string]map[string]struct{}{}
	offHours := 0

	for _, e := range events {
		if e.Timestamp.Before(since) {
			continue
		}
		switch e.EventType {
		case EventLoginFailed:
			failed[failedLoginSubject(e)]++
		case EventPatientViewed:
			if pid := e.DetailString("patientId"); pid != "" {
				actor := e.Actor.UserID
				if patients[actor] == nil {
					patients[actor] = map[string]struct{}{}
				}
				patients[actor][pid] = struct{}{}
			}
		}
		if h := e.Timestamp.In(loc).Hour(); h < t.WorkdayStartHour || h > t.WorkdayEndHour {
			offHours++
		}
	}

	alerts := []Alert{}
	for _, subject := range sortedKeys(failed) {
		if n := failed[subject]; n >= t.FailedLogins {
			alerts = append(alerts, Alert{
				Type:     AlertMultipleFailedLogins,
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("%d failed login attempts for %q within %s", n, subject, t.Window),
				Evidence: map[string]any{"subject": subject, "count": n, "window": t.Window.String()},
			})
		}
	}
	for _, actor := range sortedKeys(patients) {
		if n := len(patients[actor]); n >= t.DistinctPatients {
			alerts = append(alerts, Alert{
				Type:     AlertExcessivePatientAccess,
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("user %q viewed %d distinct patients within %s", actor, n, t.Window),
				Evidence: map[string]any{"subject": actor, "distinctPatients": n, "window": t.Window.String()},
			})
		}
	}
	if offHours >= t.OffHoursEvents {
		alerts = append(alerts, Alert{
			Type:     AlertOffHoursActivity,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("%d events outside working hours within %s", offHours, t.Window),
			Evidence: map[string]any{
				"count":        offHours,
				"window":       t.Window.String(),
				"workdayStart": t.WorkdayStartHour,
				"workdayEnd":   t.WorkdayEndHour,
			},
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].Type < alerts[j].Type })
	return alerts
}

// failedLoginSubject is the attempted identity a failed login is grouped by.
func failedLoginSubject(e AuditEvent) string {
	if s := e.DetailString("attemptedUser"); s != "" {
		return s
	}
	if s := e.DetailString("userId"); s != "" {
		return s
	}
	return e.Actor.UserID
}
