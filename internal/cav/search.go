package cav

import (
	"strings"
	"time"
)

// SearchCriteria filters audit events. Zero-valued fields impose no filter;
// all set fields must match.
type SearchCriteria struct {
	EventType EventType  `json:"eventType,omitempty"`
	Category  Category   `json:"category,omitempty"`
	Severity  Severity   `json:"severity,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	Start     *time.Time `json:"startDate,omitempty"`
	End       *time.Time `json:"endDate,omitempty"`
	Text      string     `json:"searchText,omitempty"`

	// Limit caps the number of results. Zero means unlimited.
	Limit int `json:"limit,omitempty"`
}

// Match reports whether ev satisfies every set predicate. Start and End are
// inclusive.
func (c SearchCriteria) Match(ev AuditEvent) bool {
	if c.EventType != "" && ev.EventType != c.EventType {
		return false
	}
	if c.Category != "" && ev.Category != c.Category {
		return false
	}
	if c.Severity != "" && ev.Severity != c.Severity {
		return false
	}
	if c.UserID != "" && ev.Actor.UserID != c.UserID {
		return false
	}
	if c.Start != nil && ev.Timestamp.Before(*c.Start) {
		return false
	}
	if c.End != nil && ev.Timestamp.After(*c.End) {
		return false
	}
	if c.Text != "" && !strings.Contains(ev.searchText(), strings.ToLower(c.Text)) {
		return false
	}
	return true
}

// Search returns the events matching c, newest first.
func (l *AuditLog) Search(c SearchCriteria) []AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return filterEvents(l.events, c)
}

func filterEvents(events []AuditEvent, c SearchCriteria) []AuditEvent {
	out := []AuditEvent{}
	for _, e := range events {
		if !c.Match(e) {
			continue
		}
		out = append(out, e.clone())
		if c.Limit > 0 && len(out) == c.Limit {
			break
		}
	}
	return out
}
