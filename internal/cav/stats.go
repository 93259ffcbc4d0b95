package cav

import (
	"sort"
	"time"
)

// Period is the trailing window statistics are computed over.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod returns the named period, falling back to day for anything
// unrecognized.
func ParsePeriod(s string) Period {
	switch p := Period(s); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p
	}
	return PeriodDay
}

// Since returns the start of the window ending at now.
func (p Period) Since(now time.Time) time.Time {
	switch p {
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodMonth:
		return now.AddDate(0, -1, 0)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, 0, -1)
	}
}

// UserCount is one entry of the most active users ranking.
type UserCount struct {
	UserName string `json:"userName"`
	Count    int    `json:"count"`
}

// Stats aggregates the events of one period.
type Stats struct {
	Period           Period            `json:"period"`
	Since            time.Time         `json:"since"`
	TotalEvents      int               `json:"totalEvents"`
	UniqueUsers      int               `json:"uniqueUsers"`
	EventsByType     map[EventType]int `json:"eventsByType"`
	EventsByCategory map[Category]int  `json:"eventsByCategory"`
	EventsBySeverity map[Severity]int  `json:"eventsBySeverity"`
	EventsByHour     [24]int           `json:"eventsByHour"`
	TopUsers         map[string]int    `json:"topUsers"`
	SecurityEvents   int               `json:"securityEvents"`
	CriticalEvents   int               `json:"criticalEvents"`
}

// RankedUsers returns TopUsers ordered by descending count, then name.
func (s Stats) RankedUsers() []UserCount {
	out := make([]UserCount, 0, len(s.TopUsers))
	for name, n := range s.TopUsers {
		out = append(out, UserCount{UserName: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].UserName < out[j].UserName
	})
	return out
}

// Statistics aggregates the events within the trailing period. Unknown
// periods are treated as day.
func (l *AuditLog) Statistics(period Period) Stats {
	now := l.clock.Now()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return ComputeStats(l.events, ParsePeriod(string(period)), now, l.loc)
}

// ComputeStats aggregates events with timestamp at or after period.Since(now).
// Hours are bucketed in loc.
func ComputeStats(events []AuditEvent, period Period, now time.Time, loc *time.Location) Stats {
	if loc == nil {
		loc = time.Local
	}
	since := period.Since(now)
	s := Stats{
		Period:           period,
		Since:            since,
		EventsByType:     map[EventType]int{},
		EventsByCategory: map[Category]int{},
		EventsBySeverity: map[Severity]int{},
		TopUsers:         map[string]int{},
	}
	users := map[string]struct{}{}

	for _, e := range events {
		if e.Timestamp.Before(since) {
			continue
		}
		s.TotalEvents++
		if e.Actor.UserID != "" {
			users[e.Actor.UserID] = struct{}{}
		}
		s.EventsByType[e.EventType]++
		s.EventsByCategory[e.Category]++
		s.EventsBySeverity[e.Severity]++
		s.EventsByHour[e.Timestamp.In(loc).Hour()]++
		if e.Actor.UserName != "" {
			s.TopUsers[e.Actor.UserName]++
		}
		if e.Category == CategorySecurity {
			s.SecurityEvents++
		}
		if e.Severity == SeverityCritical {
			s.CriticalEvents++
		}
	}
	s.UniqueUsers = len(users)
	return s
}
