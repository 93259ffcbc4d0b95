package cav

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// LogFormat is the serialization used by ExportLogs.
type LogFormat string

const (
	LogFormatCSV  LogFormat = "csv"
	LogFormatJSON LogFormat = "json"
)

var csvHeader = []string{
	"id", "timestamp", "eventType", "category", "severity",
	"userId", "userName", "userRole", "sessionId", "details",
}

// ExportLogs serializes the events matching c, newest first, and records the
// export as an AUDIT_LOG_EXPORTED event.
func (l *AuditLog) ExportLogs(ctx context.Context, format LogFormat, c SearchCriteria) ([]byte, error) {
	events := l.Search(c)

	var (
		out []byte
		err error
	)
	switch format {
	case LogFormatCSV:
		out, err = encodeEventsCSV(events)
	case LogFormatJSON:
		out, err = json.MarshalIndent(events, "", "  ")
	default:
		return nil, NewValidationError("format", fmt.Sprintf("unsupported log export format %q", format))
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s export: %w", format, err)
	}

	l.Append(ctx, AuditEvent{
		EventType: EventAuditLogExported,
		Details: map[string]any{
			"format":      string(format),
			"recordCount": len(events),
			"size":        len(out),
		},
	})
	return out, nil
}

func encodeEventsCSV(events []AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range events {
		details := ""
		if len(e.Details) > 0 {
			b, err := json.Marshal(e.Details)
			if err != nil {
				return nil, fmt.Errorf("encoding details of %s: %w", e.ID, err)
			}
			details = string(b)
		}
		row := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.EventType),
			string(e.Category),
			string(e.Severity),
			e.Actor.UserID,
			e.Actor.UserName,
			e.Actor.UserRole,
			e.SessionID,
			details,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
