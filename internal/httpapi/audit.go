package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cav-go/internal/cav"
)

type logEventRequest struct {
	EventType cav.EventType  `json:"eventType"`
	Details   map[string]any `json:"details"`
}

func (h *Handler) handleLogEvent(w http.ResponseWriter, r *http.Request) {
	var req logEventRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ev, err := h.svc.LogEvent(r.Context(), req.EventType, req.Details)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleSearchLogs(w http.ResponseWriter, r *http.Request) {
	c, err := criteriaFromQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.SearchLogs(c))
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.GetStatistics(cav.ParsePeriod(r.URL.Query().Get("period"))))
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.DetectSuspiciousActivity())
}

func (h *Handler) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := criteriaFromQuery(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	format := cav.LogFormat(q.Get("format"))
	if format == "" {
		format = cav.LogFormatJSON
	}
	data, err := h.svc.ExportLogs(r.Context(), format, c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	contentType := "application/json"
	if format == cav.LogFormatCSV {
		contentType = "text/csv; charset=utf-8"
	}
	writeAttachment(w, "audit-logs."+string(format), contentType, data)
}

type retentionRequest struct {
	RetentionDays int `json:"retentionDays"`
}

type removedResponse struct {
	Removed int `json:"removed"`
}

func (h *Handler) handleCleanupLogs(w http.ResponseWriter, r *http.Request) {
	var req retentionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.svc.CleanupOldLogs(r.Context(), req.RetentionDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removedResponse{Removed: n})
}

func (h *Handler) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.VerifyLogChain()
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"verified": n, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": n})
}

// criteriaFromQuery reads search filters. Dates are RFC 3339.
func criteriaFromQuery(q url.Values) (cav.SearchCriteria, error) {
	c := cav.SearchCriteria{
		EventType: cav.EventType(q.Get("eventType")),
		Category:  cav.Category(q.Get("category")),
		Severity:  cav.Severity(q.Get("severity")),
		UserID:    q.Get("userId"),
		Text:      q.Get("searchText"),
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"startDate", &c.Start}, {"endDate", &c.End}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c, cav.NewValidationError(p.key, "must be an RFC 3339 timestamp")
		}
		*p.dst = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c, cav.NewValidationError("limit", "must be a non-negative integer")
		}
		c.Limit = n
	}
	return c, nil
}
