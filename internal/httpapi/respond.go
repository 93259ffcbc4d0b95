package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"cav-go/internal/cav"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the service's error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cav.ErrValidation), errors.Is(err, cav.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, cav.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cav.ErrIntegrity):
		return http.StatusConflict
	case errors.Is(err, cav.ErrPartialFailure):
		return http.StatusMultiStatus
	case errors.Is(err, cav.ErrStorage):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var verr *cav.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		h.logger.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// unchanged.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return cav.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

func writeAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
