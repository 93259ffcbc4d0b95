package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cav-go/internal/cav"
)

type createBackupRequest struct {
	Type            cav.BackupType `json:"type"`
	Description     string         `json:"description"`
	Buckets         []string       `json:"buckets"`
	IncludeAuditLog bool           `json:"includeAuditLog"`
}

func (h *Handler) handleListBackups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.GetAllBackups())
}

func (h *Handler) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	var req createBackupRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var (
		b   *cav.Backup
		err error
	)
	switch req.Type {
	case "", cav.BackupTypeFull:
		b, err = h.svc.CreateFullBackup(r.Context(), req.Description, req.IncludeAuditLog)
	case cav.BackupTypePartial:
		b, err = h.svc.CreatePartialBackup(r.Context(), req.Buckets, req.Description)
	default:
		b, err = h.svc.CreateTypedBackup(r.Context(), req.Type, req.Description)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) handleGetBackup(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBackupByID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) handleDeleteBackup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.svc.DeleteBackup(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		h.writeError(w, r, &cav.NotFoundError{Kind: "backup", ID: id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	var opts cav.RestoreOptions
	if err := decodeBody(r, &opts); err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.svc.RestoreFromBackup(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if report.Err() != nil {
		writeJSON(w, http.StatusMultiStatus, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	format := cav.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = cav.ExportFormatJSON
	}
	file, err := h.svc.ExportBackup(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeAttachment(w, file.Name, file.ContentType, file.Data)
}

func (h *Handler) handleImportBackup(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxImportBytes))
	if err != nil {
		h.writeError(w, r, cav.NewValidationError("body", fmt.Sprintf("reading import: %v", err)))
		return
	}

	var opts cav.ImportOptions
	if passphrase := r.Header.Get(HeaderPassphrase); passphrase != "" && h.config.Unlocker != nil {
		dec, err := h.config.Unlocker.Unlock(passphrase)
		if err != nil {
			h.writeError(w, r, cav.NewValidationError("passphrase", "could not unlock private key"))
			return
		}
		opts.Decryptor = dec
	}

	b, err := h.svc.ImportBackup(r.Context(), body, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) handleCleanupBackups(w http.ResponseWriter, r *http.Request) {
	var req retentionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.svc.CleanupOldBackups(r.Context(), req.RetentionDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removedResponse{Removed: n})
}
