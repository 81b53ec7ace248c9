package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/model"
)

type BackupHandler struct {
	manager *backup.Manager
	logger  *slog.Logger
}

func NewBackupHandler(m *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, logger: logger}
}

type backupListResponse struct {
	Status  backup.Status  `json:"status"`
	Backups []model.Backup `json:"backups"`
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	backups, err := h.manager.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, "backup.list", err)
		return
	}
	writeJSON(w, http.StatusOK, backupListResponse{Status: h.manager.Status(), Backups: backups})
}

// Run takes a backup in the background and answers 202 straight away.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	st := h.manager.Status()
	if st.State == backup.StateDisabled {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Status: "error", Message: "backup storage not configured"})
		return
	}
	if st.InProgress {
		writeJSON(w, http.StatusConflict, errorBody{Status: "error", Message: "a backup is already running"})
		return
	}
	ctx := r.Context()
	go func() {
		if _, err := h.manager.RunNow(ctx); err != nil {
			h.logger.Error("manual backup failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, statusBody{Status: "success", Message: "Backup started"})
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "backup.delete", err)
		return
	}
	if err := h.manager.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, "backup.delete", err)
		return
	}
	writeSuccess(w, "Backup deleted successfully")
}

// Download streams the stored backup file as it was written.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "backup.download", err)
		return
	}
	b, data, err := h.manager.Fetch(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "backup.download", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+b.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
