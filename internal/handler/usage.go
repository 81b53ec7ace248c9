package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/usage"
)

type UsageHandler struct {
	usage    *usage.Service
	recorder *usage.Recorder
	logger   *slog.Logger
}

func NewUsageHandler(svc *usage.Service, rec *usage.Recorder, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{usage: svc, recorder: rec, logger: logger}
}

func (h *UsageHandler) User(w http.ResponseWriter, r *http.Request) {
	m, err := h.usage.UserMetrics(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "metrics.user", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *UsageHandler) Household(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "metrics.household", err)
		return
	}
	m, err := h.usage.HouseholdMetrics(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, "metrics.household", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// System returns the newest request samples of one kind. Admin only.
func (h *UsageHandler) System(w http.ResponseWriter, r *http.Request) {
	samples, err := h.recorder.Recent(r.Context(), r.PathValue("kind"))
	if err != nil {
		writeError(w, r, h.logger, "metrics.system", err)
		return
	}
	if samples == nil {
		samples = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, samples)
}
