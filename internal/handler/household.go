package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/household"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/websocket"
)

type HouseholdHandler struct {
	registry *household.Registry
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewHouseholdHandler(registry *household.Registry, hub *websocket.Hub, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{registry: registry, hub: hub, logger: logger}
}

func (h *HouseholdHandler) changed(hh *model.Household, action string, extra map[string]any) {
	notify(h.hub, hh.MemberIDs(), websocket.NewMessage("household", action, hh.ID, extra))
}

type householdRequest struct {
	Name        string `json:"name" validate:"notblank,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "household.create", err)
		return
	}
	hh, err := h.registry.Create(r.Context(), auth.UserID(r.Context()), req.Name, req.Description)
	if err != nil {
		writeError(w, r, h.logger, "household.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, hh)
}

func (h *HouseholdHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.ListFor(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "household.list", err)
		return
	}
	if list == nil {
		list = []model.Household{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "household.get", err)
		return
	}
	hh, err := h.registry.Get(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, "household.get", err)
		return
	}
	writeJSON(w, http.StatusOK, hh)
}

type householdPatch struct {
	Name        *string                  `json:"name" validate:"omitempty,notblank,max=100"`
	Description *string                  `json:"description" validate:"omitempty,max=500"`
	Settings    *model.HouseholdSettings `json:"settings"`
}

func (h *HouseholdHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "household.update", err)
		return
	}
	var req householdPatch
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "household.update", err)
		return
	}
	hh, err := h.registry.Update(r.Context(), auth.UserID(r.Context()), id, household.Patch{
		Name:        req.Name,
		Description: req.Description,
		Settings:    req.Settings,
	})
	if err != nil {
		writeError(w, r, h.logger, "household.update", err)
		return
	}
	h.changed(hh, "updated", nil)
	writeJSON(w, http.StatusOK, hh)
}

func (h *HouseholdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "household.delete", err)
		return
	}
	hh, err := h.registry.Delete(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, "household.delete", err)
		return
	}
	h.changed(hh, "deleted", nil)
	writeSuccess(w, "Household deleted successfully")
}

type addMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"household_role"`
}

func (h *HouseholdHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "household.add_member", err)
		return
	}
	var req addMemberRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "household.add_member", err)
		return
	}
	hh, err := h.registry.AddMember(r.Context(), auth.UserID(r.Context()), id, req.Email, req.Role)
	if err != nil {
		writeError(w, r, h.logger, "household.add_member", err)
		return
	}
	h.changed(hh, "member_added", nil)
	writeJSON(w, http.StatusOK, hh)
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *HouseholdHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "household.member_role", err)
		return
	}
	memberID, err := pathID(r, "memberId")
	if err != nil {
		writeError(w, r, h.logger, "household.member_role", err)
		return
	}
	var req roleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "household.member_role", err)
		return
	}
	hh, err := h.registry.UpdateMemberRole(r.Context(), auth.UserID(r.Context()), id, memberID, req.Role)
	if err != nil {
		writeError(w, r, h.logger, "household.member_role", err)
		return
	}
	h.changed(hh, "member_updated", map[string]any{"memberId": memberID})
	writeJSON(w, http.StatusOK, hh)
}

func (h *HouseholdHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "household.remove_member", err)
		return
	}
	memberID, err := pathID(r, "memberId")
	if err != nil {
		writeError(w, r, h.logger, "household.remove_member", err)
		return
	}
	hh, err := h.registry.RemoveMember(r.Context(), auth.UserID(r.Context()), id, memberID)
	if err != nil {
		writeError(w, r, h.logger, "household.remove_member", err)
		return
	}
	notify(h.hub, append(hh.MemberIDs(), memberID), websocket.NewMessage("household", "member_removed", hh.ID, map[string]any{"memberId": memberID}))
	writeJSON(w, http.StatusOK, hh)
}
