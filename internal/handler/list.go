package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/shopping"
	"github.com/dukerupert/larder/internal/websocket"
)

type ListHandler struct {
	lists  *shopping.Lists
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewListHandler(lists *shopping.Lists, hub *websocket.Hub, logger *slog.Logger) *ListHandler {
	return &ListHandler{lists: lists, hub: hub, logger: logger}
}

func (h *ListHandler) changed(l *model.ShoppingList, entity, action string, extra map[string]any) {
	notify(h.hub, l.Audience(), websocket.NewMessage(entity, action, l.ID, extra))
}

func (h *ListHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req shopping.ListDraft
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "list.create", err)
		return
	}
	l, err := h.lists.Create(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, "list.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	lists, err := h.lists.ListFor(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "list.list", err)
		return
	}
	if lists == nil {
		lists = []model.ShoppingList{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "list.get", err)
		return
	}
	l, err := h.lists.Get(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, "list.get", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *ListHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "list.update", err)
		return
	}
	var req shopping.ListPatch
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "list.update", err)
		return
	}
	l, err := h.lists.Update(r.Context(), auth.UserID(r.Context()), id, req)
	if err != nil {
		writeError(w, r, h.logger, "list.update", err)
		return
	}
	h.changed(l, "list", "updated", nil)
	writeJSON(w, http.StatusOK, l)
}

func (h *ListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "list.delete", err)
		return
	}
	l, err := h.lists.Delete(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, "list.delete", err)
		return
	}
	h.changed(l, "list", "deleted", nil)
	writeSuccess(w, "List deleted successfully")
}

func (h *ListHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "list.add_item", err)
		return
	}
	var req shopping.ItemDraft
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "list.add_item", err)
		return
	}
	l, err := h.lists.AddItem(r.Context(), auth.UserID(r.Context()), id, req)
	if err != nil {
		writeError(w, r, h.logger, "list.add_item", err)
		return
	}
	extra := map[string]any{}
	if len(l.Items) > 0 {
		extra["itemId"] = l.Items[0].ID
	}
	h.changed(l, "list_item", "created", extra)
	writeJSON(w, http.StatusOK, l)
}

func itemID(r *http.Request) (string, error) {
	id := r.PathValue("itemId")
	if id == "" {
		return "", apperror.Validation("invalid itemId", map[string]string{"itemId": "is required"})
	}
	return id, nil
}

func (h *ListHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "list.update_item", err)
		return
	}
	iid, err := itemID(r)
	if err != nil {
		writeError(w, r, h.logger, "list.update_item", err)
		return
	}
	var req shopping.ItemPatch
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "list.update_item", err)
		return
	}
	l, err := h.lists.UpdateItem(r.Context(), auth.UserID(r.Context()), id, iid, req)
	if err != nil {
		writeError(w, r, h.logger, "list.update_item", err)
		return
	}
	h.changed(l, "list_item", "updated", map[string]any{"itemId": iid})
	writeJSON(w, http.StatusOK, l)
}

func (h *ListHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "list.remove_item", err)
		return
	}
	iid, err := itemID(r)
	if err != nil {
		writeError(w, r, h.logger, "list.remove_item", err)
		return
	}
	l, err := h.lists.RemoveItem(r.Context(), auth.UserID(r.Context()), id, iid)
	if err != nil {
		writeError(w, r, h.logger, "list.remove_item", err)
		return
	}
	h.changed(l, "list_item", "deleted", map[string]any{"itemId": iid})
	writeJSON(w, http.StatusOK, l)
}

func (h *ListHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "list.clear_completed", err)
		return
	}
	l, err := h.lists.ClearCompleted(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, "list.clear_completed", err)
		return
	}
	h.changed(l, "list", "cleared", nil)
	writeJSON(w, http.StatusOK, l)
}

type shareRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *ListHandler) Share(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "list.share", err)
		return
	}
	var req shareRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "list.share", err)
		return
	}
	l, err := h.lists.Share(r.Context(), auth.UserID(r.Context()), id, req.Email)
	if err != nil {
		writeError(w, r, h.logger, "list.share", err)
		return
	}
	h.changed(l, "list", "shared", nil)
	writeJSON(w, http.StatusOK, l)
}

func (h *ListHandler) Unshare(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "list.unshare", err)
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		writeError(w, r, h.logger, "list.unshare", err)
		return
	}
	l, err := h.lists.Unshare(r.Context(), auth.UserID(r.Context()), id, userID)
	if err != nil {
		writeError(w, r, h.logger, "list.unshare", err)
		return
	}
	notify(h.hub, append(l.Audience(), userID), websocket.NewMessage("list", "unshared", l.ID, map[string]any{"userId": userID}))
	writeJSON(w, http.StatusOK, l)
}
