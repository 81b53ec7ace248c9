package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/metrics"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/reward"
	"github.com/dukerupert/larder/internal/websocket"
)

type RewardHandler struct {
	rewards *reward.Service
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewRewardHandler(rewards *reward.Service, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewards: rewards, hub: hub, logger: logger}
}

func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	rewards, err := h.rewards.List(r.Context(), auth.UserID(r.Context()), all)
	if err != nil {
		writeError(w, r, h.logger, "reward.list", err)
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "reward.get", err)
		return
	}
	rw, err := h.rewards.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "reward.get", err)
		return
	}
	writeJSON(w, http.StatusOK, rw)
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req reward.Input
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "reward.create", err)
		return
	}
	rw, err := h.rewards.Create(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, "reward.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, rw)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "reward.update", err)
		return
	}
	var req reward.Input
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "reward.update", err)
		return
	}
	rw, err := h.rewards.Update(r.Context(), auth.UserID(r.Context()), id, req)
	if err != nil {
		writeError(w, r, h.logger, "reward.update", err)
		return
	}
	writeJSON(w, http.StatusOK, rw)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "reward.delete", err)
		return
	}
	if err := h.rewards.Delete(r.Context(), auth.UserID(r.Context()), id); err != nil {
		writeError(w, r, h.logger, "reward.delete", err)
		return
	}
	writeSuccess(w, "Reward deleted successfully")
}

type claimResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	User    *model.User        `json:"user"`
	Claim   *model.RewardClaim `json:"claim"`
}

func (h *RewardHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "reward.claim", err)
		return
	}
	userID := auth.UserID(r.Context())
	u, claim, err := h.rewards.Claim(r.Context(), userID, id)
	if err != nil {
		switch apperror.KindOf(err) {
		case apperror.KindInsufficientBalance:
			metrics.ObserveClaim("insufficient")
		case apperror.KindInternal, apperror.KindUnavailable:
			metrics.ObserveClaim("error")
		default:
			metrics.ObserveClaim("rejected")
		}
		writeError(w, r, h.logger, "reward.claim", err)
		return
	}
	metrics.ObserveClaim("ok")
	notify(h.hub, []int64{userID}, websocket.NewMessage("points", "redeemed", claim.ID, map[string]any{"points": u.Points}))
	writeJSON(w, http.StatusOK, claimResponse{
		Status:  "success",
		Message: "Reward claimed successfully",
		User:    u,
		Claim:   claim,
	})
}

func (h *RewardHandler) History(w http.ResponseWriter, r *http.Request) {
	txns, err := h.rewards.History(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "reward.history", err)
		return
	}
	if txns == nil {
		txns = []model.PointTransaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

type creditRequest struct {
	Points int    `json:"points" validate:"gt=0"`
	Reason string `json:"reason" validate:"notblank,max=200"`
}

func (h *RewardHandler) Credit(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, "points.credit", err)
		return
	}
	var req creditRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "points.credit", err)
		return
	}
	u, err := h.rewards.Credit(r.Context(), auth.UserID(r.Context()), userID, req.Points, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, "points.credit", err)
		return
	}
	notify(h.hub, []int64{userID}, websocket.NewMessage("points", "earned", userID, map[string]any{"points": u.Points}))
	writeJSON(w, http.StatusOK, u)
}
