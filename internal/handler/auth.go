package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/account"
	"github.com/dukerupert/larder/internal/auth"
)

type AuthHandler struct {
	accounts *account.Service
	logger   *slog.Logger
}

func NewAuthHandler(accounts *account.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

type sessionResponse struct {
	Status string `json:"status"`
	*account.Session
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "auth.register", err)
		return
	}
	sess, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, "auth.register", err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Status: "success", Session: sess})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "auth.login", err)
		return
	}
	sess, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, "auth.login", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Status: "success", Session: sess})
}

type forgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "auth.forgot", err)
		return
	}
	res, err := h.accounts.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, h.logger, "auth.forgot", err)
		return
	}
	if res.Emailed {
		writeSuccess(w, "Password reset email sent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "success",
		"message":    "Password reset token generated",
		"resetToken": res.Token,
	})
}

type resetRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "auth.reset", err)
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, r, h.logger, "auth.reset", err)
		return
	}
	writeSuccess(w, "Password has been reset")
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.accounts.Me(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, "auth.me", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req account.ProfilePatch
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, "users.update", err)
		return
	}
	u, err := h.accounts.UpdateProfile(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, "users.update", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
