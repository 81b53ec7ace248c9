package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/validation"
	"github.com/dukerupert/larder/internal/websocket"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type statusBody struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, statusBody{Status: "success", Message: message})
}

// writeError maps err onto its HTTP status and the error envelope. Server
// side failures are logged with the operation and actor; the rest only at
// debug.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	kind := apperror.KindOf(err)
	status := apperror.HTTPStatus(kind)

	attrs := []any{"op", op, "kind", kind.String(), "actor_id", auth.UserID(r.Context()), "error", err}
	if status >= 500 {
		logger.Error("request failed", attrs...)
	} else {
		logger.Debug("request rejected", attrs...)
	}

	writeJSON(w, status, errorBody{
		Status:  "error",
		Message: apperror.PublicMessage(err),
		Errors:  apperror.FieldsOf(err),
	})
}

// decode reads a JSON body into dst, rejecting unknown fields, and runs
// struct validation. Decoder failures become a fixed message plus the
// offending field where one is known.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	return validation.Struct(dst)
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return apperror.Validation("request body is required", nil)
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return apperror.Validation("invalid request body", map[string]string{typeErr.Field: "has the wrong type"})
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return apperror.Validation("invalid request body", map[string]string{field: "is not allowed"})
	default:
		return apperror.Validation("malformed JSON body", nil)
	}
}

// pathID parses a numeric path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("invalid "+name, map[string]string{name: "must be a positive integer"})
	}
	return id, nil
}

// notify pushes a change message; hub may be nil.
func notify(hub *websocket.Hub, users []int64, msg websocket.Message) {
	if hub != nil {
		hub.SendToUsers(users, msg)
	}
}
