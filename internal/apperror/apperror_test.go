package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapClassifiesStoreErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", fmt.Errorf("get list: %w", context.DeadlineExceeded), KindUnavailable},
		{"busy", errors.New("database is locked (5) (SQLITE_BUSY)"), KindUnavailable},
		{"unique", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), KindConflict},
		{"other", errors.New("disk I/O error"), KindInternal},
		{"already classified", NotFound("list not found"), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KindOf(Wrap(tt.err))
			if got != tt.want {
				t.Errorf("KindOf(Wrap(%v)) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindInvalidOperation, http.StatusBadRequest},
		{KindInsufficientBalance, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindUnavailable, http.StatusServiceUnavailable},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.kind); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestPublicMessageHidesInternalCause(t *testing.T) {
	err := Wrap(errors.New("no such table: secret_stuff"))
	if got := PublicMessage(err); got != "internal server error" {
		t.Errorf("PublicMessage = %q", got)
	}
	if got := PublicMessage(errors.New("raw")); got != "internal server error" {
		t.Errorf("PublicMessage(raw) = %q", got)
	}
	if got := PublicMessage(Forbidden("not your list")); got != "not your list" {
		t.Errorf("PublicMessage(forbidden) = %q", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := Unavailable(cause)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected errors.Is to reach the cause")
	}
	if !Is(err, KindUnavailable) {
		t.Error("expected KindUnavailable")
	}
}
