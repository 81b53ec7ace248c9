package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/usage"
)

func newTokens() *auth.TokenManager {
	return auth.NewTokenManager("test-secret", "larder", time.Hour)
}

func TestRequireAuthMissingHeader(t *testing.T) {
	handler := RequireAuth(newTokens())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	assert.Contains(t, rec.Body.String(), "authentication required")
}

func TestRequireAuthInvalidToken(t *testing.T) {
	handler := RequireAuth(newTokens())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthRejectsResetToken(t *testing.T) {
	tm := newTokens()
	token, err := tm.IssueReset(7, "stamp", time.Hour)
	require.NoError(t, err)

	handler := RequireAuth(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthValidToken(t *testing.T) {
	tm := newTokens()
	token, err := tm.Issue(7, "admin")
	require.NoError(t, err)

	var got auth.AuthContext
	handler := RequireAuth(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, "admin", got.Role)
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name string
		role string
		want int
	}{
		{"admin", "admin", http.StatusOK},
		{"user", "user", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: 1, Role: tt.role}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/lists/9", nil))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=404")
	assert.Contains(t, out, "path=/api/lists/9")
}

func TestActivityRecordsUser(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := usage.NewRecorder(nil, logger)

	handler := Activity(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	req := httptest.NewRequest("POST", "/api/lists", nil)
	req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: 3}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	for _, kind := range []string{"response_time", "error_rate", "user_activity"} {
		samples, err := rec.Recent(req.Context(), kind)
		require.NoError(t, err)
		require.Len(t, samples, 1, kind)
	}
	samples, _ := rec.Recent(req.Context(), "user_activity")
	assert.Contains(t, string(samples[0]), `"userId":3`)
}
