package middleware

import (
	"net/http"
	"time"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/usage"
)

// Activity feeds finished requests to the usage recorder. It must run
// inside RequireAuth for the user id to be known.
func Activity(rec *usage.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := record(w)

			next.ServeHTTP(sr, r)

			rec.Record(r.Context(), usage.Request{
				Method:   r.Method,
				Path:     r.URL.Path,
				Status:   sr.status,
				Duration: time.Since(start),
				UserID:   auth.UserID(r.Context()),
				At:       start,
			})
		})
	}
}
