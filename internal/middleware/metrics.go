package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/larder/internal/metrics"
)

// Metrics observes request counts and latency, labelled by the matched
// route pattern so ids do not explode the label set.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTPRequest(r.Method, path, strconv.Itoa(rec.status), time.Since(start))
	})
}
