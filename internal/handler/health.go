package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// Pinger is anything with a liveness check, such as the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db          *sql.DB
	redis       Pinger
	environment string
}

// NewHealthHandler builds the health check. redis may be nil.
func NewHealthHandler(db *sql.DB, redis Pinger, environment string) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, environment: environment}
}

type healthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Environment string            `json:"environment"`
}

// Health reports 503 when the database is down. Redis is optional and only
// degrades the report.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Services:    map[string]string{"server": "healthy"},
		Environment: h.environment,
	}
	code := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		resp.Services["database"] = "unhealthy"
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else {
		resp.Services["database"] = "healthy"
	}

	switch {
	case h.redis == nil:
		resp.Services["redis"] = "disabled"
	case h.redis.Ping(ctx) != nil:
		resp.Services["redis"] = "unhealthy"
		if code == http.StatusOK {
			resp.Status = "degraded"
		}
	default:
		resp.Services["redis"] = "healthy"
	}

	writeJSON(w, code, resp)
}
