package usage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/larder/internal/apperror"
)

// Sample keys. Each holds the newest maxSamples entries.
const (
	KeyResponseTime = "metrics:response_time"
	KeyErrorRate    = "metrics:error_rate"
	KeyUserActivity = "metrics:user_activity"

	maxSamples = 100
)

// Kinds maps the public kind names to their sample keys.
var Kinds = map[string]string{
	"response_time": KeyResponseTime,
	"error_rate":    KeyErrorRate,
	"user_activity": KeyUserActivity,
}

// SampleStore is the capped list backend. *redis.Client satisfies it.
type SampleStore interface {
	PushCapped(ctx context.Context, key string, value []byte, max int64) error
	Recent(ctx context.Context, key string, n int64) ([]string, error)
}

// Request describes one finished HTTP request.
type Request struct {
	Method   string
	Path     string
	Status   int
	Duration time.Duration
	UserID   int64
	At       time.Time
}

type responseSample struct {
	Path   string    `json:"path"`
	Method string    `json:"method"`
	Status int       `json:"status"`
	Ms     float64   `json:"ms"`
	At     time.Time `json:"at"`
}

type activitySample struct {
	UserID int64     `json:"userId"`
	Path   string    `json:"path"`
	At     time.Time `json:"at"`
}

// Recorder writes request samples to Redis when available and to in-process
// rings otherwise.
type Recorder struct {
	remote SampleStore
	logger *slog.Logger

	mu    sync.Mutex
	rings map[string][]json.RawMessage
}

// NewRecorder builds a Recorder. remote may be nil.
func NewRecorder(remote SampleStore, logger *slog.Logger) *Recorder {
	return &Recorder{
		remote: remote,
		logger: logger.With("component", "usage"),
		rings:  make(map[string][]json.RawMessage),
	}
}

func (r *Recorder) Record(ctx context.Context, req Request) {
	if req.At.IsZero() {
		req.At = time.Now().UTC()
	}
	rs := responseSample{
		Path:   req.Path,
		Method: req.Method,
		Status: req.Status,
		Ms:     float64(req.Duration.Microseconds()) / 1000,
		At:     req.At,
	}
	r.push(ctx, KeyResponseTime, rs)
	if req.Status >= 400 {
		r.push(ctx, KeyErrorRate, rs)
	}
	if req.UserID != 0 {
		r.push(ctx, KeyUserActivity, activitySample{UserID: req.UserID, Path: req.Path, At: req.At})
	}
}

func (r *Recorder) push(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if r.remote != nil {
		err := r.remote.PushCapped(ctx, key, b, maxSamples)
		if err == nil {
			return
		}
		r.logger.Debug("sample push failed, keeping in memory", "key", key, "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ring := append([]json.RawMessage{b}, r.rings[key]...)
	if len(ring) > maxSamples {
		ring = ring[:maxSamples]
	}
	r.rings[key] = ring
}

// Recent returns the newest samples of a kind (response_time, error_rate or
// user_activity).
func (r *Recorder) Recent(ctx context.Context, kind string) ([]json.RawMessage, error) {
	key, ok := Kinds[kind]
	if !ok {
		return nil, apperror.Validation("unknown metric kind", map[string]string{"kind": "must be response_time, error_rate or user_activity"})
	}
	if r.remote != nil {
		vals, err := r.remote.Recent(ctx, key, maxSamples)
		if err == nil {
			out := make([]json.RawMessage, len(vals))
			for i, v := range vals {
				out[i] = json.RawMessage(v)
			}
			return out, nil
		}
		r.logger.Warn("sample read failed, using memory", "key", key, "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]json.RawMessage, len(r.rings[key]))
	copy(out, r.rings[key])
	return out, nil
}
