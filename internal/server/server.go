package server

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dukerupert/larder/internal/account"
	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/config"
	"github.com/dukerupert/larder/internal/email"
	"github.com/dukerupert/larder/internal/handler"
	"github.com/dukerupert/larder/internal/household"
	"github.com/dukerupert/larder/internal/middleware"
	"github.com/dukerupert/larder/internal/redis"
	"github.com/dukerupert/larder/internal/reward"
	"github.com/dukerupert/larder/internal/shopping"
	"github.com/dukerupert/larder/internal/store"
	"github.com/dukerupert/larder/internal/usage"
	ws "github.com/dukerupert/larder/internal/websocket"
)

type Server struct {
	cfg           *config.Config
	hub           *ws.Hub
	tokens        *auth.TokenManager
	authH         *handler.AuthHandler
	householdH    *handler.HouseholdHandler
	listH         *handler.ListHandler
	rewardH       *handler.RewardHandler
	usageH        *handler.UsageHandler
	backupH       *handler.BackupHandler
	healthH       *handler.HealthHandler
	rateLimiter   *middleware.RateLimiter
	recorder      *usage.Recorder
	backupManager *backup.Manager
	logger        *slog.Logger
}

// New wires services and handlers. rdb may be nil, in which case rate
// limits and activity samples stay in process.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client, mailer *email.Client, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)

	accounts := account.NewService(db, tokens, account.Options{
		Timeout:      cfg.StoreTimeout,
		ResetTTL:     cfg.ResetTTL,
		IsAdminEmail: cfg.IsAdminEmail,
		Mailer:       mailer,

		ExposeResetToken: !cfg.IsProduction(),
	}, logger)
	registry := household.NewRegistry(db, cfg.StoreTimeout, mailer, logger)
	lists := shopping.NewLists(db, cfg.StoreTimeout, mailer, logger)
	rewards := reward.NewService(db, cfg.StoreTimeout, logger)
	usageSvc := usage.NewService(db, cfg.StoreTimeout)

	limiter := middleware.NewRateLimiter()
	var (
		samples usage.SampleStore
		pinger  handler.Pinger
	)
	if rdb != nil {
		limiter.UseRemote(rdb, logger.With("component", "ratelimit"))
		samples = rdb
		pinger = rdb
	}
	recorder := usage.NewRecorder(samples, logger)

	backupMgr := backup.NewManager(backup.Config{
		Enabled: cfg.BackupEnabled,
		S3: backup.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		},
		Dir:           cfg.BackupDir,
		Passphrase:    cfg.BackupPassphrase,
		Hour:          cfg.BackupHour,
		RetentionDays: cfg.BackupRetentionDays,
	}, db, store.NewBackupStore(db), func(s backup.Status) {
		hub.BroadcastAdmins(ws.Message{
			Type:   "backup_status",
			Entity: "backup",
			Action: string(s.State),
			Extra: map[string]any{
				"inProgress": s.InProgress,
				"error":      s.Error,
			},
		})
	}, logger.With("component", "backup"))

	return &Server{
		cfg:           cfg,
		hub:           hub,
		tokens:        tokens,
		authH:         handler.NewAuthHandler(accounts, logger.With("component", "auth")),
		householdH:    handler.NewHouseholdHandler(registry, hub, logger.With("component", "household_handler")),
		listH:         handler.NewListHandler(lists, hub, logger.With("component", "list_handler")),
		rewardH:       handler.NewRewardHandler(rewards, hub, logger.With("component", "reward_handler")),
		usageH:        handler.NewUsageHandler(usageSvc, recorder, logger.With("component", "usage_handler")),
		backupH:       handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler")),
		healthH:       handler.NewHealthHandler(db, pinger, cfg.Environment),
		rateLimiter:   limiter,
		recorder:      recorder,
		backupManager: backupMgr,
		logger:        logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// Hub returns the realtime hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /health", s.healthH.Health)
	apiMux.Handle("GET /metrics", promhttp.Handler())
	s.registerRoutes(apiMux)

	// The websocket upgrade bypasses tracing, whose writer wrapper cannot
	// hijack the connection.
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /api/ws", ws.HandleWebSocket(s.hub, s.tokens, s.logger.With("component", "websocket")))
	outerMux.Handle("/", otelhttp.NewHandler(middleware.Metrics(apiMux), "larder",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

type chain func(http.Handler) http.Handler

func (s *Server) wrap(h http.HandlerFunc, mws ...chain) http.Handler {
	var out http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// public routes are limited per client IP on the tighter auth budget.
func (s *Server) public(h http.HandlerFunc) http.Handler {
	return s.wrap(h,
		middleware.RateLimit(s.rateLimiter, "auth", middleware.ByIP, s.cfg.AuthRateLimit, s.cfg.RateLimitWindow),
		middleware.Activity(s.recorder),
	)
}

// protect requires a valid access token and applies the per-user budget.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	return s.wrap(h,
		middleware.RequireAuth(s.tokens),
		middleware.RateLimit(s.rateLimiter, "api", middleware.ByUser, s.cfg.RateLimitCount, s.cfg.RateLimitWindow),
		middleware.Activity(s.recorder),
	)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.protect(func(w http.ResponseWriter, r *http.Request) {
		middleware.RequireAdmin(h).ServeHTTP(w, r)
	})
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Auth
	mux.Handle("POST /api/auth/register", s.public(s.authH.Register))
	mux.Handle("POST /api/auth/login", s.public(s.authH.Login))
	mux.Handle("POST /api/auth/forgot-password", s.public(s.authH.ForgotPassword))
	mux.Handle("POST /api/auth/reset-password", s.public(s.authH.ResetPassword))
	mux.Handle("GET /api/auth/me", s.protect(s.authH.Me))
	mux.Handle("PUT /api/users/me", s.protect(s.authH.UpdateProfile))

	// Households
	mux.Handle("POST /api/households", s.protect(s.householdH.Create))
	mux.Handle("GET /api/households", s.protect(s.householdH.List))
	mux.Handle("GET /api/households/{id}", s.protect(s.householdH.Get))
	mux.Handle("PUT /api/households/{id}", s.protect(s.householdH.Update))
	mux.Handle("DELETE /api/households/{id}", s.protect(s.householdH.Delete))
	mux.Handle("POST /api/households/{id}/members", s.protect(s.householdH.AddMember))
	mux.Handle("PUT /api/households/{id}/members/{memberId}", s.protect(s.householdH.UpdateMemberRole))
	mux.Handle("DELETE /api/households/{id}/members/{memberId}", s.protect(s.householdH.RemoveMember))

	// Shopping lists
	mux.Handle("GET /api/lists", s.protect(s.listH.List))
	mux.Handle("POST /api/lists", s.protect(s.listH.Create))
	mux.Handle("GET /api/lists/{id}", s.protect(s.listH.Get))
	mux.Handle("PUT /api/lists/{id}", s.protect(s.listH.Update))
	mux.Handle("DELETE /api/lists/{id}", s.protect(s.listH.Delete))
	mux.Handle("POST /api/lists/{id}/items", s.protect(s.listH.AddItem))
	mux.Handle("PUT /api/lists/{id}/items/{itemId}", s.protect(s.listH.UpdateItem))
	mux.Handle("DELETE /api/lists/{id}/items/{itemId}", s.protect(s.listH.RemoveItem))
	mux.Handle("POST /api/lists/{id}/clear-completed", s.protect(s.listH.ClearCompleted))
	mux.Handle("POST /api/lists/{id}/share", s.protect(s.listH.Share))
	mux.Handle("DELETE /api/lists/{id}/share/{userId}", s.protect(s.listH.Unshare))

	// Rewards and points
	mux.Handle("GET /api/rewards", s.protect(s.rewardH.List))
	mux.Handle("GET /api/rewards/history", s.protect(s.rewardH.History))
	mux.Handle("GET /api/rewards/{id}", s.protect(s.rewardH.Get))
	mux.Handle("POST /api/rewards", s.admin(s.rewardH.Create))
	mux.Handle("PUT /api/rewards/{id}", s.admin(s.rewardH.Update))
	mux.Handle("DELETE /api/rewards/{id}", s.admin(s.rewardH.Delete))
	mux.Handle("POST /api/rewards/{id}/claim", s.protect(s.rewardH.Claim))
	mux.Handle("POST /api/users/{id}/points", s.admin(s.rewardH.Credit))

	// Usage metrics
	mux.Handle("GET /api/metrics/user", s.protect(s.usageH.User))
	mux.Handle("GET /api/metrics/household/{id}", s.protect(s.usageH.Household))
	mux.Handle("GET /api/metrics/system/{kind}", s.admin(s.usageH.System))

	// Backups
	mux.Handle("GET /api/backups", s.admin(s.backupH.List))
	mux.Handle("POST /api/backups", s.admin(s.backupH.Run))
	mux.Handle("DELETE /api/backups/{id}", s.admin(s.backupH.Delete))
	mux.Handle("GET /api/backups/{id}/download", s.admin(s.backupH.Download))
}
