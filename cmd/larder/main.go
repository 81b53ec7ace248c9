package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/config"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/email"
	"github.com/dukerupert/larder/internal/logging"
	"github.com/dukerupert/larder/internal/redis"
	"github.com/dukerupert/larder/internal/server"
	"github.com/dukerupert/larder/internal/tracing"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "restore" {
		if err := restore(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "restore:", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, logger.With("component", "tracing"), cfg.OTLPEndpoint, "larder", cfg.Environment)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.Info("database ready", "path", cfg.DBPath)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			// Redis only backs rate limits and samples; run without it.
			logger.Warn("redis unavailable, using in-memory limits", "error", err)
			rdb = nil
		} else {
			defer rdb.Close()
			logger.Info("redis connected")
		}
	}

	mailer := email.NewClient(cfg.PostmarkToken, cfg.EmailFrom, cfg.BaseURL)
	if !mailer.Configured() {
		logger.Info("email disabled: LARDER_POSTMARK_TOKEN not set")
	}

	srv := server.New(cfg, db, rdb, mailer, logger)

	srv.BackupManager().Start(ctx)
	defer srv.BackupManager().Stop()

	go srv.RateLimiter().RunCleanup(ctx, 5*time.Minute)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("larder listening", "addr", httpServer.Addr, "env", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// restore decodes a backup file into a SQLite database file:
//
//	larder restore <backup-file> <target.db>
//
// Encrypted backups (.enc) read the passphrase from LARDER_BACKUP_PASSPHRASE.
func restore(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: larder restore <backup-file> <target.db>")
	}
	src, dst := args[0], args[1]
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%s already exists", dst)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	passphrase := ""
	if strings.HasSuffix(src, ".enc") {
		passphrase = os.Getenv("LARDER_BACKUP_PASSPHRASE")
		if passphrase == "" {
			return errors.New("encrypted backup: set LARDER_BACKUP_PASSPHRASE")
		}
	}
	image, err := backup.Decode(data, passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, image, 0o600); err != nil {
		return err
	}

	// Opening applies pending migrations.
	db, err := database.Open(dst)
	if err != nil {
		return fmt.Errorf("verify restored database: %w", err)
	}
	defer db.Close()
	if err := database.Check(context.Background(), db); err != nil {
		return err
	}
	v, err := database.Version(db)
	if err != nil {
		return err
	}
	fmt.Printf("restored %s to %s (schema version %d)\n", src, dst, v)
	return nil
}
