package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/metrics"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds backup manager configuration.
type Config struct {
	Enabled       bool
	S3            S3Config
	Dir           string
	Passphrase    string
	Hour          int
	RetentionDays int
	Timeout       time.Duration
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"lastBackup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"inProgress"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Manager takes database snapshots and ships them to S3 or a local
// directory.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback
	lastDay  string

	db     *sql.DB
	store  *store.BackupStore
	client s3Client
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new backup manager.
func NewManager(cfg Config, db *sql.DB, bs *store.BackupStore, callback StatusCallback, logger *slog.Logger) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	m := &Manager{
		cfg:      cfg,
		db:       db,
		store:    bs,
		callback: callback,
		logger:   logger,
		now:      time.Now,
		status:   Status{State: StateIdle},
	}
	if cfg.S3.complete() {
		m.client = newS3Client(cfg.S3)
	} else if cfg.Dir == "" {
		m.status.State = StateDisabled
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Start begins the daily schedule. It is a no-op unless scheduled backups
// are enabled.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if !m.cfg.Enabled || m.status.State == StateDisabled {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("backup scheduler started", "hour", m.cfg.Hour, "retention_days", m.cfg.RetentionDays, "s3", m.client != nil)

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()
}

// Stop gracefully stops the backup manager.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastBackup == nil {
		s.LastBackup = m.status.LastBackup
	}
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

// checkSchedule runs at most one backup per UTC day, in the configured hour.
func (m *Manager) checkSchedule(ctx context.Context) {
	now := m.now().UTC()
	day := now.Format("2006-01-02")

	m.mu.Lock()
	due := now.Hour() == m.cfg.Hour && m.lastDay != day
	if due {
		m.lastDay = day
	}
	m.mu.Unlock()
	if !due {
		return
	}

	if _, err := m.RunNow(ctx); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
	}
	if err := m.Cleanup(ctx); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	}
}

// RunNow takes a snapshot immediately. Only one backup runs at a time.
func (m *Manager) RunNow(ctx context.Context) (*model.Backup, error) {
	m.mu.Lock()
	if m.status.State == StateDisabled {
		m.mu.Unlock()
		return nil, apperror.Unavailable(errors.New("backup storage not configured"))
	}
	if m.status.InProgress {
		m.mu.Unlock()
		return nil, apperror.Conflict("a backup is already running")
	}
	m.status.InProgress = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.Timeout)
	defer cancel()

	m.setStatus(Status{State: StateRunning, InProgress: true})

	b, err := m.run(ctx)
	if err != nil {
		metrics.ObserveBackup("failed")
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return b, apperror.Internal(err)
	}

	metrics.ObserveBackup("completed")
	now := m.now().UTC()
	m.setStatus(Status{State: StateIdle, LastBackup: &now})
	m.logger.Info("backup completed", "backup_id", b.ID, "location", b.Location, "bytes", b.SizeBytes)
	return b, nil
}

func (m *Manager) run(ctx context.Context) (*model.Backup, error) {
	name := fmt.Sprintf("larder-%s-%s.db.gz", m.now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	if m.cfg.Passphrase != "" {
		name += ".enc"
	}
	location := "backups/" + name
	if m.client == nil {
		location = filepath.Join(m.cfg.Dir, name)
	}

	record, err := m.store.Create(ctx, name, location)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	fail := func(err error) (*model.Backup, error) {
		if uerr := m.store.UpdateStatus(ctx, record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Warn("mark backup failed", "backup_id", record.ID, "error", uerr)
		}
		record.Status = model.BackupStatusFailed
		record.ErrorMessage = err.Error()
		return record, err
	}

	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return fail(err)
	}
	payload, err := Encode(snapshot, m.cfg.Passphrase)
	if err != nil {
		return fail(err)
	}

	if err := m.store.UpdateStatus(ctx, record.ID, model.BackupStatusUploading, ""); err != nil {
		return fail(err)
	}
	if err := m.put(ctx, location, payload); err != nil {
		return fail(err)
	}

	size := int64(len(payload))
	if err := m.store.UpdateCompleted(ctx, record.ID, size); err != nil {
		return fail(err)
	}
	return m.store.GetByID(ctx, record.ID)
}

// snapshot copies the live database with VACUUM INTO, which is consistent
// under WAL without stopping writers.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "larder-backup-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	return os.ReadFile(path)
}

func (m *Manager) put(ctx context.Context, location string, payload []byte) error {
	if m.client != nil {
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(m.cfg.S3.Bucket),
			Key:           aws.String(location),
			Body:          bytes.NewReader(payload),
			ContentLength: aws.Int64(int64(len(payload))),
		})
		if err != nil {
			return fmt.Errorf("upload to s3: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(location), 0o700); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	if err := os.WriteFile(location, payload, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

// Fetch returns the stored bytes of a backup.
func (m *Manager) Fetch(ctx context.Context, id int64) (*model.Backup, []byte, error) {
	b, err := m.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if b.Status != model.BackupStatusCompleted {
		return nil, nil, apperror.InvalidOperation("backup did not complete")
	}
	if m.client != nil {
		out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(b.Location),
		})
		if err != nil {
			return nil, nil, apperror.Internal(fmt.Errorf("download from s3: %w", err))
		}
		defer out.Body.Close()
		data, err := io.ReadAll(out.Body)
		if err != nil {
			return nil, nil, apperror.Internal(err)
		}
		return b, data, nil
	}
	data, err := os.ReadFile(b.Location)
	if err != nil {
		return nil, nil, apperror.Internal(err)
	}
	return b, data, nil
}

func (m *Manager) List(ctx context.Context, limit int) ([]model.Backup, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	backups, err := m.store.List(ctx, limit)
	return backups, apperror.Wrap(err)
}

func (m *Manager) Get(ctx context.Context, id int64) (*model.Backup, error) {
	b, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(err)
	}
	if b == nil {
		return nil, apperror.NotFound("backup not found")
	}
	return b, nil
}

// Delete removes a backup's snapshot and its record.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	b, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	m.remove(ctx, b.Location)
	return apperror.Wrap(m.store.Delete(ctx, id))
}

// Cleanup deletes backups older than the retention period.
func (m *Manager) Cleanup(ctx context.Context) error {
	before := m.now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	locations, err := m.store.DeleteOlderThan(ctx, before)
	if err != nil {
		return fmt.Errorf("delete old backups: %w", err)
	}
	for _, loc := range locations {
		m.remove(ctx, loc)
	}
	if len(locations) > 0 {
		m.logger.Info("old backups removed", "count", len(locations))
	}
	return nil
}

func (m *Manager) remove(ctx context.Context, location string) {
	if m.client != nil {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(location),
		}); err != nil {
			m.logger.Warn("delete s3 object", "key", location, "error", err)
		}
		return
	}
	if err := os.Remove(location); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("delete backup file", "path", location, "error", err)
	}
}
