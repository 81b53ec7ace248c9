package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		out = append(out, k)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`INSERT INTO users (email, name, password_hash, role, created_at, updated_at) VALUES ('a@x.io', 'A', 'h', 'user', datetime('now'), datetime('now'))`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func newLocalManager(t *testing.T, passphrase string) (*Manager, string) {
	t.Helper()
	db := setupDB(t)
	dir := t.TempDir()
	m := NewManager(Config{Dir: dir, Passphrase: passphrase}, db, store.NewBackupStore(db), nil, testLogger())
	return m, dir
}

func TestManagerStateLifecycle(t *testing.T) {
	m := NewManager(Config{}, nil, nil, nil, testLogger())
	assert.Equal(t, StateDisabled, m.Status().State)

	m2 := NewManager(Config{Dir: t.TempDir()}, nil, nil, nil, testLogger())
	assert.Equal(t, StateIdle, m2.Status().State)

	m3 := NewManager(Config{S3: S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"}}, nil, nil, nil, testLogger())
	assert.Equal(t, StateIdle, m3.Status().State)
	assert.NotNil(t, m3.client)
}

func TestRunNowLocal(t *testing.T) {
	m, dir := newLocalManager(t, "")

	b, err := m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.BackupStatusCompleted, b.Status)
	assert.Greater(t, b.SizeBytes, int64(0))
	assert.Equal(t, dir, filepath.Dir(b.Location))

	data, err := os.ReadFile(b.Location)
	require.NoError(t, err)
	image, err := Decode(data, "")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(image, []byte("SQLite format 3\x00")))

	st := m.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.InProgress)
	assert.NotNil(t, st.LastBackup)
}

func TestRunNowEncryptedS3(t *testing.T) {
	db := setupDB(t)
	m := NewManager(Config{
		S3:         S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s"},
		Passphrase: "pass",
	}, db, store.NewBackupStore(db), nil, testLogger())
	mock := newMockS3()
	m.client = mock

	b, err := m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Contains(t, b.Filename, ".db.gz.enc")
	assert.Equal(t, []string{b.Location}, mock.keys())

	_, data, err := m.Fetch(context.Background(), b.ID)
	require.NoError(t, err)
	_, err = Decode(data, "wrong")
	assert.Error(t, err)
	image, err := Decode(data, "pass")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(image, []byte("SQLite format 3\x00")))
}

func TestRunNowUploadFailure(t *testing.T) {
	db := setupDB(t)
	m := NewManager(Config{S3: S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s"}}, db, store.NewBackupStore(db), nil, testLogger())
	mock := newMockS3()
	mock.putErr = errors.New("bucket gone")
	m.client = mock

	b, err := m.RunNow(context.Background())
	require.Error(t, err)
	require.NotNil(t, b)
	assert.Equal(t, model.BackupStatusFailed, b.Status)
	assert.Equal(t, StateError, m.Status().State)

	stored, err := m.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BackupStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "bucket gone")
}

func TestRunNowDisabled(t *testing.T) {
	m := NewManager(Config{}, nil, nil, nil, testLogger())
	_, err := m.RunNow(context.Background())
	assert.True(t, apperror.Is(err, apperror.KindUnavailable))
}

func TestDeleteRemovesFile(t *testing.T) {
	m, _ := newLocalManager(t, "")
	ctx := context.Background()

	b, err := m.RunNow(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, b.ID))

	_, err = os.Stat(b.Location)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	err = m.Delete(ctx, b.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCleanupRetention(t *testing.T) {
	m, _ := newLocalManager(t, "")
	ctx := context.Background()

	old, err := m.RunNow(ctx)
	require.NoError(t, err)
	fresh, err := m.RunNow(ctx)
	require.NoError(t, err)

	_, err = m.db.Exec(`UPDATE backups SET created_at = ? WHERE id = ?`, time.Now().UTC().AddDate(0, 0, -8), old.ID)
	require.NoError(t, err)

	require.NoError(t, m.Cleanup(ctx))

	list, err := m.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fresh.ID, list[0].ID)

	_, err = os.Stat(old.Location)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCheckScheduleOncePerDay(t *testing.T) {
	m, _ := newLocalManager(t, "")
	m.cfg.Hour = 2
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 2, 5, 0, 0, time.UTC)
	m.now = func() time.Time { return at }
	m.checkSchedule(ctx)
	at = at.Add(10 * time.Minute)
	m.checkSchedule(ctx)

	list, err := m.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	at = time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	m.checkSchedule(ctx)
	list, _ = m.List(ctx, 10)
	assert.Len(t, list, 1)
}

func TestManagerStatusCallback(t *testing.T) {
	var received []Status
	var mu sync.Mutex
	cb := func(s Status) {
		mu.Lock()
		received = append(received, s)
		mu.Unlock()
	}

	db := setupDB(t)
	m := NewManager(Config{Dir: t.TempDir()}, db, store.NewBackupStore(db), cb, testLogger())
	_, err := m.RunNow(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, StateRunning, received[0].State)
	assert.True(t, received[0].InProgress)
	assert.Equal(t, StateIdle, received[1].State)
}

func TestManagerStopSafety(t *testing.T) {
	m := NewManager(Config{Enabled: true, Dir: t.TempDir()}, nil, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	m.Stop()

	// Double stop should not panic
	m.Stop()
}

func TestManagerDisabledNoStart(t *testing.T) {
	m := NewManager(Config{Enabled: true}, nil, nil, nil, testLogger())
	m.Start(context.Background())
	// Stop should not block
	m.Stop()
}
