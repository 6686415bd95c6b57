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

	"github.com/dukerupert/questlog/internal/database"
	"github.com/dukerupert/questlog/internal/model"
	"github.com/dukerupert/questlog/internal/store"
)

// mockS3Client implements s3Client in memory.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	// delErr fails DeleteObject for the listed keys.
	delErr map[string]error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
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
	if err := m.delErr[*input.Key]; err != nil {
		return nil, err
	}
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

var testConfig = Config{
	S3:         S3Config{Bucket: "questlog", Region: "us-east-1", AccessKey: "key", SecretKey: "secret", Prefix: "snapshots"},
	Passphrase: "hunter22",
	Interval:   time.Hour,
	Retention:  24 * time.Hour,
}

func setupManager(t *testing.T) (*Manager, *mockS3Client, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(testConfig, db, store.NewBackupStore(db), logger)
	mock := newMockS3()
	m.client = mock
	return m, mock, db
}

func TestConfigEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"complete", testConfig, true},
		{"empty", Config{}, false},
		{"no passphrase", Config{S3: testConfig.S3}, false},
		{"no bucket", Config{S3: S3Config{AccessKey: "k", SecretKey: "s"}, Passphrase: "p"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDisabledManager(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(Config{}, nil, nil, logger)

	if m.Enabled() {
		t.Error("manager without config should be disabled")
	}
	if _, err := m.RunNow(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("RunNow err = %v, want ErrNotConfigured", err)
	}
	if err := m.Restore(context.Background(), 1, "x.db"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Restore err = %v, want ErrNotConfigured", err)
	}
	if n, err := m.Cleanup(context.Background()); err != nil || n != 0 {
		t.Errorf("Cleanup = (%d, %v), want (0, nil)", n, err)
	}
	if err := m.Run(context.Background()); err != nil {
		t.Errorf("Run on disabled manager: %v", err)
	}
}

func TestRunNowUploadsEncryptedSnapshot(t *testing.T) {
	m, mock, _ := setupManager(t)
	ctx := context.Background()

	b, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	if b.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want %q", b.Status, model.BackupStatusCompleted)
	}
	if b.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if filepath.Dir(b.ObjectKey) != "snapshots" {
		t.Errorf("object key = %q, want snapshots/ prefix", b.ObjectKey)
	}

	sealed := mock.objects[b.ObjectKey]
	if int64(len(sealed)) != b.SizeBytes {
		t.Errorf("size_bytes = %d, object is %d bytes", b.SizeBytes, len(sealed))
	}
	plaintext, err := Open(sealed, testConfig.Passphrase)
	if err != nil {
		t.Fatalf("open uploaded snapshot: %v", err)
	}
	if !bytes.HasPrefix(plaintext, []byte("SQLite format 3\x00")) {
		t.Error("decrypted snapshot is not a SQLite database")
	}
}

func TestRunNowUploadFailure(t *testing.T) {
	m, mock, _ := setupManager(t)
	mock.putErr = errors.New("bucket unreachable")
	ctx := context.Background()

	if _, err := m.RunNow(ctx); err == nil {
		t.Fatal("expected error")
	}

	list, err := m.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].Status != model.BackupStatusFailed {
		t.Errorf("status = %q, want %q", list[0].Status, model.BackupStatusFailed)
	}
	if list[0].ErrorMessage == "" {
		t.Error("expected error message on failed backup")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	m, _, db := setupManager(t)
	ctx := context.Background()

	users := store.NewUserStore(db)
	u, err := users.Create(ctx, "hero@example.com", "Hero", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	b, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("run now: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(ctx, b.ID, dest); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := os.Stat(dest + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file should be removed")
	}

	restored, err := database.Open(dest)
	if err != nil {
		t.Fatalf("open restored db: %v", err)
	}
	defer restored.Close()

	got, err := store.NewUserStore(restored).GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get user from restored db: %v", err)
	}
	if got == nil || got.Email != "hero@example.com" {
		t.Errorf("restored user = %+v, want hero@example.com", got)
	}
}

func TestRestoreErrors(t *testing.T) {
	m, mock, _ := setupManager(t)
	ctx := context.Background()

	if err := m.Restore(ctx, 999, filepath.Join(t.TempDir(), "a.db")); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}

	b, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("run now: %v", err)
	}

	existing := filepath.Join(t.TempDir(), "live.db")
	if err := os.WriteFile(existing, []byte("live"), 0o600); err != nil {
		t.Fatalf("write existing: %v", err)
	}
	if err := m.Restore(ctx, b.ID, existing); err == nil {
		t.Error("expected error when restore target exists")
	}
	if data, _ := os.ReadFile(existing); string(data) != "live" {
		t.Error("existing file was modified")
	}

	mock.putErr = errors.New("down")
	if _, err := m.RunNow(ctx); err == nil {
		t.Fatal("expected failed run")
	}
	list, _ := m.List(ctx, 1)
	if err := m.Restore(ctx, list[0].ID, filepath.Join(t.TempDir(), "b.db")); !errors.Is(err, ErrNotRestorable) {
		t.Errorf("failed backup: err = %v, want ErrNotRestorable", err)
	}

	wrongCfg := testConfig
	wrongCfg.Passphrase = "not-it"
	wrong := NewManager(wrongCfg, m.db, m.backups, m.logger)
	wrong.client = mock
	if err := wrong.Restore(ctx, b.ID, filepath.Join(t.TempDir(), "c.db")); !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("wrong passphrase: err = %v, want ErrBadPassphrase", err)
	}
}

func TestCleanupPrunesExpired(t *testing.T) {
	m, mock, db := setupManager(t)
	ctx := context.Background()

	fresh, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("run now: %v", err)
	}

	oldKey := "snapshots/questlog-old.db.enc"
	mock.objects[oldKey] = []byte("old")
	_, err = db.Exec(
		`INSERT INTO backups (object_key, size_bytes, status, started_at, completed_at) VALUES (?, 3, ?, ?, ?)`,
		oldKey, model.BackupStatusCompleted, time.Now().UTC().Add(-48*time.Hour), time.Now().UTC().Add(-48*time.Hour),
	)
	if err != nil {
		t.Fatalf("insert old backup: %v", err)
	}

	n, err := m.Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if mock.has(oldKey) {
		t.Error("old object should be deleted")
	}
	if !mock.has(fresh.ObjectKey) {
		t.Error("fresh object should be kept")
	}

	list, err := m.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != fresh.ID {
		t.Errorf("remaining backups = %+v, want only %d", list, fresh.ID)
	}
}

func TestCleanupKeepsRecordWhenObjectDeleteFails(t *testing.T) {
	m, mock, db := setupManager(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	stuck := "snapshots/questlog-stuck.db.enc"
	gone := "snapshots/questlog-gone.db.enc"
	for _, key := range []string{stuck, gone} {
		mock.objects[key] = []byte("old")
		if _, err := db.Exec(
			`INSERT INTO backups (object_key, size_bytes, status, started_at, completed_at) VALUES (?, 3, ?, ?, ?)`,
			key, model.BackupStatusCompleted, old, old,
		); err != nil {
			t.Fatalf("insert %s: %v", key, err)
		}
	}
	if _, err := db.Exec(
		`INSERT INTO backups (object_key, status, error_message, started_at) VALUES (?, ?, 'boom', ?)`,
		"snapshots/questlog-failed.db.enc", model.BackupStatusFailed, old,
	); err != nil {
		t.Fatalf("insert failed run: %v", err)
	}
	mock.delErr = map[string]error{stuck: errors.New("AccessDenied")}

	n, err := m.Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if !mock.has(stuck) || mock.has(gone) {
		t.Errorf("objects: stuck present = %v, gone present = %v; want true, false", mock.has(stuck), mock.has(gone))
	}

	list, err := m.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ObjectKey != stuck {
		t.Fatalf("remaining backups = %+v, want only the undeleted %s", list, stuck)
	}

	// The next pass retries the object and then drops the record.
	mock.delErr = nil
	if n, err := m.Cleanup(ctx); err != nil || n != 1 {
		t.Fatalf("second cleanup = %d, %v; want 1, nil", n, err)
	}
	if mock.has(stuck) {
		t.Error("stuck object should be deleted on retry")
	}
	if list, _ := m.List(ctx, 10); len(list) != 0 {
		t.Errorf("remaining backups = %+v, want none", list)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
