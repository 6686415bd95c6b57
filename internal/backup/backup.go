// Package backup takes encrypted snapshots of the questlog database and
// keeps them in S3-compatible object storage.
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
	_ "modernc.org/sqlite"

	"github.com/dukerupert/questlog/internal/model"
	"github.com/dukerupert/questlog/internal/store"
)

var (
	ErrNotConfigured = errors.New("backup not configured")
	ErrNotFound      = errors.New("backup not found")
	ErrNotRestorable = errors.New("backup did not complete")
)

// s3Client is the subset of the S3 API the manager needs.
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
	Prefix    string
}

type Config struct {
	S3         S3Config
	Passphrase string
	Interval   time.Duration
	Retention  time.Duration
}

// Enabled reports whether enough is configured to take snapshots.
func (c Config) Enabled() bool {
	return c.S3.Bucket != "" && c.S3.AccessKey != "" && c.S3.SecretKey != "" && c.Passphrase != ""
}

// Manager takes, prunes and restores snapshots. Runs are serialized.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	db      *sql.DB
	backups *store.BackupStore
	client  s3Client
	logger  *slog.Logger
}

func NewManager(cfg Config, db *sql.DB, bs *store.BackupStore, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		db:      db,
		backups: bs,
		logger:  logger.With("component", "backup"),
	}
	if cfg.Enabled() {
		m.client = newS3Client(cfg.S3)
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

func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Run takes a snapshot every Interval and prunes expired ones until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if !m.Enabled() {
		m.logger.Info("backups disabled")
		return nil
	}
	m.logger.Info("backups enabled", "interval", m.cfg.Interval, "retention", m.cfg.Retention, "bucket", m.cfg.S3.Bucket)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.RunNow(ctx); err != nil {
				m.logger.Error("scheduled backup failed", "error", err)
			}
			if n, err := m.Cleanup(ctx); err != nil {
				m.logger.Error("backup cleanup failed", "error", err)
			} else if n > 0 {
				m.logger.Info("pruned old backups", "count", n)
			}
		}
	}
}

// RunNow snapshots the database, encrypts it and uploads it.
func (m *Manager) RunNow(ctx context.Context) (*model.Backup, error) {
	if !m.Enabled() {
		return nil, ErrNotConfigured
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.objectKey(time.Now().UTC())
	record, err := m.backups.Create(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	size, err := m.upload(ctx, record)
	if err != nil {
		if markErr := m.backups.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			m.logger.Error("mark backup failed", "backup_id", record.ID, "error", markErr)
		}
		return nil, err
	}
	if err := m.backups.MarkCompleted(ctx, record.ID, size); err != nil {
		return nil, err
	}

	m.logger.Info("backup completed", "backup_id", record.ID, "key", key, "size_bytes", size)
	return m.backups.GetByID(ctx, record.ID)
}

func (m *Manager) upload(ctx context.Context, record *model.Backup) (int64, error) {
	tmpDir, err := os.MkdirTemp("", "questlog-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return 0, fmt.Errorf("snapshot database: %w", err)
	}
	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}

	sealed, err := Seal(plaintext, m.cfg.Passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	if err := m.backups.MarkUploading(ctx, record.ID); err != nil {
		return 0, err
	}
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(record.ObjectKey),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return int64(len(sealed)), nil
}

func (m *Manager) objectKey(at time.Time) string {
	name := fmt.Sprintf("questlog-%s.db.enc", at.Format("20060102T150405.000000000Z"))
	if m.cfg.S3.Prefix == "" {
		return name
	}
	return m.cfg.S3.Prefix + "/" + name
}

// List returns recent backup records, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]model.Backup, error) {
	return m.backups.List(ctx, limit)
}

// Cleanup deletes snapshots older than the retention window and returns how
// many completed snapshots were removed. A record is dropped only after its
// object is gone, so a failed delete is retried on the next pass.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	if !m.Enabled() || m.cfg.Retention <= 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	expired, err := m.backups.ListOlderThan(ctx, time.Now().UTC().Add(-m.cfg.Retention))
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, b := range expired {
		// Failed runs never stored an object.
		if b.Status != model.BackupStatusFailed {
			if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(m.cfg.S3.Bucket),
				Key:    aws.String(b.ObjectKey),
			}); err != nil {
				m.logger.Warn("delete backup object", "backup_id", b.ID, "key", b.ObjectKey, "error", err)
				continue
			}
		}
		if err := m.backups.Delete(ctx, b.ID); err != nil {
			return deleted, err
		}
		if b.Status == model.BackupStatusCompleted {
			deleted++
		}
	}
	return deleted, nil
}

// Restore downloads backup id, decrypts it, checks its integrity and writes it
// to dest. dest must not exist; the live database is never overwritten.
func (m *Manager) Restore(ctx context.Context, id int64, dest string) error {
	if !m.Enabled() {
		return ErrNotConfigured
	}

	record, err := m.backups.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNotFound
	}
	if record.Status != model.BackupStatusCompleted {
		return ErrNotRestorable
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("restore target %s already exists", dest)
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer out.Body.Close()

	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	plaintext, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("decrypt snapshot: %w", err)
	}

	tmp := dest + ".partial"
	if err := os.WriteFile(tmp, plaintext, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	defer os.Remove(tmp)

	if err := checkIntegrity(ctx, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("move snapshot into place: %w", err)
	}

	m.logger.Info("backup restored", "backup_id", id, "dest", dest)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
