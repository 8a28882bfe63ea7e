// Package backup uploads encrypted document snapshots to S3-compatible
// storage. A snapshot is the full document JSON at one revision; restore
// is a matter of decrypting the object and issuing an ordinary
// compare-and-swap write, so no special recovery path exists.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hearthside/pantrysync/internal/model"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration. Interval 0 disables the
// scheduled loop (manual runs still work).
type Config struct {
	S3         S3Config
	Passphrase string
	Prefix     string
	Interval   time.Duration
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
	State        State      `json:"state"`
	LastBackup   *time.Time `json:"last_backup,omitempty"`
	LastRevision int64      `json:"last_revision,omitempty"`
	Error        string     `json:"error,omitempty"`
	InProgress   bool       `json:"in_progress"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// SnapshotFunc supplies the document state to back up.
type SnapshotFunc func() (model.Document, int64)

// Manager manages encrypted document backups to S3-compatible storage.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	snapshot SnapshotFunc
	callback StatusCallback
	client   s3Client
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a backup manager. It is disabled until the S3
// configuration and passphrase are complete.
func NewManager(cfg Config, snapshot SnapshotFunc, callback StatusCallback, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		snapshot: snapshot,
		callback: callback,
		logger:   logger,
		status:   Status{State: StateDisabled},
	}

	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
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

// Start begins the scheduled backup loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled || m.cfg.Interval <= 0 {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Run(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the scheduled loop.
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

// Enabled reports whether the manager has a usable configuration.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.State != StateDisabled
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

// Run performs one backup: snapshot, encrypt, upload. Concurrent runs
// are collapsed; the second caller returns immediately.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.client == nil {
		m.mu.Unlock()
		return fmt.Errorf("backup is not configured")
	}
	if m.status.InProgress {
		m.mu.Unlock()
		return nil
	}
	m.status.InProgress = true
	client := m.client
	cfg := m.cfg
	m.mu.Unlock()

	m.setStatus(Status{State: StateRunning, InProgress: true})

	doc, revision := m.snapshot()
	err := m.upload(ctx, client, cfg, doc, revision)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return err
	}

	now := time.Now().UTC()
	m.setStatus(Status{State: StateIdle, LastBackup: &now, LastRevision: revision})
	m.logger.Info("backup uploaded", "revision", revision)
	return nil
}

func (m *Manager) upload(ctx context.Context, client s3Client, cfg Config, doc model.Document, revision int64) error {
	plaintext, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	sealed, err := Encrypt(plaintext, cfg.Passphrase)
	if err != nil {
		return err
	}

	key := objectKey(cfg.Prefix, revision, time.Now().UTC())
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(cfg.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(sealed),
	})
	if err != nil {
		return fmt.Errorf("upload backup: %w", err)
	}
	return nil
}

// Restore downloads and decrypts the backup object at key, returning the
// document it contains. The caller decides what to do with it (normally
// a compare-and-swap write against the live store).
func (m *Manager) Restore(ctx context.Context, key string) (model.Document, error) {
	m.mu.RLock()
	client := m.client
	cfg := m.cfg
	m.mu.RUnlock()

	var doc model.Document
	if client == nil {
		return doc, fmt.Errorf("backup is not configured")
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return doc, fmt.Errorf("download backup: %w", err)
	}
	defer out.Body.Close()

	var sealed bytes.Buffer
	if _, err := sealed.ReadFrom(out.Body); err != nil {
		return doc, fmt.Errorf("read backup: %w", err)
	}

	plaintext, err := Decrypt(sealed.Bytes(), cfg.Passphrase)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return doc, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}

func objectKey(prefix string, revision int64, at time.Time) string {
	if prefix == "" {
		prefix = "pantrysync"
	}
	return fmt.Sprintf("%s/backup-%s-r%d.json.enc", prefix, at.Format("20060102-150405"), revision)
}
