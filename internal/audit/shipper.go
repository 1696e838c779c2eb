// Package audit records state-changing portal requests: membership requests and
// decisions, departures and embargo period changes. Entries are kept apart from the
// request log so they can be routed to a file or an external collector.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/meertime/dataportal/internal/config"
)

// LogEntry is a single audit record
type LogEntry struct {
	Timestamp  time.Time              `json:"timestamp"`
	Action     string                 `json:"action"`
	UserID     int64                  `json:"user_id,omitempty"`
	Username   string                 `json:"username,omitempty"`
	Project    string                 `json:"project,omitempty"`
	ResourceID string                 `json:"resource_id,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	StatusCode int                    `json:"status_code"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Shipper sends audit entries to a destination
type Shipper interface {
	Ship(ctx context.Context, entry *LogEntry) error
	Close() error
}

// New builds the shippers enabled in cfg. The slog sink is always present.
func New(cfg config.AuditConfig) (*MultiShipper, error) {
	shippers := []Shipper{NewSlogShipper(slog.Default())}

	if cfg.FilePath != "" {
		fs, err := NewFileShipper(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		shippers = append(shippers, fs)
	}
	if cfg.WebhookURL != "" {
		shippers = append(shippers, NewWebhookShipper(cfg.WebhookURL, cfg.WebhookTimeout, nil))
	}
	return NewMultiShipper(shippers...), nil
}

// MultiShipper ships to every configured destination
type MultiShipper struct {
	shippers []Shipper
}

// NewMultiShipper creates a MultiShipper
func NewMultiShipper(shippers ...Shipper) *MultiShipper {
	return &MultiShipper{shippers: shippers}
}

// Ship sends the entry to all destinations. A failing destination does not stop the
// others; the errors are joined.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	var errs []error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all destinations
func (ms *MultiShipper) Close() error {
	var errs []error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SlogShipper writes entries to a structured logger
type SlogShipper struct {
	logger *slog.Logger
}

// NewSlogShipper creates a SlogShipper
func NewSlogShipper(logger *slog.Logger) *SlogShipper {
	return &SlogShipper{logger: logger.With("log_type", "audit")}
}

// Ship logs the entry at info level
func (s *SlogShipper) Ship(ctx context.Context, entry *LogEntry) error {
	s.logger.InfoContext(ctx, entry.Action,
		"user_id", entry.UserID,
		"username", entry.Username,
		"project", entry.Project,
		"resource_id", entry.ResourceID,
		"ip", entry.IPAddress,
		"request_id", entry.RequestID,
		"status", entry.StatusCode,
	)
	return nil
}

func (s *SlogShipper) Close() error { return nil }

// WebhookShipper posts each entry as JSON to a URL
type WebhookShipper struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookShipper creates a WebhookShipper; a zero timeout means ten seconds
func NewWebhookShipper(url string, timeout time.Duration, headers map[string]string) *WebhookShipper {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookShipper{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// Ship posts the entry
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send audit webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("audit webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (ws *WebhookShipper) Close() error { return nil }

// FileShipper appends entries to a file as JSON lines
type FileShipper struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileShipper opens (or creates) the audit file for appending
func NewFileShipper(path string) (*FileShipper, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileShipper{file: file}, nil
}

// Ship writes one line per entry
func (fs *FileShipper) Ship(_ context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close closes the file
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
