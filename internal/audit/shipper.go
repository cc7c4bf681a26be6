// Package audit delivers audit events for state-changing requests (organization
// create, rename, delete, login, tenant data writes) to destinations outside the
// application log: an append-only JSON-lines file and an HTTP webhook for a SIEM.
// Several destinations can be active at once through MultiShipper.
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

	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/safego"
)

// Event is one audit record.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Status    int       `json:"status"`
	AdminID   string    `json:"admin_id,omitempty"`
	OrgName   string    `json:"org_name,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Shipper delivers audit events to one destination.
type Shipper interface {
	Ship(ctx context.Context, event *Event) error
	Close() error
}

// MultiShipper fans an event out to every configured destination.
type MultiShipper struct {
	shippers []Shipper
	mu       sync.RWMutex
}

var _ Shipper = (*MultiShipper)(nil)

// NewMultiShipper builds a shipper per enabled sink.
func NewMultiShipper(sinks []config.AuditSinkConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}
	for i := range sinks {
		sink := sinks[i]
		if !sink.Enabled {
			continue
		}

		var (
			s   Shipper
			err error
		)
		switch sink.Type {
		case "webhook":
			s, err = NewWebhookShipper(sink)
		case "file":
			s, err = NewFileShipper(sink)
		default:
			err = fmt.Errorf("unknown sink type: %s", sink.Type)
		}
		if err != nil {
			_ = ms.Close()
			return nil, fmt.Errorf("failed to create %s audit sink: %w", sink.Type, err)
		}
		ms.shippers = append(ms.shippers, s)
	}
	return ms, nil
}

// Len returns the number of active destinations.
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends event to every destination. One failing destination does not stop
// the others; their errors are joined.
func (ms *MultiShipper) Ship(ctx context.Context, event *Event) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var errs []error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every destination.
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var errs []error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	ms.shippers = nil
	return errors.Join(errs...)
}

// WebhookShipper posts events to an HTTP endpoint, one per request or batched
// into a JSON array when BatchSize > 0.
type WebhookShipper struct {
	cfg       config.AuditSinkConfig
	client    *http.Client
	batchCh   chan *Event
	closeCh   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper creates a webhook shipper and, when batching, starts its flusher.
func NewWebhookShipper(cfg config.AuditSinkConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	ws := &WebhookShipper{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		batchCh: make(chan *Event, 1000),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cfg.BatchSize > 0 {
		safego.Go("audit-webhook-batcher", ws.processBatches)
	} else {
		close(ws.done)
	}
	return ws, nil
}

func (ws *WebhookShipper) processBatches() {
	defer close(ws.done)

	ticker := time.NewTicker(ws.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*Event, 0, ws.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := ws.post(batch); err != nil {
			slog.Warn("failed to send audit batch", "url", ws.cfg.URL, "events", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-ws.batchCh:
			batch = append(batch, e)
			if len(batch) >= ws.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ws.closeCh:
			for {
				select {
				case e := <-ws.batchCh:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (ws *WebhookShipper) post(payload any) error {
	ctx, cancel := context.WithTimeout(context.Background(), ws.cfg.Timeout)
	defer cancel()
	return ws.send(ctx, payload)
}

// Ship queues event when batching, otherwise posts it immediately. A full queue
// falls back to a direct post.
func (ws *WebhookShipper) Ship(ctx context.Context, event *Event) error {
	if ws.cfg.BatchSize > 0 {
		select {
		case <-ws.closeCh:
			return errors.New("audit webhook shipper is closed")
		default:
		}
		select {
		case ws.batchCh <- event:
			return nil
		default:
		}
	}
	return ws.send(ctx, event)
}

func (ws *WebhookShipper) send(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close flushes any queued events and stops the flusher.
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() { close(ws.closeCh) })
	<-ws.done
	return nil
}

// FileShipper appends events as JSON lines, rotating by size.
type FileShipper struct {
	cfg  config.AuditSinkConfig
	file *os.File
	mu   sync.Mutex
}

// NewFileShipper opens (or creates) the audit file for appending.
func NewFileShipper(cfg config.AuditSinkConfig) (*FileShipper, error) {
	if cfg.Path == "" {
		return nil, errors.New("file path is required")
	}
	file, err := openAppend(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileShipper{cfg: cfg, file: file}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304 -- operator-configured path
}

// Ship writes event as one line.
func (fs *FileShipper) Ship(_ context.Context, event *Event) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cfg.MaxSizeMB > 0 {
		if info, err := fs.file.Stat(); err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				return fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// rotate shifts path.N to path.N+1, moves the live file to path.1 and reopens.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	path := fs.cfg.Path
	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", path, fs.cfg.MaxBackups))
	}
	for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	_ = os.Rename(path, path+".1")

	file, err := openAppend(path)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close closes the file.
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
