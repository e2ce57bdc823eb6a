package upload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/consent"
	"github.com/synheart/synheart-runtime/internal/fusion"
	"github.com/synheart/synheart-runtime/internal/metrics"
	"github.com/synheart/synheart-runtime/internal/synerr"
	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
)

// DefaultBatchSize and DefaultMaxBatchWait are the spec's batching
// defaults: flush at 16 queued items or after 5s, whichever first.
const (
	DefaultBatchSize    = 16
	DefaultMaxBatchWait = 5 * time.Second
	flushPollInterval   = 100 * time.Millisecond
)

// Module is the upload-queue runtime component (depends on "fusion"
// and "consent", optional): it consumes the fusion HSV stream subject
// to cloud-upload consent, batches and canonicalizes items, and drains
// them to the cloud snapshot endpoint with bounded-retry backoff.
type Module struct {
	mu     sync.Mutex
	status module.Status
	logger *zap.Logger

	Queue  *Queue
	client *Client

	fusionMod  *fusion.Engine
	consentMod *consent.Module

	batchSize int
	maxWait   time.Duration
	platform  string

	unsubscribe func()
	cancel      context.CancelFunc
	flushDone   chan struct{}
}

// New constructs an uninitialized upload Module.
func New() *Module {
	return &Module{
		status:    module.StatusUninitialized,
		batchSize: DefaultBatchSize,
		maxWait:   DefaultMaxBatchWait,
	}
}

func (m *Module) Info() module.Info {
	return module.Info{
		Name:         "upload",
		Version:      "1.0.0",
		Description:  "canonicalized, HMAC-signed, retried cloud upload of the HSV stream",
		Dependencies: []string{"fusion", "consent"},
		Required:     false,
	}
}

func (m *Module) Status() module.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Module) setStatus(s module.Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Module) Init(ctx context.Context, deps module.Dependencies) error {
	status := m.Status()
	if status != module.StatusUninitialized && status != module.StatusError {
		return nil
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m.logger = logger

	m.Queue = NewQueue(deps.Store)
	if err := m.Queue.Migrate(ctx); err != nil {
		return fmt.Errorf("upload: migrate queue: %w", err)
	}
	if err := m.Queue.Load(ctx); err != nil {
		return fmt.Errorf("upload: load queue: %w", err)
	}

	var baseURL, tenantID, secret string
	m.batchSize = DefaultBatchSize
	m.maxWait = DefaultMaxBatchWait
	if deps.Config != nil {
		cloudSection := deps.Config.Sub("cloud")
		if cloudSection != nil {
			baseURL = cloudSection.GetString("base_url")
			tenantID = cloudSection.GetString("tenant_id")
			secret = cloudSection.GetString("tenant_secret")
			m.platform = cloudSection.GetString("platform")
		}
		if deps.Config.IsSet("upload.batch_size") {
			m.batchSize = deps.Config.GetInt("upload.batch_size")
		}
		if deps.Config.IsSet("upload.max_batch_wait") {
			m.maxWait = deps.Config.GetDuration("upload.max_batch_wait")
		}
	}
	m.client = NewClient(baseURL, tenantID, []byte(secret))

	if deps.Modules != nil {
		if fm, ok := deps.Modules.Resolve("fusion"); ok {
			if engine, ok := fm.(*fusion.Engine); ok {
				m.fusionMod = engine
			}
		}
		if cm, ok := deps.Modules.Resolve("consent"); ok {
			if cmod, ok := cm.(*consent.Module); ok {
				m.consentMod = cmod
			}
		}
	}

	m.setStatus(module.StatusInitialized)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	if m.fusionMod == nil {
		m.setStatus(module.StatusRunning)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.flushDone = make(chan struct{})

	ch, unsubscribe := m.fusionMod.Stream().Subscribe(8)
	m.unsubscribe = unsubscribe

	go m.ingest(runCtx, ch)
	go m.flushLoop(runCtx)

	m.setStatus(module.StatusRunning)
	return nil
}

func (m *Module) ingest(ctx context.Context, ch <-chan models.HumanStateVector) {
	for {
		select {
		case <-ctx.Done():
			return
		case hsv, ok := <-ch:
			if !ok {
				return
			}
			if m.consentMod != nil && !m.consentMod.Store.Granted(models.ChannelCloudUpload) {
				continue
			}
			if err := m.Queue.Enqueue(ctx, hsv); err != nil {
				m.logger.Warn("enqueue upload item failed", zap.Error(err))
			}
			metrics.UploadQueueDepth.Set(float64(m.Queue.Len()))
		}
	}
}

func (m *Module) flushLoop(ctx context.Context) {
	defer close(m.flushDone)
	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()

	var oldestSeen time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			items := m.Queue.PeekBatch(m.batchSize)
			if len(items) == 0 {
				oldestSeen = time.Time{}
				continue
			}
			if oldestSeen.IsZero() {
				oldestSeen = items[0].CreatedAt
			}
			due := len(items) >= m.batchSize || time.Since(oldestSeen) >= m.maxWait
			if !due {
				continue
			}
			if err := m.sendBatch(ctx, items); err != nil {
				m.logger.Warn("upload batch failed", zap.Error(err))
			}
			metrics.UploadQueueDepth.Set(float64(m.Queue.Len()))
			oldestSeen = time.Time{}
		}
	}
}

// sendBatch sends one batch with the spec's retry policy: 401 refreshes
// the token and retries once, and a second 401 returns an auth failure
// with the batch left queued; other 4xx (not 429) drops the batch; 5xx,
// 429, and network errors retry per the exponential backoff in retry.go.
func (m *Module) sendBatch(ctx context.Context, items []Item) error {
	canonicalItems := make([][]byte, len(items))
	ids := make([]int64, len(items))
	for i, it := range items {
		canonicalItems[i] = it.Canonical
		ids[i] = it.ID
	}
	body := canonicalArray(canonicalItems)

	b := newBackOff()
	refreshedOnce := false

	for {
		status, err := m.client.Send(ctx, body, m.bearerToken())
		if err == nil && status >= 200 && status < 300 {
			metrics.UploadBatchesTotal.WithLabelValues("acked").Inc()
			return m.Queue.Ack(ctx, ids)
		}

		if status == 401 {
			if !refreshedOnce {
				refreshedOnce = true
				m.refreshToken(ctx)
				continue
			}
			return fmt.Errorf("upload batch: %w", synerr.Wrap(synerr.ErrAuthFailure, fmt.Errorf("status %d", status)))
		}

		if status >= 400 && status < 500 && status != 401 && status != 429 {
			metrics.UploadBatchesTotal.WithLabelValues("dropped").Inc()
			dropErr := fmt.Errorf("upload batch dropped: %w", synerr.Wrap(synerr.ErrPayloadInvalid, fmt.Errorf("status %d", status)))
			m.logger.Error("upload batch rejected, dropping", zap.Int("status", status), zap.Int("items", len(items)))
			_ = m.Queue.Ack(ctx, ids)
			return dropErr
		}

		metrics.UploadBatchesTotal.WithLabelValues("retried").Inc()
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("upload batch: exceeded %d attempts", DefaultMaxAttempts)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (m *Module) bearerToken() string {
	if m.consentMod == nil {
		return ""
	}
	tok, ok := m.consentMod.Tokens.Current()
	if !ok {
		return ""
	}
	return tok.JWT
}

func (m *Module) refreshToken(ctx context.Context) {
	if m.consentMod == nil {
		return
	}
	tok, ok := m.consentMod.Tokens.Current()
	if !ok {
		return
	}
	deviceID, err := m.consentMod.Tokens.DeviceID(ctx)
	if err != nil {
		m.logger.Warn("upload: device id unavailable for token refresh", zap.Error(err))
		return
	}
	if _, err := m.consentMod.Tokens.IssueToken(ctx, deviceID, tok.ProfileID, m.platform); err != nil {
		m.logger.Warn("upload: token refresh on 401 failed", zap.Error(err))
	}
}

// UploadNow forces an immediate flush of whatever is currently queued,
// bypassing the batch-size/max-wait gate (still batched at batchSize).
func (m *Module) UploadNow(ctx context.Context) error {
	for {
		items := m.Queue.PeekBatch(m.batchSize)
		if len(items) == 0 {
			return nil
		}
		if err := m.sendBatch(ctx, items); err != nil {
			return err
		}
	}
}

// FlushQueue is an alias for UploadNow: drain the queue entirely.
func (m *Module) FlushQueue(ctx context.Context) error {
	return m.UploadNow(ctx)
}

// ClearQueue discards every queued item without uploading it.
func (m *Module) ClearQueue(ctx context.Context) error {
	return m.Queue.Clear(ctx)
}

// DeleteCloudData issues a best-effort request to purge everything
// uploaded so far for this tenant, then clears the local queue so
// nothing already queued is sent afterward. The remote call and the
// local clear are independent: a failed remote delete still wipes local
// state, since the caller's intent is "stop holding my data" either way.
func (m *Module) DeleteCloudData(ctx context.Context) error {
	if m.client != nil {
		status, err := m.client.Delete(ctx, m.bearerToken())
		if err != nil {
			m.logger.Warn("cloud data deletion request failed", zap.Error(err))
		} else if status >= 300 {
			m.logger.Warn("cloud data deletion request rejected", zap.Int("status", status))
		}
	}
	return m.ClearQueue(ctx)
}

func (m *Module) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	if m.flushDone != nil {
		<-m.flushDone
		m.flushDone = nil
	}
	if m.client != nil {
		m.client.CloseIdleConnections()
	}
	m.setStatus(module.StatusStopped)
	return nil
}

func (m *Module) Dispose(ctx context.Context) error {
	if m.Status() == module.StatusDisposed {
		return nil
	}
	if m.Status() == module.StatusRunning {
		_ = m.Stop(ctx)
	}
	m.setStatus(module.StatusDisposed)
	return nil
}
