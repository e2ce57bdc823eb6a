package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/config"
	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
	"github.com/synheart/synheart-runtime/pkg/module/moduletest"
)

func TestContract(t *testing.T) {
	moduletest.TestModuleContract(t, func() module.Module { return New() })
}

func TestModule_infoDependsOnFusionAndConsent(t *testing.T) {
	m := New()
	deps := m.Info().Dependencies
	if len(deps) != 2 || deps[0] != "fusion" || deps[1] != "consent" {
		t.Errorf("expected Dependencies [\"fusion\", \"consent\"], got %v", deps)
	}
}

func testModuleAgainst(t *testing.T, serverURL string) *Module {
	t.Helper()
	v := viper.New()
	v.Set("cloud.base_url", serverURL)
	v.Set("cloud.tenant_id", "tenant-1")
	v.Set("cloud.tenant_secret", "shh")

	m := New()
	deps := module.Dependencies{
		Logger: zap.NewNop(),
		Config: config.New(v),
	}
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("init: %v", err)
	}
	return m
}

func TestModule_uploadNowSendsAndAcksOnSuccess(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		if r.Header.Get("X-Signature") == "" {
			t.Error("expected a non-empty X-Signature header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := testModuleAgainst(t, srv.URL)
	for i := 0; i < 3; i++ {
		if err := m.Queue.Enqueue(context.Background(), models.HumanStateVector{Timestamp: time.Now()}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	if err := m.UploadNow(context.Background()); err != nil {
		t.Fatalf("UploadNow: %v", err)
	}
	if m.Queue.Len() != 0 {
		t.Errorf("expected queue drained after successful upload, got %d remaining", m.Queue.Len())
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("expected exactly one batch request for 3 items under the default batch size, got %d", received)
	}
}

func TestModule_sendBatchRetriesOn503ThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := testModuleAgainst(t, srv.URL)
	m.batchSize = 1
	_ = m.Queue.Enqueue(context.Background(), models.HumanStateVector{})

	items := m.Queue.PeekBatch(1)
	start := time.Now()
	if err := m.sendBatch(context.Background(), items); err != nil {
		t.Fatalf("sendBatch: %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("expected exactly 3 attempts (2 failures + 1 success), got %d", attempts)
	}
	if m.Queue.Len() != 0 {
		t.Error("expected item acked after eventual success")
	}
	// Two backoff waits at ~1s and ~2s should have elapsed (with jitter).
	if time.Since(start) < 500*time.Millisecond {
		t.Error("expected at least one backoff delay to have elapsed")
	}
}

func TestModule_sendBatchDropsOn4xxOtherThan401And429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	m := testModuleAgainst(t, srv.URL)
	_ = m.Queue.Enqueue(context.Background(), models.HumanStateVector{})
	items := m.Queue.PeekBatch(1)

	if err := m.sendBatch(context.Background(), items); err == nil {
		t.Fatal("expected an error surfaced for a dropped batch")
	}
	if m.Queue.Len() != 0 {
		t.Error("expected the batch removed from the queue even though it was dropped, not retried forever")
	}
}

func TestModule_clearQueueDiscardsWithoutUploading(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := testModuleAgainst(t, srv.URL)
	_ = m.Queue.Enqueue(context.Background(), models.HumanStateVector{})

	if err := m.ClearQueue(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if m.Queue.Len() != 0 {
		t.Error("expected queue empty after ClearQueue")
	}
	if called {
		t.Error("expected no HTTP request from ClearQueue")
	}
}
