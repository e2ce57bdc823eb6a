package facade

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/config"
	"github.com/synheart/synheart-runtime/internal/securestore"
	synstore "github.com/synheart/synheart-runtime/internal/store"
	"github.com/synheart/synheart-runtime/internal/synerr"
	"github.com/synheart/synheart-runtime/pkg/models"
)

type fakeWearSource struct {
	mu sync.Mutex
	ch chan models.WearSample
}

func (f *fakeWearSource) Subscribe(ctx context.Context, interval time.Duration) (<-chan models.WearSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch = make(chan models.WearSample, 64)
	return f.ch, nil
}

func (f *fakeWearSource) push(s models.WearSample) {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	if ch != nil {
		ch <- s
	}
}

func fp(v float64) *float64 { return &v }

// newTestEngine builds an Engine backed by a real file-backed SQLite
// store and an opened secure store, matching the wiring convention
// exercised in internal/securestore's own tests.
func newTestEngine(t *testing.T, wear *fakeWearSource) (*Engine, *config.ViperConfig) {
	t.Helper()
	dir := t.TempDir()

	db, err := synstore.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	secure := securestore.New(db, securestore.StaticRootKeyProvider{Secret: []byte("test-root-secret")})
	if err := secure.Open(context.Background()); err != nil {
		t.Fatalf("open secure store: %v", err)
	}
	t.Cleanup(func() { secure.Close() })

	v := viper.New()
	v.Set("tick_interval", 20*time.Millisecond)
	cfg := config.New(v)

	e := New(Sources{Wear: wear}, db, secure, zap.NewNop())
	return e, cfg
}

func TestEngine_initializeTwiceReturnsAlreadyInitialized(t *testing.T) {
	e, cfg := newTestEngine(t, &fakeWearSource{})
	ctx := context.Background()

	if err := e.Initialize(ctx, "user-1", cfg, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer e.Dispose(ctx)

	err := e.Initialize(ctx, "user-1", cfg, false)
	if !errors.Is(err, synerr.ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestEngine_startDataCollectionIsIdempotentWhileRunning(t *testing.T) {
	e, cfg := newTestEngine(t, &fakeWearSource{})
	ctx := context.Background()

	if err := e.Initialize(ctx, "user-1", cfg, true); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer e.Dispose(ctx)

	if err := e.StartDataCollection(ctx); err != nil {
		t.Errorf("expected a no-op on an already-running engine, got %v", err)
	}
}

func TestEngine_startDataCollectionBeforeInitializeFails(t *testing.T) {
	e, _ := newTestEngine(t, &fakeWearSource{})
	err := e.StartDataCollection(context.Background())
	if !errors.Is(err, synerr.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestEngine_stopThenStartDataCollectionResumes(t *testing.T) {
	e, cfg := newTestEngine(t, &fakeWearSource{})
	ctx := context.Background()

	if err := e.Initialize(ctx, "user-1", cfg, true); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer e.Dispose(ctx)

	if err := e.StopDataCollection(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := e.StartDataCollection(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestEngine_startDataCollectionAfterGrantEmitsHSVs(t *testing.T) {
	wear := &fakeWearSource{}
	e, cfg := newTestEngine(t, wear)
	ctx := context.Background()

	if err := e.Initialize(ctx, "user-1", cfg, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := e.GrantConsent(ctx, models.ChannelBiosignals); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := e.StartDataCollection(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Dispose(ctx)

	sub, unsubscribe := e.HSVUpdates().Subscribe(4)
	defer unsubscribe()

	go func() {
		for i := 0; i < 100; i++ {
			hr := 60 + float64(i%30)
			wear.push(models.WearSample{Timestamp: time.Now(), HR: fp(hr)})
			time.Sleep(time.Millisecond)
		}
	}()

	var last models.HumanStateVector
	count := 0
	timeout := time.After(2 * time.Second)
waitLoop:
	for {
		select {
		case hsv := <-sub:
			last = hsv
			count++
			if count >= 3 {
				break waitLoop
			}
		case <-timeout:
			break waitLoop
		}
	}
	if count == 0 {
		t.Fatal("expected at least one HSV emission")
	}
	if last.Meta.Axes.Affect.ArousalIndex < 0 || last.Meta.Axes.Affect.ArousalIndex > 1 {
		t.Errorf("arousalIndex out of range: %v", last.Meta.Axes.Affect.ArousalIndex)
	}
	if last.Behavior.TypingCadence != 0 {
		t.Errorf("expected imputed zero typing cadence without behavior consent, got %v", last.Behavior.TypingCadence)
	}
	if last.Context.ScreenActiveRatio != 0 {
		t.Errorf("expected imputed zero screen active ratio without phone consent, got %v", last.Context.ScreenActiveRatio)
	}
}

func TestEngine_revokeConsentStopsFreshWearSamples(t *testing.T) {
	wear := &fakeWearSource{}
	e, cfg := newTestEngine(t, wear)
	ctx := context.Background()

	if err := e.Initialize(ctx, "user-1", cfg, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := e.GrantConsent(ctx, models.ChannelBiosignals); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := e.StartDataCollection(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Dispose(ctx)

	wear.push(models.WearSample{Timestamp: time.Now(), HR: fp(70)})
	time.Sleep(50 * time.Millisecond)

	if err := e.RevokeConsent(ctx, models.ChannelBiosignals); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, ok := e.channelMod.Wear.Features(models.Window30s, time.Now()); ok {
		t.Error("expected wear buffer cleared after revocation")
	}
	if status := e.GetConsentStatus(); status.Biosignals {
		t.Error("expected biosignals denied after revoke")
	}
}

func TestEngine_enableEmotionPublishesEmotionUpdates(t *testing.T) {
	wear := &fakeWearSource{}
	e, cfg := newTestEngine(t, wear)
	ctx := context.Background()

	if err := e.Initialize(ctx, "user-1", cfg, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := e.GrantConsent(ctx, models.ChannelBiosignals); err != nil {
		t.Fatalf("grant: %v", err)
	}
	e.EnableEmotion(true)
	if err := e.StartDataCollection(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Dispose(ctx)

	go func() {
		for i := 0; i < 50; i++ {
			wear.push(models.WearSample{
				Timestamp:   time.Now(),
				HR:          fp(75),
				RRIntervals: []float64{800, 820, 810},
			})
			time.Sleep(2 * time.Millisecond)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := e.EmotionUpdates().Last(); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected an emotion update within the deadline")
}

func TestEngine_enableCloudRequiresConfig(t *testing.T) {
	e, cfg := newTestEngine(t, &fakeWearSource{})
	ctx := context.Background()

	if err := e.Initialize(ctx, "user-1", cfg, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer e.Dispose(ctx)

	if err := e.EnableCloud(ctx, true); err == nil {
		t.Fatal("expected an error enabling cloud upload without a cloud config")
	}
}

func TestEngine_enableCloudSucceedsWithConfig(t *testing.T) {
	wear := &fakeWearSource{}
	e, _ := newTestEngine(t, wear)
	ctx := context.Background()

	v := viper.New()
	v.Set("tick_interval", 20*time.Millisecond)
	v.Set("cloud.base_url", "https://cloud.example.test")
	v.Set("cloud.tenant_id", "tenant-1")
	v.Set("cloud.tenant_secret", "shh")
	cfg := config.New(v)

	if err := e.Initialize(ctx, "user-1", cfg, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer e.Dispose(ctx)

	// cloud_upload requires at least one data channel already granted.
	if err := e.GrantConsent(ctx, models.ChannelBiosignals); err != nil {
		t.Fatalf("grant biosignals: %v", err)
	}
	if err := e.EnableCloud(ctx, true); err != nil {
		t.Fatalf("enable cloud: %v", err)
	}
	if !e.GetConsentStatus().CloudUpload {
		t.Error("expected cloud_upload granted")
	}
}

func TestEngine_deleteLocalDataClearsConsentAndQueue(t *testing.T) {
	e, cfg := newTestEngine(t, &fakeWearSource{})
	ctx := context.Background()

	if err := e.Initialize(ctx, "user-1", cfg, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer e.Dispose(ctx)

	if err := e.GrantConsent(ctx, models.ChannelBiosignals); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := e.DeleteLocalData(ctx); err != nil {
		t.Fatalf("delete local data: %v", err)
	}
	if status := e.GetConsentStatus(); status.Biosignals {
		t.Error("expected consent reset to all-denied after DeleteLocalData")
	}
}

func TestEngine_deleteModuleDataUnknownModuleErrors(t *testing.T) {
	e, cfg := newTestEngine(t, &fakeWearSource{})
	ctx := context.Background()
	if err := e.Initialize(ctx, "user-1", cfg, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer e.Dispose(ctx)

	if err := e.DeleteModuleData(ctx, "nonsense"); err == nil {
		t.Error("expected an error for an unknown module name")
	}
}

func TestEngine_behaviorSessionEndIsIdempotent(t *testing.T) {
	e, cfg := newTestEngine(t, &fakeWearSource{})
	ctx := context.Background()
	if err := e.Initialize(ctx, "user-1", cfg, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer e.Dispose(ctx)

	now := time.Now()
	sess := e.StartBehaviorSession("sess-1", now)
	sess.Events = append(sess.Events, models.BehaviorEvent{SessionID: "sess-1", Type: models.BehaviorTap, Timestamp: now})

	first, err := e.EndBehaviorSession(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	second, err := e.EndBehaviorSession(ctx, now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("end again: %v", err)
	}
	if first.ActivitySummary.TotalEvents != second.ActivitySummary.TotalEvents {
		t.Error("expected idempotent session end")
	}
}

func TestEngine_disposeIsIdempotent(t *testing.T) {
	e, cfg := newTestEngine(t, &fakeWearSource{})
	ctx := context.Background()
	if err := e.Initialize(ctx, "user-1", cfg, true); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := e.Dispose(ctx); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if err := e.Dispose(ctx); err != nil {
		t.Fatalf("second dispose: %v", err)
	}
}

func TestSingleton_returnsSameInstanceAcrossCalls(t *testing.T) {
	ResetSingleton()
	defer ResetSingleton()

	a := Singleton(Sources{}, nil, nil, nil)
	b := Singleton(Sources{}, nil, nil, nil)
	if a != b {
		t.Error("expected Singleton to return the same Engine instance across calls")
	}
}
