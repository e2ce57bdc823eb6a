package channel

import (
	"context"
	"testing"
	"time"

	"github.com/synheart/synheart-runtime/pkg/models"
)

func TestBehaviorChannel_endIsIdempotent(t *testing.T) {
	b := NewBehavior(nil, func() bool { return true }, nil)
	now := time.Now()
	sess := b.StartSession("sess-1", now)
	sess.Events = append(sess.Events,
		models.BehaviorEvent{SessionID: "sess-1", Type: models.BehaviorTap, Timestamp: now},
		models.BehaviorEvent{SessionID: "sess-1", Type: models.BehaviorTap, Timestamp: now.Add(time.Second)},
	)

	first, err := b.End(context.Background(), now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if first.ActivitySummary.TotalEvents != 2 {
		t.Fatalf("expected 2 events, got %d", first.ActivitySummary.TotalEvents)
	}

	// A second End must return the same cached summary, not recompute.
	sess.Events = append(sess.Events, models.BehaviorEvent{SessionID: "sess-1", Type: models.BehaviorTap, Timestamp: now.Add(5 * time.Second)})
	second, err := b.End(context.Background(), now.Add(10*time.Second))
	if err != nil {
		t.Fatalf("end (second call): %v", err)
	}
	if second.ActivitySummary.TotalEvents != 2 {
		t.Errorf("expected idempotent End to ignore events appended after first End, got %d", second.ActivitySummary.TotalEvents)
	}
}

func TestBehaviorChannel_endMarksIncompleteOnExpiredContext(t *testing.T) {
	b := NewBehavior(nil, func() bool { return true }, nil)
	now := time.Now()
	b.StartSession("sess-timeout", now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already expired before End is called

	summary, err := b.End(ctx, now.Add(SessionEndHardCap))
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !summary.Incomplete {
		t.Error("expected summary marked incomplete when context already expired")
	}
}

func TestBehaviorChannel_endWithNoActiveSessionReturnsNil(t *testing.T) {
	b := NewBehavior(nil, func() bool { return true }, nil)
	summary, err := b.End(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if summary != nil {
		t.Errorf("expected nil summary with no active session, got %+v", summary)
	}
}

func TestBehaviorChannel_taskSwitchRateReflectsAlternatingTypes(t *testing.T) {
	b := NewBehavior(nil, func() bool { return true }, nil)
	now := time.Now()
	sess := b.StartSession("sess-switch", now)
	sess.Events = []models.BehaviorEvent{
		{Type: models.BehaviorTap, Timestamp: now},
		{Type: models.BehaviorScroll, Timestamp: now.Add(time.Second)},
		{Type: models.BehaviorTap, Timestamp: now.Add(2 * time.Second)},
		{Type: models.BehaviorScroll, Timestamp: now.Add(3 * time.Second)},
	}

	summary, err := b.End(context.Background(), now.Add(4*time.Second))
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if summary.BehavioralMetrics.TaskSwitchRate != 1 {
		t.Errorf("expected task switch rate 1 (every transition alternates), got %v", summary.BehavioralMetrics.TaskSwitchRate)
	}
}

func TestBehaviorChannel_consentGatingAdmitsOnlyWhenGranted(t *testing.T) {
	var granted bool
	b := NewBehavior(nil, func() bool { return granted }, nil)
	now := time.Now()

	// consume() is exercised indirectly via appendToActiveSession +
	// buffer.Insert in Start's goroutine; here we test the buffer/stream
	// gating primitive directly since there is no fake source wired.
	if b.granted() {
		t.Fatal("expected granted() to be false initially")
	}
	granted = true
	if !b.granted() {
		t.Fatal("expected granted() to reflect updated callback")
	}
}

func TestBehaviorChannel_featuresEmptyBufferYieldsNotOk(t *testing.T) {
	b := NewBehavior(nil, func() bool { return true }, nil)
	_, ok := b.Features(models.Window30s, time.Now())
	if ok {
		t.Error("expected empty buffer to yield ok=false")
	}
}

func TestBehaviorChannel_featuresComputeTapAndTypingRates(t *testing.T) {
	b := NewBehavior(nil, func() bool { return true }, nil)
	now := time.Now()
	for i := 0; i < 10; i++ {
		b.buffer.Insert(models.BehaviorEvent{Type: models.BehaviorTap, Timestamp: now.Add(-time.Duration(i) * time.Second)})
	}
	for i := 0; i < 5; i++ {
		b.buffer.Insert(models.BehaviorEvent{Type: models.BehaviorTyping, Timestamp: now.Add(-time.Duration(i) * 200 * time.Millisecond)})
	}

	feat, ok := b.Features(models.Window30s, now)
	if !ok {
		t.Fatal("expected features with data present")
	}
	if feat.TapRateNorm <= 0 {
		t.Error("expected positive tap rate")
	}
	if feat.KeystrokeRate <= 0 {
		t.Error("expected positive keystroke rate")
	}
}

func TestBehaviorChannel_clearCacheEmptiesBufferNotSession(t *testing.T) {
	b := NewBehavior(nil, func() bool { return true }, nil)
	now := time.Now()
	b.StartSession("sess-1", now)
	b.buffer.Insert(models.BehaviorEvent{Type: models.BehaviorTap, Timestamp: now})

	b.ClearCache()

	if b.buffer.Len() != 0 {
		t.Errorf("expected buffer cleared, got len %d", b.buffer.Len())
	}
	if b.ActiveSession() == nil {
		t.Error("expected active session to survive a raw-buffer clear")
	}
}
