package upload

import (
	"context"
	"testing"
	"time"

	"github.com/synheart/synheart-runtime/pkg/models"
)

func TestQueue_enqueueThenPeekPreservesOrder(t *testing.T) {
	q := NewQueue(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		hsv := models.HumanStateVector{Timestamp: time.Now().Add(time.Duration(i) * time.Second)}
		if err := q.Enqueue(ctx, hsv); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	if q.Len() != 3 {
		t.Fatalf("expected 3 queued items, got %d", q.Len())
	}
	items := q.PeekBatch(10)
	if len(items) != 3 {
		t.Fatalf("expected 3 peeked items, got %d", len(items))
	}
	if q.Len() != 3 {
		t.Error("peek must not remove items")
	}
}

func TestQueue_peekBatchRespectsLimit(t *testing.T) {
	q := NewQueue(nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = q.Enqueue(ctx, models.HumanStateVector{})
	}
	items := q.PeekBatch(2)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestQueue_ackRemovesOnlyAcknowledgedItems(t *testing.T) {
	q := NewQueue(nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = q.Enqueue(ctx, models.HumanStateVector{})
	}
	items := q.PeekBatch(1)
	if err := q.Ack(ctx, []int64{items[0].ID}); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if q.Len() != 2 {
		t.Errorf("expected 2 remaining items, got %d", q.Len())
	}
}

func TestQueue_clearDiscardsEverything(t *testing.T) {
	q := NewQueue(nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_ = q.Enqueue(ctx, models.HumanStateVector{})
	}
	if err := q.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after clear, got %d", q.Len())
	}
}

func TestQueue_memoryOnlyLoadIsNoOp(t *testing.T) {
	q := NewQueue(nil)
	if err := q.Load(context.Background()); err != nil {
		t.Fatalf("expected nil error for memory-only Load, got %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}
