package channel

import (
	"testing"
	"time"
)

type tsItem struct {
	ts  time.Time
	val int
}

func newBuf(maxAge time.Duration) *TimeBuffer[tsItem] {
	return NewTimeBuffer[tsItem](maxAge, func(i tsItem) time.Time { return i.ts })
}

func TestTimeBuffer_insertOutOfOrderSortsByTimestamp(t *testing.T) {
	base := time.Now()
	b := newBuf(time.Hour)

	b.Insert(tsItem{ts: base.Add(2 * time.Second), val: 2})
	b.Insert(tsItem{ts: base, val: 0})
	b.Insert(tsItem{ts: base.Add(1 * time.Second), val: 1})

	got := b.Since(time.Time{})
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	for i, item := range got {
		if item.val != i {
			t.Errorf("index %d: expected val %d, got %d (out-of-order insert not sorted)", i, i, item.val)
		}
	}
}

func TestTimeBuffer_evictsEntriesOlderThanMaxAge(t *testing.T) {
	base := time.Now()
	b := newBuf(5 * time.Second)

	b.Insert(tsItem{ts: base, val: 0})
	b.Insert(tsItem{ts: base.Add(3 * time.Second), val: 1})
	b.Insert(tsItem{ts: base.Add(10 * time.Second), val: 2})

	got := b.Since(time.Time{})
	if len(got) != 1 {
		t.Fatalf("expected eviction to leave 1 item, got %d: %+v", len(got), got)
	}
	if got[0].val != 2 {
		t.Errorf("expected surviving item to be the newest (val=2), got %d", got[0].val)
	}
}

func TestTimeBuffer_sinceFiltersOnCutoff(t *testing.T) {
	base := time.Now()
	b := newBuf(time.Hour)

	for i := 0; i < 5; i++ {
		b.Insert(tsItem{ts: base.Add(time.Duration(i) * time.Second), val: i})
	}

	got := b.Since(base.Add(2 * time.Second))
	if len(got) != 3 {
		t.Fatalf("expected 3 items from cutoff, got %d", len(got))
	}
	if got[0].val != 2 {
		t.Errorf("expected first surviving val 2, got %d", got[0].val)
	}
}

func TestTimeBuffer_clearEmptiesBuffer(t *testing.T) {
	b := newBuf(time.Hour)
	b.Insert(tsItem{ts: time.Now(), val: 1})
	if b.Len() != 1 {
		t.Fatalf("expected 1 item before clear")
	}
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("expected 0 items after clear, got %d", b.Len())
	}
}

func TestTimeBuffer_lenTracksInsertsAndEvictions(t *testing.T) {
	base := time.Now()
	b := newBuf(2 * time.Second)

	b.Insert(tsItem{ts: base, val: 0})
	b.Insert(tsItem{ts: base.Add(time.Second), val: 1})
	if b.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", b.Len())
	}

	b.Insert(tsItem{ts: base.Add(5 * time.Second), val: 2})
	if b.Len() != 1 {
		t.Errorf("expected eviction to leave 1 item, got %d", b.Len())
	}
}
