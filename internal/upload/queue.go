package upload

import (
	"context"
	"sync"
	"time"

	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
)

// Item is one queued, already-canonicalized HSV awaiting upload.
type Item struct {
	ID        int64
	Canonical []byte
	HSV       models.HumanStateVector
	Attempts  int
	CreatedAt time.Time
}

// Queue is the persisted, in-memory-mirrored FIFO of pending upload
// items. A nil Store degrades to memory-only operation (no
// survive-restart guarantee), matching the rest of the runtime's
// degrade-don't-fail pattern for optional dependencies.
type Queue struct {
	mu      sync.Mutex
	store   module.Store
	items   []Item
	memNext int64
}

// NewQueue constructs a queue backed by store, or memory-only if nil.
func NewQueue(store module.Store) *Queue {
	return &Queue{store: store, memNext: -1}
}

// Migrate creates the queue's backing table, if a Store is configured.
func (q *Queue) Migrate(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	return q.store.Migrate(ctx, "upload", migrations())
}

// Load hydrates the in-memory queue from persisted rows, oldest first.
// No-op for a memory-only queue.
func (q *Queue) Load(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	rows, err := q.store.DB().QueryContext(ctx,
		`SELECT id, canonical_json, attempts, created_at FROM upload_items ORDER BY id ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var loaded []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Canonical, &it.Attempts, &it.CreatedAt); err != nil {
			return err
		}
		loaded = append(loaded, it)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	q.items = loaded
	q.mu.Unlock()
	return nil
}

// Enqueue canonicalizes hsv, persists it if a Store is configured, and
// appends it to the in-memory tail.
func (q *Queue) Enqueue(ctx context.Context, hsv models.HumanStateVector) error {
	canonical, err := CanonicalJSON(hsv)
	if err != nil {
		return err
	}

	item := Item{Canonical: canonical, HSV: hsv, CreatedAt: time.Now().UTC()}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.store != nil {
		res, err := q.store.DB().ExecContext(ctx,
			`INSERT INTO upload_items (canonical_json, attempts, created_at) VALUES (?, 0, ?)`,
			canonical, item.CreatedAt)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		item.ID = id
	} else {
		item.ID = q.memNext
		q.memNext--
	}

	q.items = append(q.items, item)
	return nil
}

// PeekBatch returns up to n items from the head of the queue without
// removing them.
func (q *Queue) PeekBatch(n int) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]Item, n)
	copy(out, q.items[:n])
	return out
}

// Ack removes the given ids from the queue, in memory and in storage.
func (q *Queue) Ack(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	idSet := make(map[int64]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	q.mu.Lock()
	kept := make([]Item, 0, len(q.items))
	for _, it := range q.items {
		if !idSet[it.ID] {
			kept = append(kept, it)
		}
	}
	q.items = kept
	store := q.store
	q.mu.Unlock()

	if store == nil {
		return nil
	}
	for _, id := range ids {
		if id < 0 {
			continue // memory-only item, no row to delete
		}
		if _, err := store.DB().ExecContext(ctx, `DELETE FROM upload_items WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

// Clear discards every queued item without uploading it.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	q.items = nil
	store := q.store
	q.mu.Unlock()

	if store == nil {
		return nil
	}
	_, err := store.DB().ExecContext(ctx, `DELETE FROM upload_items`)
	return err
}

// Len reports the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
