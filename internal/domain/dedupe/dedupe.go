// Package dedupe records processed outcome ids so replays of the same
// assignment outcome are applied at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) (bool, error)

	// Unrecord removes an id so a failed commit can be retried.
	Unrecord(ctx context.Context, id string) error

	// Size returns the number of ids currently held.
	Size(ctx context.Context) int64
}

// inMemoryDeduper keeps ids in a map. In bounded mode the oldest id is
// evicted once maxSize is reached.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = oldest
	maxSize int        // <= 0 means unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates an in-process deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50_000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true, nil
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	d.seen[id] = d.order.PushBack(id)
	d.size.Add(1)
	return false, nil
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
		d.size.Add(-1)
	}
	return nil
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.seen, front.Value.(string))
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size(_ context.Context) int64 {
	return d.size.Load()
}
