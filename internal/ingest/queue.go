// Package ingest implements the ordered, rate-limited ingestion queue and the
// pipeline control surface that feeds items through enrichment and thread
// matching.
package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"newsroom/api/internal/feed"
)

// DeliveryWindow remembers identifiers delivered in the current processing
// window so Enqueue can drop repeats silently.
type DeliveryWindow interface {
	Mark(ctx context.Context, itemID string) error
	Seen(ctx context.Context, itemID string) (bool, error)
}

// QueueEntry wraps a raw item while it waits in the buffer.
type QueueEntry struct {
	Item       feed.RawItem
	EnqueuedAt time.Time
	Attempts   int
}

// Queue is an ordered single-consumer buffer. Enqueue preserves input order
// across calls and de-duplicates by item identifier against both the buffer
// and the delivery window. Capacity 0 means unbounded.
type Queue struct {
	window   DeliveryWindow
	capacity int

	mu       sync.Mutex
	entries  []QueueEntry
	buffered map[string]struct{}
}

// NewQueue creates a queue backed by the given delivery window.
func NewQueue(window DeliveryWindow, capacity int) *Queue {
	return &Queue{
		window:   window,
		capacity: capacity,
		buffered: map[string]struct{}{},
	}
}

// Enqueue appends items to the tail. Duplicates (in-buffer or already
// delivered this window) are dropped silently; a full buffer drops the
// remainder with a log line. Returns the number of accepted items.
func (q *Queue) Enqueue(ctx context.Context, items []feed.RawItem) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	accepted := 0
	for _, item := range items {
		if _, ok := q.buffered[item.ID]; ok {
			continue
		}
		delivered, err := q.window.Seen(ctx, item.ID)
		if err != nil {
			log.Printf("ingest: delivery window lookup failed for %s: %v", item.ID, err)
		}
		if delivered {
			continue
		}
		if q.capacity > 0 && len(q.entries) >= q.capacity {
			log.Printf("ingest: buffer full (%d), dropping remaining items", q.capacity)
			break
		}
		q.entries = append(q.entries, QueueEntry{Item: item, EnqueuedAt: time.Now().UTC()})
		q.buffered[item.ID] = struct{}{}
		accepted++
	}
	return accepted
}

// Dequeue releases the oldest entry and marks its identifier delivered for
// the window. The rate limit lives in the consumer loop, not here.
func (q *Queue) Dequeue(ctx context.Context) (QueueEntry, bool) {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return QueueEntry{}, false
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	delete(q.buffered, entry.Item.ID)
	entry.Attempts++
	q.mu.Unlock()

	if err := q.window.Mark(ctx, entry.Item.ID); err != nil {
		log.Printf("ingest: failed to mark %s delivered: %v", entry.Item.ID, err)
	}
	return entry, true
}

// Len reports the number of buffered entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Consume releases one entry per interval tick and invokes onReady for it, in
// delivery order. An onReady error drops the entry with a logged delivery
// failure; retrying belongs to the fetch layer. Blocks until ctx is done.
func (q *Queue) Consume(ctx context.Context, interval time.Duration, onReady func(feed.RawItem) error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entry, ok := q.Dequeue(ctx)
			if !ok {
				continue
			}
			if err := onReady(entry.Item); err != nil {
				log.Printf("ingest: delivery failed for item %s (attempt %d): %v", entry.Item.ID, entry.Attempts, err)
			}
		}
	}
}
