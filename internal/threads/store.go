// Package threads owns narrative threads: the in-memory registry and the
// matcher that decides whether an incoming item starts, continues, or
// duplicates a thread.
package threads

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"newsroom/api/internal/feed"
	"newsroom/api/internal/util"
)

// Store is the registry of active and archived threads. All mutation goes
// through Create/Append/Archive, each serialized per thread.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*handle
	order   []string
}

// handle serializes mutations of one thread. The registry lock is never held
// while a thread lock is, so concurrent appends to different threads do not
// contend.
type handle struct {
	mu     sync.Mutex
	thread feed.Thread
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{threads: map[string]*handle{}}
}

// Create registers a new thread with the item as sole member.
func (s *Store) Create(item feed.EnrichedItem) feed.Thread {
	now := time.Now().UTC()
	thread := feed.Thread{
		ID:            util.NewID("thread"),
		MemberIDs:     []string{item.Raw.ID},
		Title:         item.Raw.Title,
		Summary:       summaryOf(item),
		Tone:          item.Sentiment,
		PriorityClass: feed.PriorityClass(item.Priority),
		Topics:        append([]string(nil), item.Topics...),
		AvgPriority:   item.Priority,
		Status:        feed.ThreadActive,
		CreatedAt:     now,
		LastUpdateAt:  now,
	}

	s.mu.Lock()
	s.threads[thread.ID] = &handle{thread: thread}
	s.order = append(s.order, thread.ID)
	s.mu.Unlock()
	return thread
}

// Append adds the item as a new member. The member sequence stays strictly
// arrival-ordered and duplicate-free; archived threads reject the append.
// The representative summary is replaced only for superseding update kinds
// (new_development, correction).
func (s *Store) Append(threadID string, item feed.EnrichedItem, kind feed.UpdateKind) (feed.Thread, error) {
	h, ok := s.handle(threadID)
	if !ok {
		return feed.Thread{}, fmt.Errorf("thread %s not found", threadID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.thread.Status == feed.ThreadArchived {
		return feed.Thread{}, fmt.Errorf("thread %s is archived", threadID)
	}
	for _, id := range h.thread.MemberIDs {
		if id == item.Raw.ID {
			return feed.Thread{}, fmt.Errorf("item %s already a member of thread %s", item.Raw.ID, threadID)
		}
	}

	h.thread.MemberIDs = append(h.thread.MemberIDs, item.Raw.ID)
	h.thread.LastUpdateAt = time.Now().UTC()

	n := float64(len(h.thread.MemberIDs))
	h.thread.AvgPriority = (h.thread.AvgPriority*(n-1) + item.Priority) / n
	h.thread.Topics = mergeTopics(h.thread.Topics, item.Topics)

	if kind == feed.UpdateNewDevelopment || kind == feed.UpdateCorrection {
		h.thread.Title = item.Raw.Title
		h.thread.Summary = summaryOf(item)
		h.thread.Tone = item.Sentiment
		h.thread.PriorityClass = feed.PriorityClass(item.Priority)
	}

	return h.thread, nil
}

// Archive transitions a thread to archived; further appends are rejected.
func (s *Store) Archive(threadID string) error {
	h, ok := s.handle(threadID)
	if !ok {
		return fmt.Errorf("thread %s not found", threadID)
	}
	h.mu.Lock()
	h.thread.Status = feed.ThreadArchived
	h.mu.Unlock()
	return nil
}

// Get returns a snapshot of one thread.
func (s *Store) Get(threadID string) (feed.Thread, bool) {
	h, ok := s.handle(threadID)
	if !ok {
		return feed.Thread{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return snapshot(h.thread), true
}

// Active returns snapshots of all active threads in creation order.
func (s *Store) Active() []feed.Thread {
	return s.list(func(t feed.Thread) bool { return t.Status == feed.ThreadActive })
}

// All returns snapshots of every thread in creation order.
func (s *Store) All() []feed.Thread {
	return s.list(func(feed.Thread) bool { return true })
}

// ThreadForMember returns the thread containing the given item id, if any.
func (s *Store) ThreadForMember(itemID string) (feed.Thread, bool) {
	for _, t := range s.All() {
		for _, member := range t.MemberIDs {
			if member == itemID {
				return t, true
			}
		}
	}
	return feed.Thread{}, false
}

func (s *Store) list(keep func(feed.Thread) bool) []feed.Thread {
	s.mu.RLock()
	handles := make([]*handle, 0, len(s.order))
	for _, id := range s.order {
		handles = append(handles, s.threads[id])
	}
	s.mu.RUnlock()

	out := make([]feed.Thread, 0, len(handles))
	for _, h := range handles {
		h.mu.Lock()
		t := snapshot(h.thread)
		h.mu.Unlock()
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) handle(threadID string) (*handle, bool) {
	s.mu.RLock()
	h, ok := s.threads[threadID]
	s.mu.RUnlock()
	return h, ok
}

func snapshot(t feed.Thread) feed.Thread {
	copied := t
	copied.MemberIDs = append([]string(nil), t.MemberIDs...)
	copied.Topics = append([]string(nil), t.Topics...)
	return copied
}

func mergeTopics(existing, incoming []string) []string {
	seen := map[string]struct{}{}
	for _, t := range existing {
		seen[t] = struct{}{}
	}
	for _, t := range incoming {
		if _, ok := seen[t]; !ok {
			existing = append(existing, t)
			seen[t] = struct{}{}
		}
	}
	return existing
}

func summaryOf(item feed.EnrichedItem) string {
	body := item.Raw.Body
	if len(body) > 280 {
		// Back up to a rune boundary so the cut never splits a character.
		cut := 280
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	if body == "" {
		return item.Raw.Title
	}
	return body
}
