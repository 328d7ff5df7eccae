package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"newsroom/api/internal/enrich"
	"newsroom/api/internal/feed"
	"newsroom/api/internal/store"
	"newsroom/api/internal/threads"
)

type fakeStore struct {
	mu        sync.Mutex
	live      map[string]store.LiveItem
	stories   []store.StoryRecord
	storyIDs  map[string]bool // source_item_id uniqueness
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		live:     map[string]store.LiveItem{},
		storyIDs: map[string]bool{},
	}
}

func (f *fakeStore) CountLive(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live), nil
}

func (f *fakeStore) ListLive(context.Context) ([]store.LiveItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.LiveItem, 0, len(f.live))
	for _, item := range f.live {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ArrivedAt.Equal(items[j].ArrivedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].ArrivedAt.Before(items[j].ArrivedAt)
	})
	return items, nil
}

func (f *fakeStore) ListUnenriched(_ context.Context, limit int) ([]store.LiveItem, error) {
	all, _ := f.ListLive(context.Background())
	items := make([]store.LiveItem, 0, limit)
	for _, item := range all {
		if item.Enriched {
			continue
		}
		items = append(items, item)
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func (f *fakeStore) UpdateEnrichment(_ context.Context, itemID string, priority, quality float64, sentiment string, topics []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.live[itemID]
	if !ok {
		return store.ErrNotFound
	}
	item.Priority = priority
	item.Quality = quality
	item.Sentiment = sentiment
	item.Topics = topics
	item.Enriched = true
	f.live[itemID] = item
	return nil
}

func (f *fakeStore) DeleteLiveItem(_ context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, itemID)
	return nil
}

func (f *fakeStore) InsertStory(_ context.Context, story store.StoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if f.storyIDs[story.SourceItemID] {
		return nil // conflict absorbed, like ON CONFLICT DO NOTHING
	}
	f.storyIDs[story.SourceItemID] = true
	f.stories = append(f.stories, story)
	return nil
}

func (f *fakeStore) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

func (f *fakeStore) storyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stories)
}

type steadyModel struct{}

func (steadyModel) Score(context.Context, feed.RawItem) (enrich.Signals, error) {
	return enrich.Signals{Priority: 0.5, Quality: 0.5, Sentiment: feed.SentimentNeutral}, nil
}

func seedLive(f *fakeStore, ts *threads.Store, n int, base time.Time) {
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("item-%03d", i)
		enriched := feed.EnrichedItem{
			Raw: feed.RawItem{
				ID:        id,
				Title:     fmt.Sprintf("Headline %03d", i),
				Body:      fmt.Sprintf("Body for item %03d.", i),
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			},
			Priority:  0.5,
			Quality:   0.5,
			Sentiment: feed.SentimentNeutral,
		}
		thread := ts.Create(enriched)
		item := store.LiveItemFromEnriched(enriched)
		item.Enriched = true
		item.ThreadID = thread.ID
		item.ArrivedAt = base.Add(time.Duration(i) * time.Minute)
		f.live[id] = item
	}
}

func newCycle(f *fakeStore, ts *threads.Store, cfg Config) *Cycle {
	return New(f, enrich.New(steadyModel{}, time.Second), ts, nil, nil, cfg)
}

func TestArchivalRestoresCapExactly(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	ts := threads.NewStore()
	base := time.Now().UTC().Add(-2 * time.Hour)
	seedLive(f, ts, 55, base)

	c := newCycle(f, ts, Config{LiveFeedCap: 50})
	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.Archived != 5 {
		t.Fatalf("expected 5 archived, got %d", report.Archived)
	}
	if report.Remaining != 50 {
		t.Fatalf("expected 50 remaining, got %d", report.Remaining)
	}
	if f.storyCount() != 5 {
		t.Fatalf("expected 5 stories, got %d", f.storyCount())
	}

	// The five oldest items were converted, original titles and timestamps intact.
	for i, story := range f.stories {
		wantID := fmt.Sprintf("item-%03d", i)
		if story.SourceItemID != wantID {
			t.Fatalf("story %d archived from %s, expected %s", i, story.SourceItemID, wantID)
		}
		if story.Title != fmt.Sprintf("Headline %03d", i) {
			t.Fatalf("story title rewritten: %s", story.Title)
		}
		if !story.CreatedAt.Equal(base.Add(time.Duration(i) * time.Minute)) {
			t.Fatalf("story created_at rewritten: %v", story.CreatedAt)
		}
	}
}

func TestArchivalFailureLeavesFeedIntact(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	ts := threads.NewStore()
	seedLive(f, ts, 55, time.Now().UTC().Add(-time.Hour))
	f.insertErr = errors.New("db down")

	c := newCycle(f, ts, Config{LiveFeedCap: 50})
	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("expected run to surface the insert failure")
	}

	// No live item may disappear without a durable story.
	if f.liveCount() != 55 {
		t.Fatalf("expected all 55 items still live, got %d", f.liveCount())
	}
	if f.storyCount() != 0 {
		t.Fatalf("expected no stories, got %d", f.storyCount())
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	ts := threads.NewStore()
	seedLive(f, ts, 55, time.Now().UTC().Add(-time.Hour))

	c := newCycle(f, ts, Config{LiveFeedCap: 50})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Enriched != 0 || report.Archived != 0 {
		t.Fatalf("second run should be a no-op, got %+v", report)
	}
	if report.Remaining != 50 {
		t.Fatalf("expected 50 remaining, got %d", report.Remaining)
	}
}

func TestEnrichPassUpgradesDefaultedItems(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	ts := threads.NewStore()
	seedLive(f, ts, 3, time.Now().UTC())
	for id, item := range f.live {
		item.Enriched = false
		f.live[id] = item
	}

	c := newCycle(f, ts, Config{LiveFeedCap: 50, EnrichBatch: 2})
	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Batch bound holds: two per cycle.
	if report.Enriched != 2 {
		t.Fatalf("expected 2 enriched, got %d", report.Enriched)
	}

	report, err = c.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Enriched != 1 {
		t.Fatalf("expected 1 enriched on second pass, got %d", report.Enriched)
	}
}

func TestProactiveArchivalOfStaleArchivedThreadItems(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	ts := threads.NewStore()
	base := time.Now().UTC().Add(-48 * time.Hour)
	seedLive(f, ts, 3, base)

	// Archive the thread of the oldest item; the item is enriched and well
	// past the age threshold, so it leaves the feed even under the cap.
	oldest, _ := f.ListLive(context.Background())
	if err := ts.Archive(oldest[0].ThreadID); err != nil {
		t.Fatalf("archive thread: %v", err)
	}

	c := newCycle(f, ts, Config{LiveFeedCap: 50, ArchiveAge: 24 * time.Hour})
	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.Archived != 1 {
		t.Fatalf("expected 1 proactively archived, got %d", report.Archived)
	}
	if f.stories[0].SourceItemID != oldest[0].ID {
		t.Fatalf("wrong item archived: %s", f.stories[0].SourceItemID)
	}
}

func TestEmptyThreadsAreArchivedAfterEviction(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	ts := threads.NewStore()
	seedLive(f, ts, 52, time.Now().UTC().Add(-time.Hour))

	c := newCycle(f, ts, Config{LiveFeedCap: 50})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Two single-member threads lost their only member and must be retired.
	if got := len(ts.Active()); got != 50 {
		t.Fatalf("expected 50 active threads, got %d", got)
	}
}

func TestConcurrentCycleIsRejected(t *testing.T) {
	t.Parallel()

	f := newFakeStore()
	ts := threads.NewStore()
	c := newCycle(f, ts, Config{LiveFeedCap: 50})

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	if _, err := c.Run(context.Background()); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("expected ErrCycleRunning, got %v", err)
	}
}
