// Package maintenance runs the periodic feed upkeep cycle: lazy enrichment of
// items that arrived with defaulted signals, and archival that restores the
// live feed cap by converting the oldest items into immutable stories.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"newsroom/api/internal/enrich"
	"newsroom/api/internal/feed"
	"newsroom/api/internal/search"
	"newsroom/api/internal/store"
	"newsroom/api/internal/threads"
	"newsroom/api/internal/util"
)

// State is the externally visible phase of the cycle.
type State string

const (
	StateIdle      State = "idle"
	StateChecking  State = "checking"
	StateEnriching State = "enriching"
	StateArchiving State = "archiving"
)

// Store is the slice of the durable store the cycle needs.
type Store interface {
	CountLive(ctx context.Context) (int, error)
	ListLive(ctx context.Context) ([]store.LiveItem, error)
	ListUnenriched(ctx context.Context, limit int) ([]store.LiveItem, error)
	UpdateEnrichment(ctx context.Context, itemID string, priority, quality float64, sentiment string, topics []string) error
	DeleteLiveItem(ctx context.Context, itemID string) error
	InsertStory(ctx context.Context, story store.StoryRecord) error
}

// Indexer mirrors the search service surface the cycle touches.
type Indexer interface {
	IndexStory(record search.StoryRecord)
	DeleteItem(id string)
}

// Snapshotter writes cold story snapshots. Failures are logged, never fatal.
type Snapshotter interface {
	PutStory(ctx context.Context, story feed.CompletedStory) error
}

// Config tunes one cycle.
type Config struct {
	LiveFeedCap int
	EnrichBatch int
	ArchiveAge  time.Duration
	Agent       string
}

// Report summarizes what one cycle did.
type Report struct {
	Enriched  int `json:"enriched"`
	Archived  int `json:"archived"`
	Remaining int `json:"remaining"`
}

// ErrCycleRunning is returned when a cycle is requested while one is active.
var ErrCycleRunning = errors.New("maintenance cycle already running")

// Cycle is the maintenance runner. One cycle at a time; concurrent requests
// are rejected rather than queued.
type Cycle struct {
	store       Store
	enricher    *enrich.Enricher
	threadStore *threads.Store
	indexer     Indexer
	snapshots   Snapshotter
	cfg         Config

	mu      sync.Mutex
	running bool
	state   State
}

// New wires a cycle. indexer and snapshots may be nil.
func New(s Store, enricher *enrich.Enricher, threadStore *threads.Store, indexer Indexer, snapshots Snapshotter, cfg Config) *Cycle {
	if cfg.LiveFeedCap <= 0 {
		cfg.LiveFeedCap = 50
	}
	if cfg.EnrichBatch <= 0 {
		cfg.EnrichBatch = 5
	}
	if cfg.Agent == "" {
		cfg.Agent = "maintenance"
	}
	return &Cycle{
		store:       s,
		enricher:    enricher,
		threadStore: threadStore,
		indexer:     indexer,
		snapshots:   snapshots,
		cfg:         cfg,
		state:       StateIdle,
	}
}

// State reports the current cycle phase.
func (c *Cycle) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cycle) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run executes one full cycle. A cycle on a feed already within its cap and
// with nothing to enrich reports all zeros, which makes re-runs safe.
func (c *Cycle) Run(ctx context.Context) (Report, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return Report{}, ErrCycleRunning
	}
	c.running = true
	c.state = StateChecking
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = StateIdle
		c.mu.Unlock()
	}()

	var report Report

	c.setState(StateEnriching)
	enriched, err := c.enrichPass(ctx)
	if err != nil {
		return report, err
	}
	report.Enriched = enriched

	c.setState(StateArchiving)
	archived, err := c.archivePass(ctx)
	if err != nil {
		report.Archived = archived
		return report, err
	}
	report.Archived = archived

	c.archiveEmptyThreads(ctx)

	remaining, err := c.store.CountLive(ctx)
	if err != nil {
		return report, fmt.Errorf("count live after cycle: %w", err)
	}
	report.Remaining = remaining

	log.Printf("maintenance: cycle done, enriched=%d archived=%d remaining=%d", report.Enriched, report.Archived, report.Remaining)
	return report, nil
}

// enrichPass upgrades up to EnrichBatch items that still carry defaulted
// signals.
func (c *Cycle) enrichPass(ctx context.Context) (int, error) {
	items, err := c.store.ListUnenriched(ctx, c.cfg.EnrichBatch)
	if err != nil {
		return 0, fmt.Errorf("list unenriched: %w", err)
	}

	count := 0
	for _, item := range items {
		enriched := c.enricher.Enrich(ctx, item.EnrichedItem().Raw)
		if enriched.Defaulted {
			// The model is still unavailable; leave the row for a later cycle.
			continue
		}
		if err := c.store.UpdateEnrichment(ctx, item.ID, enriched.Priority, enriched.Quality, string(enriched.Sentiment), enriched.Topics); err != nil {
			return count, fmt.Errorf("update enrichment %s: %w", item.ID, err)
		}
		count++
	}
	return count, nil
}

// archivePass restores the live feed cap, oldest first, and additionally
// retires enriched items past the age threshold whose thread is already
// archived. An item leaves the live feed only after its story insert
// succeeded, so a mid-cycle failure never loses data.
func (c *Cycle) archivePass(ctx context.Context) (int, error) {
	items, err := c.store.ListLive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list live: %w", err)
	}

	overflow := len(items) - c.cfg.LiveFeedCap
	now := time.Now().UTC()

	archived := 0
	for i, item := range items {
		evict := i < overflow
		if !evict && c.cfg.ArchiveAge > 0 && item.Enriched && now.Sub(item.ArrivedAt) > c.cfg.ArchiveAge {
			if thread, ok := c.threadStore.Get(item.ThreadID); ok && thread.Status == feed.ThreadArchived {
				evict = true
			}
		}
		if !evict {
			continue
		}

		story := c.storyFor(item, now)
		if err := c.store.InsertStory(ctx, story); err != nil {
			// The item stays live; the next cycle retries and the unique
			// source_item_id absorbs any half-written state.
			return archived, fmt.Errorf("archive item %s: %w", item.ID, err)
		}

		if c.snapshots != nil {
			if err := c.snapshots.PutStory(ctx, story.Story()); err != nil {
				log.Printf("maintenance: snapshot story %s: %v", story.ID, err)
			}
		}
		if c.indexer != nil {
			c.indexer.IndexStory(search.StoryRecord{
				ID:            story.ID,
				Title:         story.Title,
				Narrative:     story.Narrative,
				ThreadID:      story.ThreadID,
				PriorityClass: story.PriorityClass,
			})
			c.indexer.DeleteItem(item.ID)
		}

		if err := c.store.DeleteLiveItem(ctx, item.ID); err != nil {
			return archived, fmt.Errorf("remove archived item %s: %w", item.ID, err)
		}
		archived++
	}
	return archived, nil
}

// archiveEmptyThreads retires active threads whose members have all left the
// live feed.
func (c *Cycle) archiveEmptyThreads(ctx context.Context) {
	items, err := c.store.ListLive(ctx)
	if err != nil {
		log.Printf("maintenance: list live for thread sweep: %v", err)
		return
	}
	live := make(map[string]bool, len(items))
	for _, item := range items {
		live[item.ID] = true
	}

	for _, thread := range c.threadStore.Active() {
		hasLive := false
		for _, memberID := range thread.MemberIDs {
			if live[memberID] {
				hasLive = true
				break
			}
		}
		if hasLive {
			continue
		}
		if err := c.threadStore.Archive(thread.ID); err != nil {
			log.Printf("maintenance: archive thread %s: %v", thread.ID, err)
		}
	}
}

// storyFor converts a live item into its immutable story form. The original
// title and timestamps carry over untouched.
func (c *Cycle) storyFor(item store.LiveItem, completedAt time.Time) store.StoryRecord {
	narrative := item.Body
	if narrative == "" {
		narrative = item.Title
	}
	story := feed.CompletedStory{
		ID:            util.NewID("story"),
		SourceItemID:  item.ID,
		ThreadID:      item.ThreadID,
		Title:         item.Title,
		Narrative:     narrative,
		Tone:          feed.Sentiment(item.Sentiment),
		PriorityClass: feed.PriorityClass(item.Priority),
		Agent:         c.cfg.Agent,
		CharCount:     len(narrative),
		Topics:        item.Topics,
		OriginalBrief: item.Title,
		CreatedAt:     item.CreatedAt,
		CompletedAt:   completedAt,
	}
	story.WordCount = story.Words()
	return store.StoryRecordFromStory(story)
}
